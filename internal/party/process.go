package party

import (
	"fmt"
	"sort"
	"time"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/order"
	"SwapLedger/internal/price"
)

// orderCutoff is how long an order must sit unfulfilled before the
// signing layer may pick it up, leaving room for in-flight
// confirmations to land first.
const orderCutoff = 30 * time.Second

// ProcessEvent folds one observed event into the party state.
// Reapplying an already-applied event is a no-op, so replaying a
// persisted event stream is safe.
func (p *Events) ProcessEvent(e event.AddressEvent) error {
	id := e.Identifier()
	t, confirmed := e.ObservedTime(p.Seeds)
	if confirmed {
		if p.appliedConfirmed(id) {
			return nil
		}
		p.Events = append(p.Events, e)
		p.markConfirmed(id)
		p.RemoveUnconfirmedEvent(e)
		return p.processConfirmedEvent(e, t)
	}
	if _, ok := p.UnconfirmedIdentifiers()[id]; ok {
		return nil
	}
	if p.appliedConfirmed(id) {
		return nil
	}
	p.Events = append(p.Events, e)
	p.UnconfirmedEvents = append(p.UnconfirmedEvents, e)
	return nil
}

func (p *Events) appliedConfirmed(id string) bool {
	_, ok := p.confirmedIDs[id]
	return ok
}

func (p *Events) markConfirmed(id string) {
	if p.confirmedIDs == nil {
		p.confirmedIDs = map[string]struct{}{}
	}
	p.confirmedIDs[id] = struct{}{}
}

// processConfirmedEvent refreshes prices from the event's USD quote,
// recomputes the curve, dispatches on the event variant, and recomputes
// the curve again so the post-event balances are reflected.
func (p *Events) processConfirmedEvent(e event.AddressEvent, t int64) error {
	p.EventFulfillment = nil

	if usd, okPrice := e.UsdPrice(); okPrice {
		if cur, okCur := e.ExternalCurrency(); okCur {
			prices, err := price.CalculateCentralPricesBidAsk(
				map[amount.Currency]float64{cur: usd},
				p.BalanceWithDeltasApplied, t, 0, 0,
			)
			if err != nil {
				return fmt.Errorf("central price refresh: %w", err)
			}
			for k, v := range prices {
				p.CentralPrices[k] = v
			}
		}
	}
	if err := p.RecalculatePrices(t); err != nil {
		return fmt.Errorf("price recompute: %w", err)
	}

	switch ev := e.(type) {
	case *event.ExternalTx:
		p.handleExternalEvent(e, t, ev)
	case *event.InternalTx:
		if err := p.handleInternalEvent(e, t, ev); err != nil {
			return err
		}
	default:
		return newError(ErrUnsupportedEvent, "unknown event variant").
			WithDetail("identifier", e.Identifier())
	}

	if err := p.RecalculatePrices(t); err != nil {
		return fmt.Errorf("price recompute: %w", err)
	}
	return nil
}

// handleExternalEvent reconciles one confirmed external chain
// transaction. Incoming deposits either settle a pending stake intent
// or open an ask order paying out RDG to the depositor; outgoing
// transactions settle pending withdrawals whose declared destination
// they pay.
func (p *Events) handleExternalEvent(e event.AddressEvent, t int64, tx *event.ExternalTx) {
	if tx.In {
		if !p.checkExternalEventPendingStake(e, tx) {
			ca := tx.CurrencyAmount()
			if meetsMinimumSwapAmount(ca) {
				dest := event.Address{Value: tx.OtherAddress, Currency: amount.CurrencyRDG}
				txID := &order.ExternalTxID{Identifier: tx.TxID, Chain: tx.Chain}
				p.fulfillOrder(fulfillRequest{
					amount:        ca,
					isAsk:         true,
					eventTime:     t,
					txID:          txID,
					destination:   dest,
					event:         e,
					curveCurrency: ca.Currency,
					primaryEvent:  e,
				})
			} else {
				p.log.Debug().
					Str("tx_id", tx.TxID).
					Str("currency", ca.Currency.String()).
					Msg("deposit below minimum swap amount, held without order")
			}
		}
	} else {
		settledFrom := len(p.FulfillmentHistory)
		kept := p.UnfulfilledWithdrawals[:0]
		for _, pair := range p.UnfulfilledWithdrawals {
			if retainUnfulfilledWithdrawal(tx, pair.Event) {
				kept = append(kept, pair)
				continue
			}
			p.FulfillmentHistory = append(p.FulfillmentHistory, FulfillmentRecord{
				Fulfillment: pair.Fulfillment,
				Request:     pair.Event,
				Settlement:  e,
			})
		}
		p.UnfulfilledWithdrawals = kept

		if len(p.FulfillmentHistory) > settledFrom {
			for _, rec := range p.FulfillmentHistory[settledFrom:] {
				p.HandleMaybePortfolioStakeWithdrawalEvent(rec)
			}
			p.modifyPendingAndDeltas(tx.BalanceChange())
		}
		p.RemoveUnconfirmedEvent(e)
	}

	delta := tx.BalanceChange()
	if !tx.In {
		delta = delta.Neg()
	}
	p.modifyBaseBalanceAndDeltas(delta)
}

// handleInternalEvent reconciles one confirmed internal ledger
// transaction. Incoming transactions open swap orders or register
// stake/portfolio requests; outgoing transactions are payout receipts
// that settle pending swap orders and stake withdrawal fulfillments.
func (p *Events) handleInternalEvent(e event.AddressEvent, t int64, tx *event.InternalTx) error {
	keyAddr, ok := p.KeyAddress()
	if !ok {
		return newError(ErrMissingField, "party has no key address")
	}

	incoming := true
	for _, a := range tx.Tx.InputAddresses {
		if a == keyAddr.Value {
			incoming = false
			break
		}
	}

	var amt amount.Amount
	if incoming {
		amt = amount.FromUnits(amount.CurrencyRDG, tx.Tx.OutputAmountOfAddress(keyAddr.Value))
		if dest := tx.Tx.SwapDestination(); dest != nil {
			p.fulfillOrder(fulfillRequest{
				amount:        amt,
				isAsk:         false,
				eventTime:     t,
				destination:   *dest,
				event:         e,
				curveCurrency: dest.Currency,
				primaryEvent:  e,
			})
		} else if tx.Tx.IsStake() {
			p.handleStakeRequests(e, t, tx.Tx)
		} else if tx.Tx.HasPortfolioRequest() {
			if err := p.handlePortfolioRequest(e, t, tx); err != nil {
				p.log.Warn().Err(err).
					Str("hash", tx.Tx.Hash).
					Msg("portfolio request skipped")
			}
		}
	} else {
		amt = amount.FromUnits(amount.CurrencyRDG, tx.Tx.OutputAmountExcludingAddress(keyAddr.Value))

		for _, txID := range tx.Tx.OutputExternalTxIDs() {
			p.RemoveUnconfirmedEvent(e)
			found := false
			kept := p.UnfulfilledSwapOrders[:0]
			for _, pair := range p.UnfulfilledSwapOrders {
				if retainUnfulfilledDeposit(txID, pair.Event) {
					kept = append(kept, pair)
					continue
				}
				p.FulfillmentHistory = append(p.FulfillmentHistory, FulfillmentRecord{
					Fulfillment: pair.Fulfillment,
					Request:     pair.Event,
					Settlement:  e,
				})
				found = true
			}
			p.UnfulfilledSwapOrders = kept
			if found {
				p.modifyPendingAndDeltas(amt)
				break
			}
		}

		for _, utxoID := range tx.Tx.StakeWithdrawalFulfillments() {
			found := false
			kept := p.UnfulfilledSwapOrders[:0]
			for _, pair := range p.UnfulfilledSwapOrders {
				// The payout output names the UTXO that requested the
				// withdrawal, which the queued fill carries.
				if pair.Fulfillment.StakeWithdrawalUtxoID == "" ||
					pair.Fulfillment.StakeWithdrawalUtxoID != utxoID {
					kept = append(kept, pair)
					continue
				}
				p.FulfillmentHistory = append(p.FulfillmentHistory, FulfillmentRecord{
					Fulfillment: pair.Fulfillment,
					Request:     pair.Event,
					Settlement:  e,
				})
				found = true
			}
			p.UnfulfilledSwapOrders = kept
			if found {
				p.modifyPendingAndDeltas(amt)
				break
			}
		}
	}

	delta := amt
	if !incoming {
		delta = delta.Neg()
	}
	p.modifyBaseBalanceAndDeltas(delta)
	return nil
}

func containsString(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

// Orders returns the outstanding obligations ready for the signing
// layer: queued fills whose settlement is not already in flight as an
// unconfirmed transaction, filtered by balance sufficiency including
// the payout fee, oldest first.
func (p *Events) Orders() []order.Fulfillment {
	var orders []order.Fulfillment

	externIDRefs := p.UnconfirmedExternalTxIDRefs()
	for _, pair := range p.UnfulfilledSwapOrders {
		t, ok := pair.Event.(*event.ExternalTx)
		if !ok {
			continue
		}
		// An unconfirmed internal payout already references this
		// deposit: the fill is in flight.
		if _, inFlight := externIDRefs[t.TxID]; inFlight {
			continue
		}
		orders = append(orders, pair.Fulfillment)
	}

	unconfirmedAddrs := p.UnconfirmedOutgoingExternalAddresses()
	for _, pair := range p.UnfulfilledWithdrawals {
		// Stake withdrawals disabled on mainnet pending product signoff.
		if pair.Fulfillment.IsStakeWithdrawal && p.Network.IsMain() {
			continue
		}
		if _, ok := pair.Event.(*event.InternalTx); !ok {
			continue
		}
		if _, inFlight := unconfirmedAddrs[pair.Fulfillment.Destination.Value]; inFlight {
			continue
		}
		if p.locallyClaimed(pair.Event) {
			p.log.Error().
				Str("identifier", pair.Event.Identifier()).
				Msg("local signer claims fulfillment but no unconfirmed external output observed")
			continue
		}
		orders = append(orders, pair.Fulfillment)
	}

	filtered := orders[:0]
	for _, o := range orders {
		cur := o.Destination.Currency
		if b, ok := p.BalanceMap[cur]; ok {
			fee, feeOK := price.ExpectedFeeAmount(cur, p.Network)
			if !feeOK {
				fee = amount.Zero(cur)
			}
			total := o.FulfilledCurrencyAmount().Add(fee)
			if b.Cmp(total) < 0 {
				continue
			}
		}
		filtered = append(filtered, o)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].EventTime < filtered[j].EventTime
	})
	return filtered
}

func (p *Events) locallyClaimed(e event.AddressEvent) bool {
	for _, f := range p.LocallyFulfilledOrders {
		if f.PrimaryEvent != nil && f.PrimaryEvent.Identifier() == e.Identifier() {
			return true
		}
	}
	return false
}

// FulfillmentOrders filters outstanding orders by payout currency.
func (p *Events) FulfillmentOrders(cur amount.Currency) []order.Fulfillment {
	var out []order.Fulfillment
	for _, o := range p.Orders() {
		if o.Destination.Currency == cur {
			out = append(out, o)
		}
	}
	return out
}

// OrdersBefore returns outstanding orders whose event time is before
// cutoff millis.
func (p *Events) OrdersBefore(cutoffMillis int64) []order.Fulfillment {
	var out []order.Fulfillment
	for _, o := range p.Orders() {
		if o.EventTime < cutoffMillis {
			out = append(out, o)
		}
	}
	return out
}

// OrdersDefaultCutoff returns outstanding orders older than the default
// settlement cutoff.
func (p *Events) OrdersDefaultCutoff() []order.Fulfillment {
	return p.OrdersBefore(time.Now().UnixMilli() - orderCutoff.Milliseconds())
}
