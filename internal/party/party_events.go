// Package party implements the cross-chain settlement engine: a
// deterministic, single-owner aggregator that folds an append-only
// stream of address events into balances, pending orders, staking
// state, and fulfillment history for one custodial party.
package party

import (
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/order"
	"SwapLedger/internal/price"
)

// ExtendedEventType classifies an event's role once fulfillment history
// is known.
type ExtendedEventType string

const (
	EventTypeSwap            ExtendedEventType = "swap"
	EventTypeSwapFulfillment ExtendedEventType = "swap_fulfillment"
)

// EventPair is an outstanding fulfillment together with the event that
// triggered it, held in an unfulfilled queue until settlement confirms.
type EventPair struct {
	Fulfillment order.Fulfillment
	Event       event.AddressEvent
}

// FulfillmentRecord is a settled fill: the fulfillment, the event that
// requested it, and the event that confirmed settlement.
type FulfillmentRecord struct {
	Fulfillment order.Fulfillment
	Request     event.AddressEvent
	Settlement  event.AddressEvent
}

// PriceSnapshot is one historical central-price state.
type PriceSnapshot struct {
	Time   int64
	Prices map[amount.Currency]price.CentralPricePair
}

// Config seeds a new Events aggregator.
type Config struct {
	Network event.Network

	// Party-controlled addresses per currency. The last RDG address is
	// the key address.
	Addresses map[amount.Currency][]event.Address

	// Seed node public keys used to resolve internal event times.
	Seeds []string

	DefaultFeeAddrs []event.Address

	Logger zerolog.Logger
}

// Events is the per-party settlement state. One logical task owns and
// mutates an instance; there is no internal locking.
type Events struct {
	Network   event.Network
	Addresses map[amount.Currency][]event.Address
	Seeds     []string

	// Full ordered event history.
	Events []event.AddressEvent

	// Settled balances, in-flight order reservations, and the projected
	// balance with reservations applied. The conservation invariant
	// BalanceWithDeltasApplied = BalanceMap + BalancePendingOrderDeltas
	// holds per currency at all times.
	BalanceMap                map[amount.Currency]amount.Amount
	BalancePendingOrderDeltas map[amount.Currency]amount.Amount
	BalanceWithDeltasApplied  map[amount.Currency]amount.Amount

	// Pending obligations: incoming external deposits awaiting an RDG
	// payout, and incoming RDG swaps/withdrawals awaiting an external
	// payout.
	UnfulfilledSwapOrders  []EventPair
	UnfulfilledWithdrawals []EventPair

	UnconfirmedEvents []event.AddressEvent

	FulfillmentHistory []FulfillmentRecord

	// The fulfillment produced by the most recently processed event,
	// nil when the event produced none.
	EventFulfillment *order.Fulfillment

	InternalStakingEvents     []InternalStakeEvent
	ExternalStakingEvents     []ConfirmedExternalStakeEvent
	PendingStakeWithdrawals   []PendingWithdrawalStakeEvent
	PendingExternalStakingTxs []PendingExternalStakeEvent
	RejectedStakeWithdrawals  []event.AddressEvent

	CentralPrices       map[amount.Currency]price.CentralPricePair
	CentralPriceHistory []PriceSnapshot

	// Orders the local signing layer claims to have fulfilled but whose
	// external receipt has not yet been observed.
	LocallyFulfilledOrders []order.Fulfillment

	Portfolio PortfolioRequestEvents

	DefaultFeeAddrs []event.Address

	// Dedup set of confirmed, applied identifiers. Rebuilt on replay.
	confirmedIDs map[string]struct{}

	log zerolog.Logger
}

// New builds an empty aggregator for one party.
func New(cfg Config) *Events {
	return &Events{
		Network:                   cfg.Network,
		Addresses:                 cfg.Addresses,
		Seeds:                     cfg.Seeds,
		BalanceMap:                map[amount.Currency]amount.Amount{},
		BalancePendingOrderDeltas: map[amount.Currency]amount.Amount{},
		BalanceWithDeltasApplied:  map[amount.Currency]amount.Amount{},
		CentralPrices:             map[amount.Currency]price.CentralPricePair{},
		CentralPriceHistory:       []PriceSnapshot{},
		Portfolio:                 NewPortfolioRequestEvents(),
		DefaultFeeAddrs:           cfg.DefaultFeeAddrs,
		confirmedIDs:              map[string]struct{}{},
		log:                       cfg.Logger.With().Str("component", "party_events").Logger(),
	}
}

// KeyAddress is the party's primary internal ledger address.
func (p *Events) KeyAddress() (event.Address, bool) {
	addrs := p.Addresses[amount.CurrencyRDG]
	if len(addrs) == 0 {
		return event.Address{}, false
	}
	return addrs[len(addrs)-1], true
}

// AddressForCurrency is the party's current address on a chain.
func (p *Events) AddressForCurrency(cur amount.Currency) (event.Address, bool) {
	addrs := p.Addresses[cur]
	if len(addrs) == 0 {
		return event.Address{}, false
	}
	return addrs[len(addrs)-1], true
}

// AllPartyAddresses flattens the per-currency address sets.
func (p *Events) AllPartyAddresses() []event.Address {
	var out []event.Address
	for _, addrs := range p.Addresses {
		out = append(out, addrs...)
	}
	return out
}

func addDelta(m map[amount.Currency]amount.Amount, delta amount.Amount) {
	cur := delta.Currency
	current, ok := m[cur]
	if !ok {
		current = amount.Zero(cur)
	}
	m[cur] = current.Add(delta)
}

// modifyPendingBalanceOnly adjusts the reservation map alone.
func (p *Events) modifyPendingBalanceOnly(delta amount.Amount) {
	addDelta(p.BalancePendingOrderDeltas, delta)
}

// modifyPendingAndDeltas reserves (or releases) in-flight funds: the
// reservation map and the projected balance move together while the
// settled balance stays put.
func (p *Events) modifyPendingAndDeltas(delta amount.Amount) {
	p.modifyPendingBalanceOnly(delta)
	p.modifyBalanceWithDeltas(delta)
}

func (p *Events) modifyBalanceWithDeltas(delta amount.Amount) {
	addDelta(p.BalanceWithDeltasApplied, delta)
}

// modifyBaseBalanceAndDeltas applies a settled balance change to both
// the base and projected balances.
func (p *Events) modifyBaseBalanceAndDeltas(delta amount.Amount) {
	addDelta(p.BalanceMap, delta)
	p.modifyBalanceWithDeltas(delta)
}

// UnconfirmedExternalTxIDRefs collects, over unconfirmed internal
// events, the external tx ids their outputs reference: internal payouts
// waiting on an external leg.
func (p *Events) UnconfirmedExternalTxIDRefs() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range p.UnconfirmedEvents {
		t, ok := e.(*event.InternalTx)
		if !ok {
			continue
		}
		for _, id := range t.Tx.OutputExternalTxIDs() {
			out[id] = struct{}{}
		}
	}
	return out
}

// UnconfirmedOutgoingExternalAddresses collects, over unconfirmed
// outgoing external events, every non-self output address. A confirmed
// deposit to one of these is our own pending payment landing, not a new
// deposit.
func (p *Events) UnconfirmedOutgoingExternalAddresses() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range p.UnconfirmedEvents {
		t, ok := e.(*event.ExternalTx)
		if !ok || t.In {
			continue
		}
		for _, a := range t.OtherOutputAddresses {
			out[a] = struct{}{}
		}
	}
	return out
}

// UnconfirmedIdentifiers is the dedup set of everything still
// unconfirmed.
func (p *Events) UnconfirmedIdentifiers() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range p.UnconfirmedEvents {
		out[e.Identifier()] = struct{}{}
	}
	return out
}

// RemoveUnconfirmedEvent drops the matching unconfirmed entry by
// identifier. Removing an absent event is a no-op.
func (p *Events) RemoveUnconfirmedEvent(ev event.AddressEvent) {
	kind := ev.Kind()
	id := ev.Identifier()
	kept := p.UnconfirmedEvents[:0]
	for _, e := range p.UnconfirmedEvents {
		if e.Kind() == kind && e.Identifier() == id {
			continue
		}
		kept = append(kept, e)
	}
	p.UnconfirmedEvents = kept
}

// fulfillRequest carries the inputs of one fulfillment attempt.
// CurveCurrency names the price curve the fill is quoted against; the
// callers set it to the order's own currency for asks and the
// triggering event's currency for bids.
type fulfillRequest struct {
	amount        amount.Amount
	isAsk         bool
	eventTime     int64
	txID          *order.ExternalTxID
	destination   event.Address
	isStake       bool
	event         event.AddressEvent
	stakeUtxoID   string
	curveCurrency amount.Currency
	primaryEvent  event.AddressEvent
	priorRelated  event.AddressEvent
}

// fulfillOrder attempts to fill an order. Swaps quote against the
// selected currency's central price curve; stake withdrawals return
// principal 1:1 with no curve. Any produced fulfillment becomes the
// current EventFulfillment and reserves its amount as a negative
// pending delta so the same liquidity cannot be filled twice.
func (p *Events) fulfillOrder(req fulfillRequest) {
	var fulfillment *order.Fulfillment
	if !req.isStake {
		cp, ok := p.CentralPrices[req.curveCurrency]
		if !ok {
			return
		}
		of := cp.FulfillTakerOrder(
			req.amount, req.isAsk, req.eventTime, req.txID,
			req.destination, req.primaryEvent, p.Network,
		)
		if of == nil {
			return
		}
		pair := EventPair{Fulfillment: *of, Event: req.event}
		if req.isAsk {
			p.UnfulfilledSwapOrders = append(p.UnfulfilledSwapOrders, pair)
		} else {
			p.UnfulfilledWithdrawals = append(p.UnfulfilledWithdrawals, pair)
		}
		fulfillment = of
	} else {
		fulfillment = &order.Fulfillment{
			OrderAmount:              req.amount.UnitsOr(),
			FulfilledAmount:          req.amount.UnitsOr(),
			OrderAmountTyped:         req.amount,
			FulfilledAmountTyped:     req.amount,
			IsAskFromExternalDeposit: false,
			EventTime:                req.eventTime,
			Destination:              req.destination,
			IsStakeWithdrawal:        true,
			StakeWithdrawalUtxoID:    req.stakeUtxoID,
			PrimaryEvent:             req.primaryEvent,
			PriorRelatedEvent:        req.priorRelated,
		}
	}

	p.EventFulfillment = fulfillment
	p.modifyPendingAndDeltas(fulfillment.FulfilledCurrencyAmount().Neg())
}

// retainUnfulfilledDeposit reports whether a pending swap order should
// stay queued: false once an external event matching the payout's
// referenced tx id has been observed.
func retainUnfulfilledDeposit(txID string, d event.AddressEvent) bool {
	t, ok := d.(*event.ExternalTx)
	if !ok {
		return true
	}
	return t.TxID != txID
}

// retainUnfulfilledWithdrawal reports whether a pending withdrawal
// should stay queued: false once the outgoing external transaction's
// destination matches the internal event's declared swap or
// stake-withdrawal destination. The match is case-insensitive to
// tolerate checksum-cased addresses.
func retainUnfulfilledWithdrawal(t *event.ExternalTx, d event.AddressEvent) bool {
	t2, ok := d.(*event.InternalTx)
	if !ok {
		return true
	}
	dest := strings.ToLower(t.OtherAddress)
	if sd := t2.Tx.SwapDestination(); sd != nil {
		if dest == strings.ToLower(sd.Value) {
			return false
		}
	}
	if sw := t2.Tx.StakeWithdrawalRequest(); sw != nil {
		if dest == strings.ToLower(sw.Destination.Value) {
			return false
		}
	}
	return true
}

// meetsMinimumSwapAmount is the dust floor for swap requests.
func meetsMinimumSwapAmount(amt amount.Amount) bool {
	switch amt.Currency {
	case amount.CurrencyRDG:
		return amt.Units >= 10_000
	case amount.CurrencyBTC:
		return amt.Units >= 2_000
	case amount.CurrencyETH:
		min, err := amount.FromWeiString("1000000000000")
		if err != nil {
			return false
		}
		return amt.Cmp(min) >= 0
	default:
		return false
	}
}

// RecalculatePrices recomputes the central price curves from the
// portfolio-excluded projected balances, holding quoted prices fixed.
// A changed curve is appended to the price history; failure leaves
// prices untouched.
func (p *Events) RecalculatePrices(t int64) error {
	next, err := price.RecalculateNoQuotePriceChange(
		p.CentralPrices, p.BalancesWithDeltasSubPortfolio(), t,
	)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(next, p.CentralPrices) {
		p.CentralPrices = next
		p.CentralPriceHistory = append(p.CentralPriceHistory, PriceSnapshot{Time: t, Prices: next})
	}
	return nil
}

// BalancesWithDeltasSubPortfolio is the projected balance view minus
// amounts earmarked for portfolio stake allocation: the liquidity
// actually quotable on the curve.
func (p *Events) BalancesWithDeltasSubPortfolio() map[amount.Currency]amount.Amount {
	out := make(map[amount.Currency]amount.Amount, len(p.BalanceWithDeltasApplied))
	for cur, v := range p.BalanceWithDeltasApplied {
		out[cur] = v
	}
	for cur, v := range p.Portfolio.ExternalStakeBalanceDeltas {
		if existing, ok := out[cur]; ok {
			out[cur] = existing.Sub(v)
		}
	}
	return out
}

// StakingBalances sums staked principal per currency. An empty addrs
// slice means no address filter; includeAMM covers internal liquidity
// stakes and includePortfolio covers portfolio-allocated external
// stakes.
func (p *Events) StakingBalances(addrs []event.Address, includeAMM, includePortfolio bool) map[amount.Currency]amount.Amount {
	hasFilter := len(addrs) > 0
	filter := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		filter[a.Value] = struct{}{}
	}
	portfolioUtxos := make(map[string]struct{}, len(p.Portfolio.StakeUtxos))
	for _, su := range p.Portfolio.StakeUtxos {
		portfolioUtxos[su.Event.Pending.UtxoID] = struct{}{}
	}

	out := map[amount.Currency]amount.Amount{}
	for _, e := range p.ExternalStakingEvents {
		if hasFilter {
			if _, ok := filter[e.Tx.OtherAddress]; !ok {
				continue
			}
		}
		if !includePortfolio {
			if _, ok := portfolioUtxos[e.Pending.UtxoID]; ok {
				continue
			}
		}
		addDelta(out, e.Tx.CurrencyAmount())
	}
	if includeAMM {
		for _, e := range p.InternalStakingEvents {
			if hasFilter {
				if _, ok := filter[e.WithdrawalAddress.Value]; !ok {
					continue
				}
			}
			addDelta(out, e.Amount)
		}
	}
	return out
}

// EventCounts counts applied events per currency.
func (p *Events) EventCounts() map[amount.Currency]int64 {
	out := map[amount.Currency]int64{}
	for _, e := range p.Events {
		out[e.Currency()]++
	}
	return out
}

func (p *Events) NumInternalEvents() int {
	n := 0
	for _, e := range p.Events {
		if e.Kind() == event.KindInternal {
			n++
		}
	}
	return n
}

func (p *Events) NumExternalEvents() int {
	n := 0
	for _, e := range p.Events {
		if e.Kind() == event.KindExternal {
			n++
		}
	}
	return n
}

func (p *Events) NumExternalIncomingEvents() int {
	n := 0
	for _, e := range p.Events {
		if t, ok := e.(*event.ExternalTx); ok && t.In {
			n++
		}
	}
	return n
}

// RDGMaxBidUSDEstimateAt is the highest estimated bid USD price across
// currencies as of the latest price snapshot at or before t.
func (p *Events) RDGMaxBidUSDEstimateAt(t int64) (float64, bool) {
	var snap *PriceSnapshot
	for i := range p.CentralPriceHistory {
		if p.CentralPriceHistory[i].Time <= t {
			snap = &p.CentralPriceHistory[i]
		}
	}
	if snap == nil {
		return 0, false
	}
	max := 0.0
	found := false
	for _, cp := range snap.Prices {
		if !found || cp.MinBidEstimated > max {
			max = cp.MinBidEstimated
			found = true
		}
	}
	return max, found
}

// FindFulfillmentOf looks up the settled fill whose requesting event
// has the given identifier.
func (p *Events) FindFulfillmentOf(identifier string) (FulfillmentRecord, bool) {
	for _, r := range p.FulfillmentHistory {
		if r.Request.Identifier() == identifier {
			return r, true
		}
	}
	return FulfillmentRecord{}, false
}

// FindRequestFulfilledBy looks up the settled fill whose confirming
// event has the given identifier.
func (p *Events) FindRequestFulfilledBy(identifier string) (FulfillmentRecord, bool) {
	for _, r := range p.FulfillmentHistory {
		if r.Settlement.Identifier() == identifier {
			return r, true
		}
	}
	return FulfillmentRecord{}, false
}

// DetermineEventType classifies an event by its role in fulfillment
// history: a fulfilled event was a swap request, a fulfilling event a
// swap fulfillment.
func (p *Events) DetermineEventType(identifier string) (ExtendedEventType, bool) {
	if _, ok := p.FindFulfillmentOf(identifier); ok {
		return EventTypeSwap, true
	}
	if _, ok := p.FindRequestFulfilledBy(identifier); ok {
		return EventTypeSwapFulfillment, true
	}
	return "", false
}
