package party

import (
	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/price"
)

// InternalStakeEvent is settled RDG liquidity staked directly on the
// internal ledger.
type InternalStakeEvent struct {
	Event             event.AddressEvent
	Tx                *event.LedgerTransaction
	Amount            amount.Amount
	WithdrawalAddress event.Address
	Deposit           event.StakeDeposit
	UtxoID            string
}

// PendingExternalStakeEvent is a declared external-chain stake deposit
// whose principal has not yet arrived.
type PendingExternalStakeEvent struct {
	Event            event.AddressEvent
	Tx               *event.LedgerTransaction
	Amount           amount.Amount
	ExternalAddress  string
	ExternalCurrency amount.Currency
	Deposit          event.StakeDeposit
	DepositInner     event.DepositRequest
	UtxoID           string
}

// ConfirmedExternalStakeEvent pairs a pending external stake with the
// observed chain deposit that settled it.
type ConfirmedExternalStakeEvent struct {
	Pending PendingExternalStakeEvent
	Event   event.AddressEvent
	Tx      *event.ExternalTx
}

// PendingWithdrawalStakeEvent is principal owed back to a staker,
// awaiting payout.
type PendingWithdrawalStakeEvent struct {
	Address         event.Address
	Amount          amount.Amount
	InitiatingEvent event.AddressEvent
	IsExternal      bool
	UtxoID          string
}

// checkExternalEventPendingStake matches an incoming external deposit
// against declared stake intents by amount and source address. A match
// confirms the stake instead of opening a swap order.
func (p *Events) checkExternalEventPendingStake(e event.AddressEvent, tx *event.ExternalTx) bool {
	amt := tx.CurrencyAmount()
	for _, pending := range p.PendingExternalStakingTxs {
		if !pending.Amount.Equal(amt) || pending.ExternalAddress != tx.OtherAddress {
			continue
		}
		matched := pending
		kept := p.PendingExternalStakingTxs[:0]
		for _, s := range p.PendingExternalStakingTxs {
			if s.UtxoID != matched.UtxoID {
				kept = append(kept, s)
			}
		}
		p.PendingExternalStakingTxs = kept

		confirmed := ConfirmedExternalStakeEvent{Pending: matched, Event: e, Tx: tx}
		p.ExternalStakingEvents = append(p.ExternalStakingEvents, confirmed)
		p.HandleMaybePortfolioStakeEvent(confirmed)
		return true
	}
	return false
}

// minimumStakeAmountTotal is the floor principal per currency; ok=false
// means the currency cannot be staked.
func minimumStakeAmountTotal(cur amount.Currency) (amount.Amount, bool) {
	switch cur {
	case amount.CurrencyRDG:
		return amount.FromFractional(amount.CurrencyRDG, 1.0), true
	case amount.CurrencyBTC:
		return amount.FromUnits(amount.CurrencyBTC, 10_000), true
	case amount.CurrencyETH:
		return amount.FromFractional(amount.CurrencyETH, 0.005), true
	default:
		return amount.Amount{}, false
	}
}

func meetsMinimumStakeAmount(amt amount.Amount) bool {
	min, ok := minimumStakeAmountTotal(amt.Currency)
	if !ok {
		return false
	}
	return amt.Cmp(min) >= 0
}

// handleStakeRequests routes each stake request declared by an incoming
// transaction: external deposit intents, internal liquidity stakes, and
// withdrawal requests.
func (p *Events) handleStakeRequests(e event.AddressEvent, t int64, tx *event.LedgerTransaction) {
	var stakedRDG amount.Amount
	var haveAmt bool
	var sum int64
	for _, a := range p.Addresses[amount.CurrencyRDG] {
		sum += tx.OutputAmountOfAddress(a.Value)
	}
	if sum > 0 {
		stakedRDG = amount.FromUnits(amount.CurrencyRDG, sum)
		haveAmt = true
	}

	for _, req := range tx.StakeRequests() {
		switch {
		case req.Deposit != nil && req.Deposit.External != nil:
			p.handleExternalLiquidityDeposit(e, tx, *req.Deposit.External, *req.Deposit, req.UtxoID)
		case req.Deposit != nil:
			if haveAmt {
				p.internalLiquidityStake(e, tx, stakedRDG, *req.Deposit, req.UtxoID)
			}
		case req.Withdrawal != nil:
			p.processStakeWithdrawal(e, tx, *req.Withdrawal, t, req.UtxoID)
		}
	}
}

// handleExternalLiquidityDeposit registers the declared intent; the
// stake confirms only when the matching chain deposit arrives.
func (p *Events) handleExternalLiquidityDeposit(
	e event.AddressEvent,
	tx *event.LedgerTransaction,
	inner event.DepositRequest,
	deposit event.StakeDeposit,
	utxoID string,
) {
	if inner.Address == "" || inner.Amount.IsZero() {
		return
	}
	p.PendingExternalStakingTxs = append(p.PendingExternalStakingTxs, PendingExternalStakeEvent{
		Event:            e,
		Tx:               tx,
		Amount:           inner.Amount,
		ExternalAddress:  inner.Address,
		ExternalCurrency: inner.Amount.Currency,
		Deposit:          deposit,
		DepositInner:     inner,
		UtxoID:           utxoID,
	})
}

// internalLiquidityStake settles an RDG principal stake immediately:
// the staked value already arrived with the transaction itself.
func (p *Events) internalLiquidityStake(
	e event.AddressEvent,
	tx *event.LedgerTransaction,
	amt amount.Amount,
	deposit event.StakeDeposit,
	utxoID string,
) {
	if amt.Currency != amount.CurrencyRDG || !meetsMinimumStakeAmount(amt) {
		return
	}
	withdrawalAddr, ok := tx.FirstInputAddress()
	if !ok {
		return
	}
	p.InternalStakingEvents = append(p.InternalStakingEvents, InternalStakeEvent{
		Event:             e,
		Tx:                tx,
		Amount:            amt,
		WithdrawalAddress: event.Address{Value: withdrawalAddr, Currency: amount.CurrencyRDG},
		Deposit:           deposit,
		UtxoID:            utxoID,
	})
}

// processStakeWithdrawal resolves a withdrawal request against tracked
// stakes. The paid amount is capped so the party always retains the
// minimum stake floor plus a fee buffer; on non-mainnet networks a
// reduced payout is allowed when the full amount cannot be covered.
// Requests that cannot be funded are recorded as rejected.
func (p *Events) processStakeWithdrawal(
	e event.AddressEvent,
	tx *event.LedgerTransaction,
	withdrawal event.StakeWithdrawal,
	t int64,
	utxoID string,
) {
	dest := withdrawal.Destination
	if dest.Value == "" {
		p.RejectedStakeWithdrawals = append(p.RejectedStakeWithdrawals, e)
		return
	}

	var staked amount.Amount
	var haveStake bool
	if dest.Currency == amount.CurrencyRDG {
		staked, haveStake = p.retainInternalStake(tx.InputUtxoIDs)
	} else {
		staked, haveStake = p.retainExternalStake(tx.InputUtxoIDs, dest.Currency)
	}

	if haveStake {
		if existing, ok := p.BalanceMap[staked.Currency]; ok {
			minAmt, minOK := minimumStakeAmountTotal(staked.Currency)
			if !minOK {
				minAmt = amount.Zero(staked.Currency)
			}
			if fee, feeOK := price.ExpectedFeeAmount(staked.Currency, p.Network); feeOK {
				remainder := existing.Sub(staked).Sub(minAmt).Sub(fee.MulInt(2))
				var orderAmt amount.Amount
				var haveOrder bool
				if remainder.Cmp(minAmt) > 0 {
					orderAmt = staked
					if remainder.Cmp(staked) < 0 {
						orderAmt = remainder
					}
					haveOrder = true
				} else if !p.Network.IsMain() {
					reduced := existing.Sub(fee.MulInt(2))
					if reduced.Cmp(fee) > 0 {
						orderAmt = reduced
						haveOrder = true
					}
				}
				if haveOrder {
					p.fulfillOrder(fulfillRequest{
						amount:        orderAmt,
						isAsk:         false,
						eventTime:     t,
						destination:   dest,
						isStake:       true,
						event:         e,
						stakeUtxoID:   utxoID,
						curveCurrency: dest.Currency,
						primaryEvent:  e,
					})
				}
			}
		}
	}

	if p.EventFulfillment == nil {
		p.RejectedStakeWithdrawals = append(p.RejectedStakeWithdrawals, e)
		return
	}

	of := *p.EventFulfillment
	isExternal := of.IsStakeWithdrawal && of.Destination.Currency != amount.CurrencyRDG
	p.PendingStakeWithdrawals = append(p.PendingStakeWithdrawals, PendingWithdrawalStakeEvent{
		Address:         dest,
		Amount:          of.FulfilledCurrencyAmount(),
		InitiatingEvent: e,
		IsExternal:      isExternal,
		UtxoID:          utxoID,
	})
	pair := EventPair{Fulfillment: of, Event: e}
	if isExternal {
		p.UnfulfilledWithdrawals = append(p.UnfulfilledWithdrawals, pair)
	} else {
		p.UnfulfilledSwapOrders = append(p.UnfulfilledSwapOrders, pair)
	}
}

// retainInternalStake removes and returns the internal stake funded by
// one of the given input UTXOs.
func (p *Events) retainInternalStake(utxoIDs []string) (amount.Amount, bool) {
	for _, ev := range p.InternalStakingEvents {
		if !containsString(utxoIDs, ev.UtxoID) {
			continue
		}
		matched := ev
		kept := p.InternalStakingEvents[:0]
		for _, s := range p.InternalStakingEvents {
			if s.UtxoID != matched.UtxoID {
				kept = append(kept, s)
			}
		}
		p.InternalStakingEvents = kept
		return matched.Amount, true
	}
	return amount.Amount{}, false
}

// retainExternalStake removes and returns the confirmed external stake
// whose declaring UTXO is among the inputs and whose currency matches.
func (p *Events) retainExternalStake(utxoIDs []string, cur amount.Currency) (amount.Amount, bool) {
	for _, ev := range p.ExternalStakingEvents {
		if ev.Pending.ExternalCurrency != cur || !containsString(utxoIDs, ev.Pending.UtxoID) {
			continue
		}
		matched := ev
		kept := p.ExternalStakingEvents[:0]
		for _, s := range p.ExternalStakingEvents {
			if s.Pending.UtxoID != matched.Pending.UtxoID {
				kept = append(kept, s)
			}
		}
		p.ExternalStakingEvents = kept
		return matched.Pending.Amount, true
	}
	return amount.Amount{}, false
}
