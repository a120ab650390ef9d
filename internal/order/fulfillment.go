// Package order holds the immutable record of a matched fill produced
// by the settlement engine and consumed by the signing layer.
package order

import (
	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
)

// ExternalTxID references an external-chain transaction by id.
type ExternalTxID struct {
	Identifier string          `json:"identifier"`
	Chain      amount.Currency `json:"currency"`
}

// Fulfillment is one matched fill of a pending swap or withdrawal
// order. FulfilledAmount never exceeds OrderAmount. The record is
// created once by the engine and never mutated except for
// FulfillmentTxIDExternal, which the signing layer sets after the
// outbound payment is broadcast.
type Fulfillment struct {
	// Requested and filled sizes at the 1e8-offset int64 scale.
	OrderAmount     int64 `json:"order_amount"`
	FulfilledAmount int64 `json:"fulfilled_amount"`

	// Typed views of the same values.
	OrderAmountTyped     amount.Amount `json:"order_amount_typed"`
	FulfilledAmountTyped amount.Amount `json:"fulfilled_amount_typed"`

	// True when this fill settles an ask triggered by an external deposit.
	IsAskFromExternalDeposit bool `json:"is_ask_fulfillment_from_external_deposit"`

	EventTime int64 `json:"event_time"`

	// The external receipt that triggered this fill, if any.
	TxIDRef *ExternalTxID `json:"tx_id_ref,omitempty"`

	// Where the fill pays out.
	Destination event.Address `json:"destination"`

	// Stake withdrawals bypass the price curve and return principal 1:1.
	IsStakeWithdrawal     bool   `json:"is_stake_withdrawal"`
	StakeWithdrawalUtxoID string `json:"stake_withdrawal_fulfillment_utxo_id,omitempty"`

	// Causal chain: the event that caused the fill, plus optional prior
	// and successive related events.
	PrimaryEvent           event.AddressEvent `json:"-"`
	PriorRelatedEvent      event.AddressEvent `json:"-"`
	SuccessiveRelatedEvent event.AddressEvent `json:"-"`

	// Set once the outbound payment is broadcast.
	FulfillmentTxIDExternal *ExternalTxID `json:"fulfillment_txid_external,omitempty"`
}

// FulfilledCurrencyAmount is the filled value denominated in the
// destination currency.
func (f *Fulfillment) FulfilledCurrencyAmount() amount.Amount {
	return amount.FromUnits(f.Destination.Currency, f.FulfilledAmount)
}
