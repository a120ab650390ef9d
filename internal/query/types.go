package query

import (
	"SwapLedger/internal/order"
	"SwapLedger/internal/party"
)

// BalanceEntry is one currency's view of the three balance maps.
type BalanceEntry struct {
	Currency          string  `json:"currency"`
	SettledUnits      int64   `json:"settled_units"`
	Settled           float64 `json:"settled"`
	PendingDeltaUnits int64   `json:"pending_delta_units"`
	PendingDelta      float64 `json:"pending_delta"`
	ProjectedUnits    int64   `json:"projected_units"`
	Projected         float64 `json:"projected"`
}

// BalancesResponse reports settled, reserved and projected balances
// per currency. as_of_sequence is the number of confirmed events
// applied when the snapshot was taken.
type BalancesResponse struct {
	PartyKey     string         `json:"party_key"`
	Balances     []BalanceEntry `json:"balances"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// OrderResponse is the wire form of a pending or settled fulfillment.
type OrderResponse struct {
	OrderAmountUnits     int64   `json:"order_amount_units"`
	FulfilledAmountUnits int64   `json:"fulfilled_amount_units"`
	FulfilledAmount      float64 `json:"fulfilled_amount"`
	Currency             string  `json:"currency"`
	DestinationAddress   string  `json:"destination_address"`
	IsAsk                bool    `json:"is_ask"`
	IsStakeWithdrawal    bool    `json:"is_stake_withdrawal"`
	EventTime            int64   `json:"event_time"`
	TxIDRef              string  `json:"tx_id_ref,omitempty"`
}

// OrdersResponse lists the orders currently awaiting external payout.
type OrdersResponse struct {
	PartyKey     string          `json:"party_key"`
	Orders       []OrderResponse `json:"orders"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// FulfillmentHistoryEntry pairs a settled fill with the identifiers of
// its request and settlement events.
type FulfillmentHistoryEntry struct {
	RequestID    string        `json:"request_id"`
	SettlementID string        `json:"settlement_id,omitempty"`
	Order        OrderResponse `json:"order"`
}

// FulfillmentHistoryResponse is a page of settled fills, newest first.
type FulfillmentHistoryResponse struct {
	PartyKey     string                    `json:"party_key"`
	Fulfillments []FulfillmentHistoryEntry `json:"fulfillments"`
	AsOfSequence int64                     `json:"as_of_sequence"`
}

// StakingBalancesResponse reports deployed stake per currency.
type StakingBalancesResponse struct {
	PartyKey     string             `json:"party_key"`
	Balances     map[string]float64 `json:"balances"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// PortfolioImbalanceResponse reports the gap between requested
// portfolio allocations and deployed stake. Positive values mean
// under-allocated.
type PortfolioImbalanceResponse struct {
	PartyKey     string             `json:"party_key"`
	Imbalance    map[string]float64 `json:"imbalance"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// PricePairResponse is the wire form of one currency's quote curve.
type PricePairResponse struct {
	QuoteCurrency   string  `json:"quote_currency"`
	MinAsk          float64 `json:"min_ask"`
	MinAskEstimated float64 `json:"min_ask_estimated"`
	MinBid          float64 `json:"min_bid"`
	MinBidEstimated float64 `json:"min_bid_estimated"`
	Time            int64   `json:"time"`
}

// PricesResponse reports the current per-currency price curves plus
// the implied USD value of the base currency.
type PricesResponse struct {
	PartyKey       string              `json:"party_key"`
	Pairs          []PricePairResponse `json:"pairs"`
	UsdRdgEstimate float64             `json:"usd_rdg_estimate,omitempty"`
	AsOfSequence   int64               `json:"as_of_sequence"`
}

// LatestPriceResponse is the most recent oracle quote for a currency.
type LatestPriceResponse struct {
	Currency string  `json:"currency"`
	PriceUSD float64 `json:"price_usd"`
	Time     int64   `json:"time"`
}

// StatusResponse summarizes node and aggregation state.
type StatusResponse struct {
	PartyKey          string           `json:"party_key"`
	Network           string           `json:"network"`
	AsOfSequence      int64            `json:"as_of_sequence"`
	EventCounts       map[string]int64 `json:"event_counts"`
	InternalEvents    int              `json:"internal_events"`
	ExternalEvents    int              `json:"external_events"`
	UnconfirmedEvents int              `json:"unconfirmed_events"`
	OpenSwapOrders    int              `json:"open_swap_orders"`
	OpenWithdrawals   int              `json:"open_withdrawals"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
}

func orderResponseOf(f order.Fulfillment) OrderResponse {
	r := OrderResponse{
		OrderAmountUnits:     f.OrderAmount,
		FulfilledAmountUnits: f.FulfilledAmount,
		FulfilledAmount:      f.FulfilledCurrencyAmount().Fractional(),
		Currency:             f.Destination.Currency.String(),
		DestinationAddress:   f.Destination.Value,
		IsAsk:                f.IsAskFromExternalDeposit,
		IsStakeWithdrawal:    f.IsStakeWithdrawal,
		EventTime:            f.EventTime,
	}
	if f.TxIDRef != nil {
		r.TxIDRef = f.TxIDRef.Identifier
	}
	return r
}

func historyEntryOf(rec party.FulfillmentRecord) FulfillmentHistoryEntry {
	e := FulfillmentHistoryEntry{Order: orderResponseOf(rec.Fulfillment)}
	if rec.Request != nil {
		e.RequestID = rec.Request.Identifier()
	}
	if rec.Settlement != nil {
		e.SettlementID = rec.Settlement.Identifier()
	}
	return e
}
