// Package query serves read-only views of live party state. Reads run
// on the watcher goroutine through StateInspector, so every response
// is a consistent snapshot at a single sequence.
package query

import (
	"context"
	"sort"
	"time"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/party"
	"SwapLedger/internal/persistence"
)

// StateInspector runs a function against party state on the goroutine
// that owns it.
type StateInspector interface {
	Inspect(ctx context.Context, fn func(st *party.Events, seq int64)) error
}

// QueryService answers API queries from live state and the persisted
// price history.
type QueryService struct {
	partyKey  string
	inspector StateInspector
	prices    *persistence.PriceHistoryStore
	startTime time.Time
}

func NewQueryService(partyKey string, inspector StateInspector, prices *persistence.PriceHistoryStore) *QueryService {
	return &QueryService{
		partyKey:  partyKey,
		inspector: inspector,
		prices:    prices,
		startTime: time.Now(),
	}
}

// GetBalances returns per-currency settled, reserved and projected
// balances.
func (qs *QueryService) GetBalances(ctx context.Context) (*BalancesResponse, error) {
	resp := &BalancesResponse{PartyKey: qs.partyKey}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		for cur, settled := range st.BalanceMap {
			entry := BalanceEntry{
				Currency:     cur.String(),
				SettledUnits: settled.UnitsOr(),
				Settled:      settled.Fractional(),
			}
			if pending, ok := st.BalancePendingOrderDeltas[cur]; ok {
				entry.PendingDeltaUnits = pending.UnitsOr()
				entry.PendingDelta = pending.Fractional()
			}
			if projected, ok := st.BalanceWithDeltasApplied[cur]; ok {
				entry.ProjectedUnits = projected.UnitsOr()
				entry.Projected = projected.Fractional()
			}
			resp.Balances = append(resp.Balances, entry)
		}
		sort.Slice(resp.Balances, func(i, j int) bool {
			return resp.Balances[i].Currency < resp.Balances[j].Currency
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetOrders returns the orders currently eligible for external payout,
// after the confirmation cutoff and balance filters.
func (qs *QueryService) GetOrders(ctx context.Context) (*OrdersResponse, error) {
	resp := &OrdersResponse{PartyKey: qs.partyKey}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		for _, f := range st.OrdersDefaultCutoff() {
			resp.Orders = append(resp.Orders, orderResponseOf(f))
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetFulfillmentHistory returns up to limit settled fills, newest
// first.
func (qs *QueryService) GetFulfillmentHistory(ctx context.Context, limit int) (*FulfillmentHistoryResponse, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	resp := &FulfillmentHistoryResponse{PartyKey: qs.partyKey}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		history := st.FulfillmentHistory
		for i := len(history) - 1; i >= 0 && len(resp.Fulfillments) < limit; i-- {
			resp.Fulfillments = append(resp.Fulfillments, historyEntryOf(history[i]))
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetStakingBalances returns deployed stake per currency.
// includePortfolio folds in stake deployed toward portfolio targets.
func (qs *QueryService) GetStakingBalances(ctx context.Context, includeAMM, includePortfolio bool) (*StakingBalancesResponse, error) {
	resp := &StakingBalancesResponse{
		PartyKey: qs.partyKey,
		Balances: map[string]float64{},
	}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		for cur, amt := range st.StakingBalances(nil, includeAMM, includePortfolio) {
			resp.Balances[cur.String()] = amt.Fractional()
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPortfolioImbalance returns the last computed gap between requested
// allocations and deployed stake.
func (qs *QueryService) GetPortfolioImbalance(ctx context.Context) (*PortfolioImbalanceResponse, error) {
	resp := &PortfolioImbalanceResponse{
		PartyKey:  qs.partyKey,
		Imbalance: map[string]float64{},
	}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		for cur, amt := range st.Portfolio.CurrentPortfolioImbalance {
			resp.Imbalance[cur.String()] = amt.Fractional()
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPrices returns the current per-currency quote curves.
func (qs *QueryService) GetPrices(ctx context.Context) (*PricesResponse, error) {
	resp := &PricesResponse{PartyKey: qs.partyKey}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		for cur, cp := range st.CentralPrices {
			resp.Pairs = append(resp.Pairs, PricePairResponse{
				QuoteCurrency:   cur.String(),
				MinAsk:          cp.MinAsk,
				MinAskEstimated: cp.MinAskEstimated,
				MinBid:          cp.MinBid,
				MinBidEstimated: cp.MinBidEstimated,
				Time:            cp.Time,
			})
		}
		sort.Slice(resp.Pairs, func(i, j int) bool {
			return resp.Pairs[i].QuoteCurrency < resp.Pairs[j].QuoteCurrency
		})
		if est, ok := st.UsdRdgEstimate(); ok {
			resp.UsdRdgEstimate = est
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetLatestPrice returns the most recent persisted oracle quote for a
// currency.
func (qs *QueryService) GetLatestPrice(ctx context.Context, cur amount.Currency) (*LatestPriceResponse, bool, error) {
	if qs.prices == nil {
		return nil, false, nil
	}
	now := time.Now().UnixMilli()
	priceUSD, ok, err := qs.prices.MaxTimePriceBy(ctx, cur, now)
	if err != nil || !ok {
		return nil, false, err
	}
	return &LatestPriceResponse{
		Currency: cur.String(),
		PriceUSD: priceUSD,
		Time:     now,
	}, true, nil
}

// GetStatus summarizes node and aggregation state.
func (qs *QueryService) GetStatus(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{
		PartyKey:      qs.partyKey,
		EventCounts:   map[string]int64{},
		UptimeSeconds: time.Since(qs.startTime).Seconds(),
	}
	err := qs.inspector.Inspect(ctx, func(st *party.Events, seq int64) {
		resp.AsOfSequence = seq
		resp.Network = string(st.Network)
		for cur, n := range st.EventCounts() {
			resp.EventCounts[cur.String()] = n
		}
		resp.InternalEvents = st.NumInternalEvents()
		resp.ExternalEvents = st.NumExternalEvents()
		resp.UnconfirmedEvents = len(st.UnconfirmedEvents)
		resp.OpenSwapOrders = len(st.UnfulfilledSwapOrders)
		resp.OpenWithdrawals = len(st.UnfulfilledWithdrawals)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
