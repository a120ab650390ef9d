package party

import (
	"context"
	"sort"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
)

// PriceOracle resolves historical USD prices for portfolio valuation.
type PriceOracle interface {
	// MaxTimePriceBy returns the latest known USD price for a currency
	// at or before the given unix-milli time. ok=false means no price
	// data exists that early.
	MaxTimePriceBy(ctx context.Context, cur amount.Currency, atOrBefore int64) (price float64, ok bool, err error)
}

// StakeUtxo keys a portfolio-allocated stake by its declaring UTXO so a
// later withdrawal consuming that UTXO unwinds it exactly once.
type StakeUtxo struct {
	UtxoID string
	Event  ConfirmedExternalStakeEvent
}

// PortfolioRequestEventInstance is one recorded allocation request.
type PortfolioRequestEventInstance struct {
	Event event.AddressEvent
	Tx    *event.LedgerTransaction
	Time  int64

	Request                  *event.PortfolioRequest
	Weightings               []event.PortfolioWeighting
	FixedCurrencyAllocations map[amount.Currency]float64

	// USD value of the request at registration time.
	ValueAtTime float64

	PortfolioRDGAmount amount.Amount
}

// FulfillmentValueUSD splits a request's value into the fulfilled and
// still-outstanding USD portions.
type FulfillmentValueUSD struct {
	Fulfilled   float64
	Unfulfilled float64
}

// PortfolioRequestEvents tracks requested target allocations against
// the stake actually deployed for them.
type PortfolioRequestEvents struct {
	Events []PortfolioRequestEventInstance

	// Stake currently deployed toward portfolio requests per currency.
	ExternalStakeBalanceDeltas map[amount.Currency]amount.Amount

	StakeUtxos []StakeUtxo

	// Positive means under-allocated, negative means excess stake.
	CurrentPortfolioImbalance map[amount.Currency]amount.Amount

	CurrentRDGAllocations map[amount.Currency]amount.Amount

	// Last computed per-request fulfilled/unfulfilled USD split, keyed
	// by request transaction hash. Refreshed by CurrentFulfillmentByEvent.
	EnrichedEvents map[string]map[amount.Currency]FulfillmentValueUSD
}

func NewPortfolioRequestEvents() PortfolioRequestEvents {
	return PortfolioRequestEvents{
		ExternalStakeBalanceDeltas: map[amount.Currency]amount.Amount{},
		CurrentPortfolioImbalance:  map[amount.Currency]amount.Amount{},
		CurrentRDGAllocations:      map[amount.Currency]amount.Amount{},
	}
}

// UsdRdgEstimate is the current USD price of RDG implied by the curve:
// the highest estimated bid across quoted currencies.
func (p *Events) UsdRdgEstimate() (float64, bool) {
	max := 0.0
	found := false
	for _, cp := range p.CentralPrices {
		if !found || cp.MinBidEstimated > max {
			max = cp.MinBidEstimated
			found = true
		}
	}
	return max, found
}

// handlePortfolioRequest registers an allocation request declared by an
// incoming internal transaction.
func (p *Events) handlePortfolioRequest(e event.AddressEvent, t int64, tx *event.InternalTx) error {
	pr := tx.Tx.PortfolioRequest()
	if pr == nil {
		return newError(ErrMissingField, "transaction carries no portfolio request").
			WithDetail("hash", tx.Tx.Hash)
	}

	var sum int64
	for _, a := range p.Addresses[amount.CurrencyRDG] {
		sum += tx.Tx.OutputAmountOfAddress(a.Value)
	}
	rdgAmount := amount.FromUnits(amount.CurrencyRDG, sum)

	usdRDG, _ := p.UsdRdgEstimate()
	p.Portfolio.Events = append(p.Portfolio.Events, PortfolioRequestEventInstance{
		Event:                    e,
		Tx:                       tx.Tx,
		Time:                     t,
		Request:                  pr,
		Weightings:               pr.Weightings,
		FixedCurrencyAllocations: pr.FixedCurrencyAllocations(),
		ValueAtTime:              usdRDG * rdgAmount.Fractional(),
		PortfolioRDGAmount:       rdgAmount,
	})
	return nil
}

// HandleMaybePortfolioStakeEvent credits a confirmed external stake to
// the portfolio tracking when its deposit declared portfolio params.
func (p *Events) HandleMaybePortfolioStakeEvent(ev ConfirmedExternalStakeEvent) {
	if ev.Pending.Deposit.PortfolioParams == nil {
		return
	}
	addDelta(p.Portfolio.ExternalStakeBalanceDeltas, ev.Tx.CurrencyAmount())
	reqs := ev.Pending.Tx.StakeRequests()
	if len(reqs) == 0 {
		return
	}
	p.Portfolio.StakeUtxos = append(p.Portfolio.StakeUtxos, StakeUtxo{
		UtxoID: reqs[0].UtxoID,
		Event:  ev,
	})
}

// HandleMaybePortfolioStakeWithdrawalEvent unwinds portfolio stake
// tracking when a settled withdrawal's initiating transaction consumed
// a tracked stake UTXO. Filtering by UTXO-id inequality makes repeated
// application a no-op.
func (p *Events) HandleMaybePortfolioStakeWithdrawalEvent(rec FulfillmentRecord) {
	init, ok := rec.Request.(*event.InternalTx)
	if !ok {
		return
	}
	var matched *StakeUtxo
	for _, u := range init.Tx.InputUtxoIDs {
		for i := range p.Portfolio.StakeUtxos {
			if p.Portfolio.StakeUtxos[i].UtxoID == u {
				matched = &p.Portfolio.StakeUtxos[i]
				break
			}
		}
		if matched != nil {
			break
		}
	}
	if matched == nil {
		return
	}
	ca := matched.Event.Tx.CurrencyAmount()
	if b, ok := p.Portfolio.ExternalStakeBalanceDeltas[ca.Currency]; ok {
		p.Portfolio.ExternalStakeBalanceDeltas[ca.Currency] = b.Sub(ca)
	}
	utxoID := matched.UtxoID
	kept := p.Portfolio.StakeUtxos[:0]
	for _, su := range p.Portfolio.StakeUtxos {
		if su.UtxoID != utxoID {
			kept = append(kept, su)
		}
	}
	p.Portfolio.StakeUtxos = kept
}

// CalculateUpdatePortfolioImbalance recomputes and caches the signed
// per-currency allocation gap.
func (p *Events) CalculateUpdatePortfolioImbalance(ctx context.Context, oracle PriceOracle) error {
	imbalance, err := p.CalculatePortfolioImbalance(ctx, oracle)
	if err != nil {
		return err
	}
	p.Portfolio.CurrentPortfolioImbalance = imbalance
	return nil
}

// CalculatePortfolioImbalance converts every recorded request into a
// per-currency target amount at the price prevailing when the request
// was made, then subtracts the stake already deployed. Positive means
// funds still need deploying; negative means excess stake. The result
// is recomputed whole each time, never adjusted incrementally.
func (p *Events) CalculatePortfolioImbalance(ctx context.Context, oracle PriceOracle) (map[amount.Currency]amount.Amount, error) {
	usdRDG, ok := p.UsdRdgEstimate()
	if !ok {
		usdRDG = defaultUsdRdgEstimate
	}

	requested := map[amount.Currency]amount.Amount{
		amount.CurrencyBTC: amount.Zero(amount.CurrencyBTC),
		amount.CurrencyETH: amount.Zero(amount.CurrencyETH),
	}
	rdgAllocations := map[amount.Currency]amount.Amount{}

	for _, e := range p.Portfolio.Events {
		for cur, alloc := range e.FixedCurrencyAllocations {
			pairUSD, havePrice, err := oracle.MaxTimePriceBy(ctx, cur, e.Time)
			if err != nil {
				return nil, err
			}
			rdgAlloc := e.PortfolioRDGAmount.Fractional() * alloc
			addDelta(rdgAllocations, amount.FromFractional(amount.CurrencyRDG, rdgAlloc))
			if !havePrice || pairUSD <= 0 {
				p.log.Error().
					Str("currency", cur.String()).
					Int64("time", e.Time).
					Msg("missing price data for portfolio allocation")
				continue
			}
			pairAmount := (rdgAlloc * usdRDG) / pairUSD
			addDelta(requested, amount.FromFractional(cur, pairAmount))
		}
	}
	p.Portfolio.CurrentRDGAllocations = rdgAllocations

	imbalance := map[amount.Currency]amount.Amount{}
	for cur, req := range requested {
		delta := req
		if deployed, ok := p.Portfolio.ExternalStakeBalanceDeltas[cur]; ok {
			delta = req.Sub(deployed)
		}
		imbalance[cur] = delta
	}
	return imbalance, nil
}

// defaultUsdRdgEstimate backstops valuation before any curve exists.
const defaultUsdRdgEstimate = 100.0

// CurrentFulfillmentByEvent approximates, per request transaction, the
// USD value already fulfilled by later stake deposits and the value
// still outstanding. Requests and stake arrivals are merged in time
// order and stake value is consumed oldest-request-first. Values are
// display-only approximations; settlement happens in RDG elsewhere.
// The latest result is kept on Portfolio.EnrichedEvents.
func (p *Events) CurrentFulfillmentByEvent() map[string]map[amount.Currency]FulfillmentValueUSD {
	type timed struct {
		time    int64
		request *PortfolioRequestEventInstance
		supply  *ConfirmedExternalStakeEvent
	}
	var all []timed
	for i := range p.Portfolio.Events {
		e := &p.Portfolio.Events[i]
		all = append(all, timed{time: e.Time, request: e})
	}
	for i := range p.Portfolio.StakeUtxos {
		s := &p.Portfolio.StakeUtxos[i].Event
		all = append(all, timed{time: s.Tx.Timestamp, supply: s})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].time < all[j].time })

	type openEntry struct {
		hash      string
		fulfilled float64
		remaining float64
	}
	open := map[amount.Currency][]openEntry{}

	for _, item := range all {
		if item.request != nil {
			for cur, alloc := range item.request.FixedCurrencyAllocations {
				open[cur] = append(open[cur], openEntry{
					hash:      item.request.Tx.Hash,
					remaining: alloc * item.request.ValueAtTime,
				})
			}
			continue
		}
		s := item.supply
		if s.Tx.PriceUSD == 0 {
			continue
		}
		usdValue := s.Tx.CurrencyAmount().Fractional() * s.Tx.PriceUSD
		cur := s.Tx.Chain
		entries := open[cur]
		for i := range entries {
			entry := &entries[i]
			if usdValue <= 0 || entry.remaining <= 0 {
				continue
			}
			if entry.remaining > usdValue {
				entry.remaining -= usdValue
				entry.fulfilled += usdValue
				usdValue = 0
				continue
			}
			usdValue -= entry.remaining
			entry.fulfilled += entry.remaining
			entry.remaining = 0
			// Fully fulfilled entries stay so their fulfilled value is
			// still reported, with nothing left to consume supply.
		}
	}

	out := map[string]map[amount.Currency]FulfillmentValueUSD{}
	for cur, entries := range open {
		for _, entry := range entries {
			byCur, ok := out[entry.hash]
			if !ok {
				byCur = map[amount.Currency]FulfillmentValueUSD{}
				out[entry.hash] = byCur
			}
			byCur[cur] = FulfillmentValueUSD{
				Fulfilled:   entry.fulfilled,
				Unfulfilled: entry.remaining,
			}
		}
	}
	p.Portfolio.EnrichedEvents = out
	return out
}
