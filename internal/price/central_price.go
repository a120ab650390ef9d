// Package price implements the per-currency central price curve the
// settlement engine quotes taker orders against.
package price

import (
	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/order"
)

// DustLimit is the smallest RDG output worth settling.
const DustLimit int64 = 2500

// defaultBaseMinUSD is the floor USD price per RDG below which asks are
// not quoted.
const defaultBaseMinUSD = 100.0

// defaultBidScale widens the bid side relative to the ask.
const defaultBidScale = 1.1

// takerFeeFraction is retained from external deposits quoted through USD.
const takerFeeFraction = 0.98

// ExpectedFeeAmount is the fee floor for settling a payout in a
// currency. ok=false means the currency has no payout path.
func ExpectedFeeAmount(cur amount.Currency, network event.Network) (amount.Amount, bool) {
	switch cur {
	case amount.CurrencyRDG:
		return amount.FromFractional(amount.CurrencyRDG, 0.0001), true
	case amount.CurrencyBTC:
		sats := int64(2_000)
		if network.IsMain() {
			sats = 850
		}
		return amount.FromUnits(amount.CurrencyBTC, sats), true
	case amount.CurrencyETH:
		// 21k gas at a fixed normal gas price.
		gasPrice := "12793670539"
		if network.IsMain() {
			gasPrice = "16511746820"
		}
		p, err := amount.FromWeiString(gasPrice)
		if err != nil {
			return amount.Amount{}, false
		}
		return p.MulInt(21_000), true
	default:
		return amount.Amount{}, false
	}
}

// CentralPricePair is the quoting/liquidity model for one external
// currency paired against RDG. Prices are denominated RDG per pair
// unit; estimated variants are USD per RDG.
type CentralPricePair struct {
	MinAsk          float64 `json:"min_ask"`
	MinAskEstimated float64 `json:"min_ask_estimated"`
	MinBid          float64 `json:"min_bid"`
	MinBidEstimated float64 `json:"min_bid_estimated"`

	// Oracle-resolved event time of the closest trade event.
	Time int64 `json:"time"`

	BaseCurrency      amount.Currency `json:"base_currency"`       // RDG
	PairQuoteCurrency amount.Currency `json:"pair_quote_currency"` // BTC, ETH, ...

	// RDG/pair reserve ratio.
	ReserveRatioPair float64 `json:"reserve_ratio_pair"`

	BaseVolume      amount.Amount `json:"base_volume"`
	PairQuoteVolume amount.Amount `json:"pair_quote_volume"`

	// USD per pair unit, from the external oracle.
	PairQuotePriceEstimate float64 `json:"pair_quote_price_estimate"`
}

// FulfillTakerOrder attempts to fill up to orderAmount against current
// liquidity. The fulfilled amount is clamped to the available reserve
// volume, so a request larger than liquidity still fills partially.
// Returns nil when there is no liquidity or the fill lands below the
// destination currency's fee floor. A same-currency fill never exceeds
// the requested amount.
func (cp *CentralPricePair) FulfillTakerOrder(
	orderAmount amount.Amount,
	isAsk bool,
	eventTime int64,
	txID *order.ExternalTxID,
	destination event.Address,
	primaryEvent event.AddressEvent,
	network event.Network,
) *order.Fulfillment {
	if cp.PairQuotePriceEstimate <= 0 {
		return nil
	}

	fromRDG := orderAmount.Currency == amount.CurrencyRDG

	var fulfilledUSD float64
	if fromRDG {
		fulfilledUSD = orderAmount.Fractional() * cp.baseUSD()
	} else {
		fulfilledUSD = orderAmount.Fractional() * cp.PairQuotePriceEstimate * takerFeeFraction
	}

	var fulfilledCur amount.Currency
	var fulfilledFrac float64
	if fromRDG {
		fulfilledCur = destination.Currency
		fulfilledFrac = fulfilledUSD / cp.PairQuotePriceEstimate
	} else {
		fulfilledCur = amount.CurrencyRDG
		fulfilledFrac = fulfilledUSD / cp.baseUSD()
	}
	if fulfilledFrac <= 0 {
		return nil
	}

	fulfilled := amount.FromFractional(fulfilledCur, fulfilledFrac)

	// Same-currency fills are clamped to the requested size.
	if fulfilledCur == orderAmount.Currency && fulfilled.Cmp(orderAmount) > 0 {
		fulfilled = orderAmount
	}

	// Never oversell the reserve volume: clamp the fill to what is
	// actually there. Empty or mismatched reserves fall through to the
	// fee floor check below.
	vol := cp.BaseVolume
	if fromRDG {
		vol = cp.PairQuoteVolume
	}
	if vol.Currency != fulfilled.Currency {
		return nil
	}
	if fulfilled.Cmp(vol) > 0 {
		fulfilled = vol
	}

	fee, ok := ExpectedFeeAmount(fulfilledCur, network)
	if !ok || fulfilled.Cmp(fee) < 0 {
		return nil
	}

	return &order.Fulfillment{
		OrderAmount:              orderAmount.UnitsOr(),
		FulfilledAmount:          fulfilled.UnitsOr(),
		OrderAmountTyped:         orderAmount,
		FulfilledAmountTyped:     fulfilled,
		IsAskFromExternalDeposit: isAsk,
		EventTime:                eventTime,
		TxIDRef:                  txID,
		Destination:              destination,
		PrimaryEvent:             primaryEvent,
	}
}

// baseUSD is the USD price per RDG used when converting through the
// base side of the pair.
func (cp *CentralPricePair) baseUSD() float64 {
	if cp.MinAskEstimated > 0 {
		return cp.MinAskEstimated
	}
	return defaultBaseMinUSD
}

// RecalculateNoQuotePriceChange recomputes each currency's curve from
// updated reserve balances while keeping the oracle quote prices fixed,
// anchoring drift to balance changes only. The input map is not
// modified; a failure leaves the caller's prices untouched.
func RecalculateNoQuotePriceChange(
	existing map[amount.Currency]CentralPricePair,
	reserveVolumes map[amount.Currency]amount.Amount,
	t int64,
) (map[amount.Currency]CentralPricePair, error) {
	quotes := make(map[amount.Currency]float64, len(existing))
	for cur, cp := range existing {
		quotes[cur] = cp.PairQuotePriceEstimate
	}
	return CalculateCentralPricesBidAsk(quotes, reserveVolumes, t, 0, 0)
}

// CalculateCentralPricesBidAsk derives a full curve per external
// currency from oracle USD quotes and the party's reserve volumes.
// enforcedBaseMinUSD and bidScale fall back to defaults when zero.
func CalculateCentralPricesBidAsk(
	quotesUSD map[amount.Currency]float64,
	reserveVolumes map[amount.Currency]amount.Amount,
	t int64,
	enforcedBaseMinUSD float64,
	bidScale float64,
) (map[amount.Currency]CentralPricePair, error) {
	if enforcedBaseMinUSD == 0 {
		enforcedBaseMinUSD = defaultBaseMinUSD
	}
	if bidScale == 0 {
		bidScale = defaultBidScale
	}

	out := make(map[amount.Currency]CentralPricePair)

	coreVol, ok := reserveVolumes[amount.CurrencyRDG]
	if !ok {
		// No base reserve: nothing to quote against.
		return out, nil
	}

	for cur, vol := range reserveVolumes {
		if cur == amount.CurrencyRDG {
			continue
		}
		quote, ok := quotesUSD[cur]
		if !ok || quote <= 0 {
			continue
		}
		pairFrac := vol.Fractional()
		if pairFrac <= 0 {
			continue
		}

		// RDG per pair unit implied by the reserve ratio.
		reserveRatio := coreVol.Fractional() / pairFrac

		// (USD/pair) / (RDG/pair) = USD/RDG.
		usdPerRDG := quote / reserveRatio
		askUSD := usdPerRDG
		if askUSD < enforcedBaseMinUSD {
			askUSD = enforcedBaseMinUSD
		}

		// Back out the ask in RDG/pair at the enforced USD floor.
		askRDGPair := (1.0 / askUSD) * quote

		bidRDGPair := bidScale * askRDGPair
		bidUSD := quote / bidRDGPair

		out[cur] = CentralPricePair{
			MinAsk:                 askRDGPair,
			MinAskEstimated:        askUSD,
			MinBid:                 bidRDGPair,
			MinBidEstimated:        bidUSD,
			Time:                   t,
			BaseCurrency:           amount.CurrencyRDG,
			PairQuoteCurrency:      cur,
			ReserveRatioPair:       reserveRatio,
			BaseVolume:             coreVol,
			PairQuoteVolume:        vol,
			PairQuotePriceEstimate: quote,
		}
	}

	return out, nil
}
