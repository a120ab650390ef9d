package price_test

import (
	"testing"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/order"
	"SwapLedger/internal/price"
)

func testCurve(t *testing.T) price.CentralPricePair {
	t.Helper()
	prices, err := price.CalculateCentralPricesBidAsk(
		map[amount.Currency]float64{amount.CurrencyBTC: 60_000},
		map[amount.Currency]amount.Amount{
			amount.CurrencyRDG: amount.FromUnits(amount.CurrencyRDG, 10_000_000_000), // 100 RDG
			amount.CurrencyBTC: amount.FromUnits(amount.CurrencyBTC, 50_000),         // 0.0005 BTC
		},
		1_000, 0, 0,
	)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	cp, ok := prices[amount.CurrencyBTC]
	if !ok {
		t.Fatal("no BTC curve produced")
	}
	return cp
}

func TestCalculateCentralPricesEnforcesBaseMin(t *testing.T) {
	cp := testCurve(t)
	// Reserve-implied price is 0.30 USD/RDG, well under the floor.
	if cp.MinAskEstimated != 100 {
		t.Errorf("ask USD = %v, want floor 100", cp.MinAskEstimated)
	}
	if cp.MinBid <= cp.MinAsk {
		t.Errorf("bid %v should exceed ask %v (RDG per BTC)", cp.MinBid, cp.MinAsk)
	}
	if cp.MinBidEstimated >= cp.MinAskEstimated {
		t.Errorf("bid USD %v should be below ask USD %v", cp.MinBidEstimated, cp.MinAskEstimated)
	}
	if cp.PairQuoteCurrency != amount.CurrencyBTC || cp.BaseCurrency != amount.CurrencyRDG {
		t.Errorf("pair = %s/%s, want RDG/BTC", cp.BaseCurrency, cp.PairQuoteCurrency)
	}
}

func TestCalculateCentralPricesNoBaseReserve(t *testing.T) {
	prices, err := price.CalculateCentralPricesBidAsk(
		map[amount.Currency]float64{amount.CurrencyBTC: 60_000},
		map[amount.Currency]amount.Amount{
			amount.CurrencyBTC: amount.FromUnits(amount.CurrencyBTC, 50_000),
		},
		1_000, 0, 0,
	)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("curves without RDG reserve = %d, want 0", len(prices))
	}
}

func TestFulfillTakerOrderAsk(t *testing.T) {
	cp := testCurve(t)
	dest := event.Address{Value: "carol", Currency: amount.CurrencyRDG}
	txID := &order.ExternalTxID{Identifier: "btc-1", Chain: amount.CurrencyBTC}

	of := cp.FulfillTakerOrder(
		amount.FromUnits(amount.CurrencyBTC, 5_000),
		true, 2_000, txID, dest, nil, event.NetworkTest,
	)
	if of == nil {
		t.Fatal("expected a fulfillment")
	}
	// 5000 sats * 60k USD/BTC * 0.98 = 2.94 USD -> 0.0294 RDG.
	if of.FulfilledAmount < 2_930_000 || of.FulfilledAmount > 2_950_000 {
		t.Errorf("fulfilled = %d RDG units, want ~2_940_000", of.FulfilledAmount)
	}
	if of.FulfilledAmountTyped.Currency != amount.CurrencyRDG {
		t.Errorf("fulfilled currency = %s, want RDG", of.FulfilledAmountTyped.Currency)
	}
	if !of.IsAskFromExternalDeposit {
		t.Error("ask fill should carry the external-deposit flag")
	}
}

func TestFulfillTakerOrderBelowFeeFloor(t *testing.T) {
	cp := testCurve(t)
	dest := event.Address{Value: "carol", Currency: amount.CurrencyRDG}

	// 3 sats converts to well under the 0.0001 RDG fee floor.
	of := cp.FulfillTakerOrder(
		amount.FromUnits(amount.CurrencyBTC, 3),
		true, 2_000, nil, dest, nil, event.NetworkTest,
	)
	if of != nil {
		t.Errorf("expected nil below fee floor, got %+v", of)
	}
}

func TestFulfillTakerOrderClampsToReserveVolume(t *testing.T) {
	cp := testCurve(t)
	dest := event.Address{Value: "carol", Currency: amount.CurrencyRDG}

	// A deposit whose RDG value exceeds the whole base reserve fills
	// partially, capped at the reserve.
	of := cp.FulfillTakerOrder(
		amount.FromUnits(amount.CurrencyBTC, 100_000_000_000),
		true, 2_000, nil, dest, nil, event.NetworkTest,
	)
	if of == nil {
		t.Fatal("expected a partial fill, got nil")
	}
	if of.FulfilledAmount != cp.BaseVolume.Units {
		t.Errorf("fulfilled = %d RDG units, want reserve volume %d",
			of.FulfilledAmount, cp.BaseVolume.Units)
	}
	if of.OrderAmount != 100_000_000_000 {
		t.Errorf("order amount = %d, want the original requested size", of.OrderAmount)
	}
}

func TestFulfillTakerOrderEmptyReserve(t *testing.T) {
	cp := testCurve(t)
	cp.BaseVolume = amount.Zero(amount.CurrencyRDG)
	dest := event.Address{Value: "carol", Currency: amount.CurrencyRDG}

	of := cp.FulfillTakerOrder(
		amount.FromUnits(amount.CurrencyBTC, 5_000),
		true, 2_000, nil, dest, nil, event.NetworkTest,
	)
	if of != nil {
		t.Errorf("expected nil with an empty reserve, got %+v", of)
	}
}

func TestFulfillTakerOrderNoQuote(t *testing.T) {
	var cp price.CentralPricePair
	of := cp.FulfillTakerOrder(
		amount.FromUnits(amount.CurrencyBTC, 5_000),
		true, 2_000, nil, event.Address{Currency: amount.CurrencyRDG}, nil, event.NetworkTest,
	)
	if of != nil {
		t.Error("expected nil without a quote price")
	}
}

func TestRecalculateHoldsQuoteFixed(t *testing.T) {
	cp := testCurve(t)
	existing := map[amount.Currency]price.CentralPricePair{amount.CurrencyBTC: cp}

	next, err := price.RecalculateNoQuotePriceChange(existing,
		map[amount.Currency]amount.Amount{
			amount.CurrencyRDG: amount.FromUnits(amount.CurrencyRDG, 9_000_000_000),
			amount.CurrencyBTC: amount.FromUnits(amount.CurrencyBTC, 55_000),
		},
		2_000,
	)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	got := next[amount.CurrencyBTC]
	if got.PairQuotePriceEstimate != cp.PairQuotePriceEstimate {
		t.Errorf("quote moved: %v -> %v", cp.PairQuotePriceEstimate, got.PairQuotePriceEstimate)
	}
	if got.ReserveRatioPair == cp.ReserveRatioPair {
		t.Error("reserve ratio should reflect the new balances")
	}
	if got.Time != 2_000 {
		t.Errorf("time = %d, want 2_000", got.Time)
	}
}

func TestExpectedFeeAmount(t *testing.T) {
	fee, ok := price.ExpectedFeeAmount(amount.CurrencyBTC, event.NetworkMain)
	if !ok || fee.Units != 850 {
		t.Errorf("mainnet BTC fee = %v/%v, want 850 sats", fee.Units, ok)
	}
	fee, ok = price.ExpectedFeeAmount(amount.CurrencyBTC, event.NetworkTest)
	if !ok || fee.Units != 2_000 {
		t.Errorf("testnet BTC fee = %v/%v, want 2_000 sats", fee.Units, ok)
	}
	fee, ok = price.ExpectedFeeAmount(amount.CurrencyRDG, event.NetworkMain)
	if !ok || fee.Units != 10_000 {
		t.Errorf("RDG fee = %v/%v, want 10_000 units", fee.Units, ok)
	}
	fee, ok = price.ExpectedFeeAmount(amount.CurrencyETH, event.NetworkTest)
	if !ok || !fee.HasBig() {
		t.Errorf("ETH fee should use the exact wei path, got %+v", fee)
	}
	if _, ok := price.ExpectedFeeAmount(amount.CurrencyXMR, event.NetworkMain); ok {
		t.Error("XMR has no payout path")
	}
}
