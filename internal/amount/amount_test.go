package amount_test

import (
	"testing"

	"SwapLedger/internal/amount"
)

func TestFromUnitsBTC(t *testing.T) {
	a := amount.FromUnits(amount.CurrencyBTC, 150_000)
	if a.Units != 150_000 {
		t.Errorf("units = %d, want 150_000", a.Units)
	}
	if a.HasBig() {
		t.Error("BTC amounts should not carry the big path")
	}
	if got := a.Fractional(); got != 0.0015 {
		t.Errorf("fractional = %v, want 0.0015", got)
	}
}

func TestFromUnitsETHExpandsToWei(t *testing.T) {
	a := amount.FromUnits(amount.CurrencyETH, 100_000_000)
	if !a.HasBig() {
		t.Fatal("ETH amounts must carry the exact wei value")
	}
	if got := a.Big.Decimal.String(); got != "1000000000000000000" {
		t.Errorf("wei = %s, want 1000000000000000000", got)
	}
	if got := a.UnitsOr(); got != 100_000_000 {
		t.Errorf("UnitsOr = %d, want 100_000_000", got)
	}
}

func TestFromWeiString(t *testing.T) {
	a, err := amount.FromWeiString("1500000000000000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := a.Fractional(); got != 1.5 {
		t.Errorf("fractional = %v, want 1.5", got)
	}
	if got := a.UnitsOr(); got != 150_000_000 {
		t.Errorf("UnitsOr = %d, want 150_000_000", got)
	}
}

func TestFromWeiStringInvalid(t *testing.T) {
	if _, err := amount.FromWeiString("not-a-number"); err == nil {
		t.Error("expected parse error")
	}
}

func TestAddSubPreservesCurrency(t *testing.T) {
	a := amount.FromUnits(amount.CurrencyBTC, 1_000)
	b := amount.FromUnits(amount.CurrencyBTC, 250)

	sum := a.Add(b)
	if sum.Units != 1_250 || sum.Currency != amount.CurrencyBTC {
		t.Errorf("sum = %+v, want 1250 BTC units", sum)
	}
	diff := a.Sub(b)
	if diff.Units != 750 {
		t.Errorf("diff = %d, want 750", diff.Units)
	}
}

func TestAddETHStaysExact(t *testing.T) {
	a, _ := amount.FromWeiString("1000000000000000001")
	b, _ := amount.FromWeiString("2")
	sum := a.Add(b)
	if got := sum.Big.Decimal.String(); got != "1000000000000000003" {
		t.Errorf("sum wei = %s, want 1000000000000000003", got)
	}
}

func TestMixedCurrencyArithmeticPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	amount.FromUnits(amount.CurrencyBTC, 1).Add(amount.FromUnits(amount.CurrencyRDG, 1))
}

func TestNegAndIsNegative(t *testing.T) {
	a := amount.FromUnits(amount.CurrencyRDG, 500).Neg()
	if !a.IsNegative() {
		t.Error("negated amount should be negative")
	}
	if got := a.Add(amount.FromUnits(amount.CurrencyRDG, 500)); !got.IsZero() {
		t.Errorf("a + |a| = %s, want 0", got)
	}
}

func TestCmp(t *testing.T) {
	small := amount.FromUnits(amount.CurrencyBTC, 1_000)
	large := amount.FromUnits(amount.CurrencyBTC, 2_000)
	if small.Cmp(large) != -1 || large.Cmp(small) != 1 || small.Cmp(small) != 0 {
		t.Error("Cmp ordering broken")
	}
}

func TestZeroETHCarriesBig(t *testing.T) {
	z := amount.Zero(amount.CurrencyETH)
	if !z.HasBig() || !z.IsZero() {
		t.Errorf("ETH zero = %+v, want exact zero with big path", z)
	}
}

func TestEqualAcrossCurrencies(t *testing.T) {
	a := amount.FromUnits(amount.CurrencyBTC, 100)
	b := amount.FromUnits(amount.CurrencyRDG, 100)
	if a.Equal(b) {
		t.Error("amounts in different currencies must not compare equal")
	}
}

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want amount.Currency
	}{
		{"btc", amount.CurrencyBTC},
		{"BTC", amount.CurrencyBTC},
		{"eth", amount.CurrencyETH},
		{"rdg", amount.CurrencyRDG},
	}
	for _, tc := range cases {
		got, ok := amount.ParseCurrency(tc.in)
		if !ok || got != tc.want {
			t.Errorf("ParseCurrency(%q) = %v/%v, want %v", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := amount.ParseCurrency("doge"); ok {
		t.Error("unknown currency should not parse")
	}
}
