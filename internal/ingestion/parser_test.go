package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseExternalTx(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":         "btc-abc123",
		"timestamp_ms":  int64(1700000000000),
		"other_address": "bc1-sender",
		"amount":        int64(25_000),
		"currency":      "BTC",
		"incoming":      true,
		"fee_units":     int64(850),
		"block_number":  int64(820_000),
		"price_usd":     float64(60_000),
	}

	raw := rawFromJSON(t, payload)
	msg, err := ingestion.ParseRawEvent(raw, "ExternalTx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx, ok := msg.Event.(*event.ExternalTx)
	if !ok {
		t.Fatalf("expected *event.ExternalTx, got %T", msg.Event)
	}

	if tx.TxID != "btc-abc123" {
		t.Errorf("tx_id: got %s, want btc-abc123", tx.TxID)
	}
	if tx.Chain != amount.CurrencyBTC {
		t.Errorf("currency: got %s, want BTC", tx.Chain)
	}
	if tx.Amount != 25_000 {
		t.Errorf("amount: got %d, want 25_000", tx.Amount)
	}
	if !tx.In {
		t.Error("incoming flag lost")
	}
	if tx.Fee == nil || tx.Fee.Units != 850 {
		t.Errorf("fee: got %+v, want 850 sats", tx.Fee)
	}
	if usd, ok := tx.UsdPrice(); !ok || usd != 60_000 {
		t.Errorf("price_usd: got %v/%v, want 60_000", usd, ok)
	}
}

func TestParseExternalTxExactWei(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":         "eth-def456",
		"timestamp_ms":  int64(1700000000000),
		"other_address": "0xsender",
		"amount":        int64(100_000_000),
		"bigint_amount": "1000000000000000000",
		"currency":      "ETH",
		"incoming":      true,
	}

	raw := rawFromJSON(t, payload)
	msg, err := ingestion.ParseRawEvent(raw, "ExternalTx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx := msg.Event.(*event.ExternalTx)
	ca := tx.CurrencyAmount()
	if !ca.HasBig() {
		t.Fatal("ETH amount should resolve through the exact wei path")
	}
	if got := ca.Big.Decimal.String(); got != "1000000000000000000" {
		t.Errorf("wei: got %s, want 1000000000000000000", got)
	}
}

func TestParseInternalTxSwap(t *testing.T) {
	payload := map[string]interface{}{
		"tx": map[string]interface{}{
			"hash":            "rdg-tx-1",
			"time_ms":         int64(1700000000000),
			"input_addresses": []string{"alice-rdg"},
			"outputs": []map[string]interface{}{
				{"address": "party-rdg", "amount": int64(500_000_000)},
			},
			"swap_destination": map[string]interface{}{
				"value":    "bc1-alice",
				"currency": "BTC",
			},
		},
		"price_usd":       float64(100),
		"queried_address": "party-rdg",
	}

	raw := rawFromJSON(t, payload)
	msg, err := ingestion.ParseRawEvent(raw, "InternalTx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx, ok := msg.Event.(*event.InternalTx)
	if !ok {
		t.Fatalf("expected *event.InternalTx, got %T", msg.Event)
	}

	if tx.Tx.Hash != "rdg-tx-1" {
		t.Errorf("hash: got %s, want rdg-tx-1", tx.Tx.Hash)
	}
	dest := tx.Tx.SwapDestination()
	if dest == nil || dest.Value != "bc1-alice" || dest.Currency != amount.CurrencyBTC {
		t.Errorf("swap destination: got %+v, want bc1-alice/BTC", dest)
	}
	if got := tx.Tx.OutputAmountOfAddress("party-rdg"); got != 500_000_000 {
		t.Errorf("output amount: got %d, want 500_000_000", got)
	}
}

func TestParseInternalTxStakeRequests(t *testing.T) {
	payload := map[string]interface{}{
		"tx": map[string]interface{}{
			"hash":    "rdg-tx-2",
			"time_ms": int64(1700000000000),
			"stake_requests": []map[string]interface{}{
				{
					"utxo_id": "rdg-tx-2:0",
					"deposit": map[string]interface{}{
						"external": map[string]interface{}{
							"address":  "bc1-staker",
							"amount":   int64(20_000),
							"currency": "BTC",
						},
					},
				},
				{
					"utxo_id": "rdg-tx-2:1",
					"withdrawal": map[string]interface{}{
						"destination": map[string]interface{}{
							"value":    "bc1-payout",
							"currency": "BTC",
						},
					},
				},
			},
		},
		"queried_address": "party-rdg",
	}

	raw := rawFromJSON(t, payload)
	msg, err := ingestion.ParseRawEvent(raw, "InternalTx")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx := msg.Event.(*event.InternalTx)
	reqs := tx.Tx.StakeRequests()
	if len(reqs) != 2 {
		t.Fatalf("stake requests: got %d, want 2", len(reqs))
	}
	dep := reqs[0].Deposit
	if dep == nil || dep.External == nil {
		t.Fatal("first request should be an external deposit intent")
	}
	if dep.External.Amount.Units != 20_000 || dep.External.Amount.Currency != amount.CurrencyBTC {
		t.Errorf("deposit amount: got %+v, want 20_000 sats", dep.External.Amount)
	}
	wd := reqs[1].Withdrawal
	if wd == nil || wd.Destination.Value != "bc1-payout" {
		t.Errorf("withdrawal destination: got %+v, want bc1-payout", wd)
	}
}

func TestParsePriceTick(t *testing.T) {
	payload := map[string]interface{}{
		"currency":  "ETH",
		"price_usd": float64(3_200.50),
		"time_ms":   int64(1700000000000),
	}

	raw := rawFromJSON(t, payload)
	msg, err := ingestion.ParseRawEvent(raw, "PriceTick")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if msg.Tick == nil {
		t.Fatal("expected a price tick")
	}
	if msg.Tick.Currency != amount.CurrencyETH {
		t.Errorf("currency: got %s, want ETH", msg.Tick.Currency)
	}
	if msg.Tick.PriceUSD != 3_200.50 {
		t.Errorf("price: got %v, want 3200.50", msg.Tick.PriceUSD)
	}
}

func TestParseExternalTxMissingTxID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"amount":   int64(1_000),
		"currency": "BTC",
		"incoming": true,
	}
	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "ExternalTx"); err == nil {
		t.Fatal("expected error for missing tx_id")
	}
}

func TestParseExternalTxUnknownCurrency_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":    "x",
		"amount":   int64(1_000),
		"currency": "DOGE",
		"incoming": true,
	}
	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "ExternalTx"); err == nil {
		t.Fatal("expected error for unknown currency")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	if _, err := ingestion.ParseRawEvent(raw, "NonExistentType"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	if _, err := ingestion.ParseRawEvent(raw, "ExternalTx"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParsePriceTickNonPositive_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"currency":  "BTC",
		"price_usd": float64(0),
	}
	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PriceTick"); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}
