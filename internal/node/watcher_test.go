package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/node"
	"SwapLedger/internal/party"
	"SwapLedger/internal/persistence"
)

const testPartyKey = "party-test"

func newTestParty() *party.Events {
	return party.New(party.Config{
		Network: event.NetworkTest,
		Addresses: map[amount.Currency][]event.Address{
			amount.CurrencyRDG: {{Value: "rdg-party-addr", Currency: amount.CurrencyRDG}},
			amount.CurrencyBTC: {{Value: "bc1-party-addr", Currency: amount.CurrencyBTC}},
		},
		Logger: zerolog.Nop(),
	})
}

type watcherHarness struct {
	watcher     *node.Watcher
	rawChan     chan ingestion.RawEvent
	persistChan chan persistence.WriteRequest
	orderChan   chan ingestion.PublishableOrder
	cancel      context.CancelFunc
	done        chan struct{}
}

func startWatcher(t *testing.T) *watcherHarness {
	t.Helper()

	h := &watcherHarness{
		rawChan:     make(chan ingestion.RawEvent, 16),
		persistChan: make(chan persistence.WriteRequest, 16),
		orderChan:   make(chan ingestion.PublishableOrder, 16),
		done:        make(chan struct{}),
	}

	h.watcher = node.NewWatcher(node.Config{
		PartyKey:    testPartyKey,
		Party:       newTestParty(),
		Idempotency: node.NewIdempotencyChecker(128, nil),
		PersistChan: h.persistChan,
		OrderChan:   h.orderChan,
		Logger:      zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.watcher.Run(ctx, h.rawChan)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return h
}

func (h *watcherHarness) send(t *testing.T, subject string, payload string) {
	t.Helper()
	acked := make(chan struct{}, 1)
	h.rawChan <- ingestion.RawEvent{
		Subject:   subject,
		Data:      []byte(payload),
		Timestamp: time.Now(),
		AckFunc:   func() { acked <- struct{}{} },
		NakFunc:   func() {},
	}
	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatalf("message on %s was not acked", subject)
	}
}

func (h *watcherHarness) nextWrite(t *testing.T) persistence.WriteRequest {
	t.Helper()
	select {
	case req := <-h.persistChan:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no write request received")
		return persistence.WriteRequest{}
	}
}

const btcDepositJSON = `{
	"tx_id": "btc-tx-1",
	"timestamp_ms": 1700000000000,
	"other_address": "bc1-depositor",
	"amount": 50000000,
	"currency": "BTC",
	"incoming": true,
	"price_usd": 60000
}`

func TestWatcherAppliesExternalDeposit(t *testing.T) {
	h := startWatcher(t)

	h.send(t, "swap.chain.btc.tx.btc-tx-1", btcDepositJSON)

	req := h.nextWrite(t)
	if req.Event == nil {
		t.Fatal("deposit produced no event row")
	}
	if req.Event.Identifier != "btc-tx-1" {
		t.Errorf("identifier = %q, want btc-tx-1", req.Event.Identifier)
	}
	if req.Event.EventKind != "external" {
		t.Errorf("event kind = %q, want external", req.Event.EventKind)
	}
	if req.Event.Sequence != 0 {
		t.Errorf("first sequence = %d, want 0", req.Event.Sequence)
	}
	if len(req.Prices) == 0 {
		t.Error("deposit carried a USD quote but no price rows were written")
	}

	err := h.watcher.Inspect(context.Background(), func(st *party.Events, seq int64) {
		if seq != 1 {
			t.Errorf("sequence after one event = %d, want 1", seq)
		}
		got := st.BalanceMap[amount.CurrencyBTC].UnitsOr()
		if got != 50_000_000 {
			t.Errorf("BTC balance = %d, want 50000000", got)
		}
		if len(st.UnfulfilledSwapOrders) != 1 {
			t.Errorf("open swap orders = %d, want 1", len(st.UnfulfilledSwapOrders))
		}
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}

	select {
	case po := <-h.orderChan:
		if po.Side != "ask" {
			t.Errorf("published side = %q, want ask", po.Side)
		}
		if po.PartyKey != testPartyKey {
			t.Errorf("published party = %q, want %q", po.PartyKey, testPartyKey)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deposit fill was not published")
	}
}

func TestWatcherDeduplicatesRedelivery(t *testing.T) {
	h := startWatcher(t)

	h.send(t, "swap.chain.btc.tx.btc-tx-1", btcDepositJSON)
	h.nextWrite(t)

	// Redelivery of the same identifier must be acked without a second
	// write or a second balance credit.
	h.send(t, "swap.chain.btc.tx.btc-tx-1", btcDepositJSON)

	// A price tick flushes through the same loop; seeing it first on
	// the persist channel proves the duplicate wrote nothing.
	h.send(t, "swap.prices.btc", `{"currency":"BTC","price_usd":61000,"time_ms":1700000001000}`)
	req := h.nextWrite(t)
	if req.Event != nil {
		t.Fatalf("duplicate delivery produced event row %q", req.Event.Identifier)
	}

	err := h.watcher.Inspect(context.Background(), func(st *party.Events, seq int64) {
		if seq != 1 {
			t.Errorf("sequence = %d, want 1", seq)
		}
		got := st.BalanceMap[amount.CurrencyBTC].UnitsOr()
		if got != 50_000_000 {
			t.Errorf("BTC balance after redelivery = %d, want 50000000", got)
		}
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestWatcherPersistsPriceTicks(t *testing.T) {
	h := startWatcher(t)

	h.send(t, "swap.prices.eth", `{"currency":"ETH","price_usd":3200.5,"time_ms":1700000002000}`)

	req := h.nextWrite(t)
	if req.Event != nil {
		t.Error("price tick should not produce an event row")
	}
	if len(req.Prices) != 1 {
		t.Fatalf("price rows = %d, want 1", len(req.Prices))
	}
	row := req.Prices[0]
	if row.Currency != "ETH" || row.PriceUSD != 3200.5 || row.Time != 1700000002000 {
		t.Errorf("unexpected price row %+v", row)
	}
}

func TestWatcherAcksUnparseableMessage(t *testing.T) {
	h := startWatcher(t)

	// Malformed payloads are acked so they do not redeliver forever.
	h.send(t, "swap.chain.btc.tx.bad", `{not json`)

	h.send(t, "swap.prices.btc", `{"currency":"BTC","price_usd":59000,"time_ms":1700000003000}`)
	req := h.nextWrite(t)
	if req.Event != nil || len(req.Prices) != 1 {
		t.Errorf("malformed message leaked a write: %+v", req)
	}
}
