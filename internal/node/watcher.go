package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/order"
	"SwapLedger/internal/party"
	"SwapLedger/internal/persistence"
)

// Config wires a Watcher to its collaborators.
type Config struct {
	PartyKey    string
	Party       *party.Events
	Oracle      party.PriceOracle
	Idempotency *IdempotencyChecker

	// Blocking: the loop stalls until the persistence worker drains.
	PersistChan chan<- persistence.WriteRequest
	// Non-blocking: dropped orders are re-derivable from state.
	OrderChan chan<- ingestion.PublishableOrder
	// Pre-parsed observations injected by admin tooling, bypassing NATS.
	AdminChan <-chan ingestion.ParsedMessage

	Metrics *observability.Metrics
	Health  *observability.HealthChecker
	Logger  zerolog.Logger

	// Zero disables the periodic portfolio imbalance recompute.
	ImbalanceInterval time.Duration
}

// Watcher owns one party's state. All mutation happens on the single
// Run goroutine; reads go through Inspect, which executes on that same
// goroutine. This is the only concurrency boundary around
// party.Events.
type Watcher struct {
	cfg       Config
	partyKey  string
	state     *party.Events
	seq       int64
	queryChan chan query
	log       zerolog.Logger
}

type query struct {
	fn   func(st *party.Events, seq int64)
	done chan struct{}
}

func NewWatcher(cfg Config) *Watcher {
	return &Watcher{
		cfg:       cfg,
		partyKey:  cfg.PartyKey,
		state:     cfg.Party,
		queryChan: make(chan query),
		log:       cfg.Logger.With().Str("party", cfg.PartyKey).Logger(),
	}
}

// Replay rebuilds party state by re-folding the persisted event log.
// Must be called before Run.
func (w *Watcher) Replay(ctx context.Context, reader *persistence.EventLogReader) error {
	start := time.Now()
	const batch = 1000
	from := int64(0)
	total := 0

	for {
		envelopes, err := reader.LoadEnvelopesFrom(ctx, w.partyKey, from, batch)
		if err != nil {
			return fmt.Errorf("load envelopes from %d: %w", from, err)
		}
		for i := range envelopes {
			env := &envelopes[i]
			ev, err := env.Event()
			if err != nil {
				return err
			}
			if err := w.state.ProcessEvent(ev); err != nil {
				w.log.Error().Err(err).
					Str("identifier", env.Identifier()).
					Int64("sequence", env.Sequence).
					Msg("replay event rejected")
			}
			if w.cfg.Idempotency != nil {
				w.cfg.Idempotency.MarkProcessed(w.partyKey, env.Identifier())
			}
			w.seq = env.Sequence + 1
			total++
		}
		if len(envelopes) < batch {
			break
		}
		from = w.seq
	}

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ReplayEventsTotal.Add(float64(total))
		w.cfg.Metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	w.log.Info().Int("events", total).Dur("took", time.Since(start)).Msg("replay complete")
	return nil
}

// Run drains the ingest channel until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, in <-chan ingestion.RawEvent) error {
	var imbalanceTick <-chan time.Time
	if w.cfg.Oracle != nil && w.cfg.ImbalanceInterval > 0 {
		ticker := time.NewTicker(w.cfg.ImbalanceInterval)
		defer ticker.Stop()
		imbalanceTick = ticker.C
	}

	if w.cfg.Health != nil {
		w.cfg.Health.SetReady(true)
		defer w.cfg.Health.SetReady(false)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-in:
			if !ok {
				return nil
			}
			w.handleRaw(ctx, raw)

		case parsed := <-w.cfg.AdminChan:
			w.handleParsed(ctx, parsed, time.Now())

		case q := <-w.queryChan:
			q.fn(w.state, w.seq)
			close(q.done)

		case <-imbalanceTick:
			if err := w.state.CalculateUpdatePortfolioImbalance(ctx, w.cfg.Oracle); err != nil {
				w.log.Warn().Err(err).Msg("portfolio imbalance recompute failed")
			}
		}
	}
}

// Inspect runs fn on the watcher goroutine against the live party
// state. seq is the next sequence to be assigned, i.e. the number of
// confirmed events applied so far. fn must not retain references past
// its return.
func (w *Watcher) Inspect(ctx context.Context, fn func(st *party.Events, seq int64)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case w.queryChan <- q:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) handleRaw(ctx context.Context, raw ingestion.RawEvent) {
	eventType := eventTypeForSubject(raw.Subject)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.IngestReceived.WithLabelValues(raw.Subject).Inc()
	}

	parsed, err := ingestion.ParseRawEvent(raw, eventType)
	if err != nil {
		// Malformed payloads never parse on redelivery either.
		w.log.Error().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable message")
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.IngestParseErrors.WithLabelValues(raw.Subject).Inc()
		}
		raw.AckFunc()
		return
	}

	if !w.handleParsed(ctx, parsed, raw.Timestamp) {
		// Shut down mid-persist; the write never reached the worker, so
		// let the stream redeliver.
		raw.NakFunc()
		return
	}
	raw.AckFunc()

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.IngestToApply.WithLabelValues(eventType).
			Observe(time.Since(raw.Timestamp).Seconds())
	}
}

// handleParsed returns false only when shutdown interrupted the
// persist-channel send, meaning the observation must be redelivered.
func (w *Watcher) handleParsed(ctx context.Context, parsed ingestion.ParsedMessage, receivedAt time.Time) bool {
	if parsed.Tick != nil {
		return w.persistPrices(ctx, nil, []persistence.PriceRow{{
			Currency: parsed.Tick.Currency.String(),
			PriceUSD: parsed.Tick.PriceUSD,
			Time:     parsed.Tick.Time,
		}})
	}
	if parsed.Event != nil {
		return w.handleEvent(ctx, parsed.Event, receivedAt)
	}
	return true
}

// handleEvent folds one parsed event into party state and emits its
// side effects: the persisted envelope, price rows, and any produced
// fulfillment order.
func (w *Watcher) handleEvent(ctx context.Context, ev event.AddressEvent, receivedAt time.Time) bool {
	start := time.Now()
	id := ev.Identifier()
	kind := ev.Kind().String()
	t, confirmed := ev.ObservedTime(w.state.Seeds)
	settledBefore := len(w.state.FulfillmentHistory)
	rejectedBefore := len(w.state.RejectedStakeWithdrawals)

	// Only confirmed events enter the durable log; mempool observations
	// are held in memory and re-observed after a restart.
	if confirmed && w.cfg.Idempotency != nil && w.cfg.Idempotency.IsDuplicate(w.partyKey, id) {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.EventsDuplicate.WithLabelValues(kind).Inc()
		}
		return true
	}

	if err := w.state.ProcessEvent(ev); err != nil {
		// Processing errors are deterministic; redelivery cannot fix them.
		w.log.Error().Err(err).Str("identifier", id).Msg("event rejected")
		if w.cfg.Metrics != nil {
			code := "internal"
			var perr *party.Error
			if errors.As(err, &perr) {
				code = string(perr.Code)
			}
			w.cfg.Metrics.EventErrors.WithLabelValues(code).Inc()
		}
		return true
	}

	if confirmed {
		env, err := event.Wrap(w.partyKey, w.seq, ev, receivedAt)
		if err != nil {
			w.log.Error().Err(err).Str("identifier", id).Msg("envelope wrap failed")
			return true
		}
		payload, err := env.Encode()
		if err != nil {
			w.log.Error().Err(err).Str("identifier", id).Msg("envelope encode failed")
			return true
		}
		row := persistence.EventRow{
			Sequence:   w.seq,
			PartyKey:   w.partyKey,
			EventKind:  kind,
			Identifier: id,
			Payload:    payload,
			ReceivedAt: receivedAt,
		}
		if !w.persistPrices(ctx, &row, priceRowsFrom(ev, t)) {
			return false
		}
		w.seq++

		if w.cfg.Idempotency != nil {
			w.cfg.Idempotency.MarkProcessed(w.partyKey, id)
		}
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.EventsApplied.WithLabelValues(kind).Inc()
			w.cfg.Metrics.EventApplyDur.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
	} else if w.cfg.Metrics != nil {
		w.cfg.Metrics.EventsUnconfirmed.Inc()
	}

	if of := w.state.EventFulfillment; of != nil {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.OrdersOpened.WithLabelValues(orderSide(*of)).Inc()
		}
		if w.cfg.OrderChan != nil {
			po := ingestion.NewPublishableOrder(w.partyKey, w.seq, *of)
			select {
			case w.cfg.OrderChan <- po:
			default:
				if w.cfg.Metrics != nil {
					w.cfg.Metrics.PublishDrops.Inc()
				}
			}
		}
	}

	if w.cfg.Metrics != nil {
		if confirmed {
			// processConfirmedEvent recomputes the curve before and after
			// dispatch.
			w.cfg.Metrics.PriceRecomputes.Add(2)
		}
		for _, rec := range w.state.FulfillmentHistory[settledBefore:] {
			w.cfg.Metrics.OrdersSettled.WithLabelValues(orderSide(rec.Fulfillment)).Inc()
		}
		if n := len(w.state.RejectedStakeWithdrawals) - rejectedBefore; n > 0 {
			w.cfg.Metrics.StakeWithdrawalsRejected.Add(float64(n))
		}
		w.cfg.Metrics.SetQueueDepths(len(w.state.UnfulfilledSwapOrders), len(w.state.UnfulfilledWithdrawals))
		w.cfg.Metrics.FulfillmentHistorySize.Set(float64(len(w.state.FulfillmentHistory)))
		if bid, ok := w.state.UsdRdgEstimate(); ok {
			w.cfg.Metrics.RDGBidUSDEstimate.Set(bid)
		}
	}
	return true
}

// persistPrices hands the write to the persistence worker. The send
// blocks; false means ctx was cancelled before the worker took it.
func (w *Watcher) persistPrices(ctx context.Context, row *persistence.EventRow, prices []persistence.PriceRow) bool {
	req := persistence.WriteRequest{Event: row, Prices: prices}
	select {
	case w.cfg.PersistChan <- req:
		return true
	case <-ctx.Done():
		return false
	}
}

// priceRowsFrom extracts the USD quotes an event carries so they enter
// the price history alongside the event itself.
func priceRowsFrom(ev event.AddressEvent, t int64) []persistence.PriceRow {
	var rows []persistence.PriceRow
	if usd, ok := ev.UsdPrice(); ok {
		if cur, okCur := ev.ExternalCurrency(); okCur {
			rows = append(rows, persistence.PriceRow{Currency: cur.String(), PriceUSD: usd, Time: t})
		}
	}
	if it, ok := ev.(*event.InternalTx); ok {
		for cur, usd := range it.AllPricesUSD {
			if cur == amount.CurrencyRDG || usd <= 0 {
				continue
			}
			rows = append(rows, persistence.PriceRow{Currency: cur.String(), PriceUSD: usd, Time: t})
		}
	}
	return rows
}

func orderSide(f order.Fulfillment) string {
	if f.IsAskFromExternalDeposit {
		return "ask"
	}
	return "bid"
}

func eventTypeForSubject(subject string) string {
	switch {
	case strings.HasPrefix(subject, "swap.ledger."):
		return "InternalTx"
	case strings.HasPrefix(subject, "swap.chain."):
		return "ExternalTx"
	case strings.HasPrefix(subject, "swap.prices."):
		return "PriceTick"
	default:
		return ""
	}
}
