package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"SwapLedger/internal/order"
)

// OrderPublisher publishes outstanding fulfillment orders to NATS for
// the signing layer. Orders are published after the originating event
// is persisted, so a signer restart can always re-derive them from the
// event log. Subjects follow the pattern swap.orders.{currency}.
type OrderPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableOrder
}

// PublishableOrder is one fulfillment order ready for outbound publishing.
type PublishableOrder struct {
	NotificationID uuid.UUID         `json:"notification_id"`
	PartyKey       string            `json:"party_key"`
	Sequence       int64             `json:"sequence"`
	Side           string            `json:"side"` // "ask" or "bid"
	Order          order.Fulfillment `json:"order"`
	Timestamp      time.Time         `json:"timestamp"`
}

func NewOrderPublisher(js jetstream.JetStream, inputChan <-chan PublishableOrder) *OrderPublisher {
	return &OrderPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OrderPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case o, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, o); err != nil {
				log.Printf("WARN: order publish failed seq=%d: %v", o.Sequence, err)
				// Non-fatal: the signing layer can query outstanding orders directly
			}
		}
	}
}

func (op *OrderPublisher) publish(ctx context.Context, o PublishableOrder) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	subject := fmt.Sprintf("swap.orders.%s", o.Order.Destination.Currency)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound orders stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SWAP_ORDERS",
		Subjects:  []string{"swap.orders.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream SWAP_ORDERS")
	return nil
}

// NewPublishableOrder wraps a fulfillment order for publication.
func NewPublishableOrder(partyKey string, seq int64, o order.Fulfillment) PublishableOrder {
	side := "bid"
	if o.IsAskFromExternalDeposit {
		side = "ask"
	}
	return PublishableOrder{
		NotificationID: uuid.New(),
		PartyKey:       partyKey,
		Sequence:       seq,
		Side:           side,
		Order:          o,
		Timestamp:      time.Now(),
	}
}
