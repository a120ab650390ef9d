package ingestion

import (
	"context"
	"fmt"
	"time"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/event"
)

// AdminIngestService provides manual observation injection for admin
// tooling and test environments, bypassing NATS. Not a high-throughput
// path.
type AdminIngestService struct {
	eventChan chan<- ParsedMessage
}

func NewAdminIngestService(eventChan chan<- ParsedMessage) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectExternalDeposit manually injects a confirmed incoming external
// chain transaction.
func (s *AdminIngestService) InjectExternalDeposit(
	ctx context.Context,
	txID string,
	chain amount.Currency,
	units int64,
	fromAddress string,
	priceUSD float64,
) error {
	if txID == "" {
		return fmt.Errorf("tx id required")
	}
	if units <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	ev := &event.ExternalTx{
		TxID:         txID,
		Timestamp:    time.Now().UnixMilli(),
		OtherAddress: fromAddress,
		Amount:       units,
		Chain:        chain,
		In:           true,
		PriceUSD:     priceUSD,
	}

	select {
	case s.eventChan <- ParsedMessage{Event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectInternalTx manually injects a confirmed internal ledger
// transaction.
func (s *AdminIngestService) InjectInternalTx(
	ctx context.Context,
	tx *event.LedgerTransaction,
	queriedAddress string,
	priceUSD float64,
) error {
	if tx == nil || tx.Hash == "" {
		return fmt.Errorf("transaction hash required")
	}
	if tx.Time == 0 {
		tx.Time = time.Now().UnixMilli()
	}

	ev := &event.InternalTx{
		Tx:             tx,
		PriceUSD:       priceUSD,
		QueriedAddress: queriedAddress,
	}

	select {
	case s.eventChan <- ParsedMessage{Event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPriceTick manually injects an oracle price observation.
func (s *AdminIngestService) InjectPriceTick(
	ctx context.Context,
	cur amount.Currency,
	priceUSD float64,
) error {
	if priceUSD <= 0 {
		return fmt.Errorf("price must be positive")
	}

	tick := &PriceTick{
		Currency: cur,
		PriceUSD: priceUSD,
		Time:     time.Now().UnixMilli(),
	}

	select {
	case s.eventChan <- ParsedMessage{Tick: tick}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
