package services

import (
	"context"
	"fmt"
	"log/slog"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/storage"
)

// LedgerService is the only write path to envelope balances. It delegates the
// atomic balance+record mutation to storage and publishes a ledger event
// afterwards. Event publishing is best effort: the local write already
// succeeded, so a broker outage must not fail the request.
type LedgerService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// CreateTransaction records a signed movement and returns the transaction and
// the envelope's new balance.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Money, error) {
	created, balance, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("create transaction: %w", err)
	}

	s.publishEvent(ctx, amqp.NewLedgerEventMessage(created.ID, amqp.OpCreated))

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", created.ID,
		"envelope_id", created.EnvelopeID,
		"amount_cents", created.Amount.Cents,
		"source", created.Source)

	return created, balance, nil
}

// UpdateTransaction patches a transaction; storage adjusts the envelope
// balance by the amount delta.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, core.Money, error) {
	updated, balance, err := s.storage.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("update transaction: %w", err)
	}

	s.publishEvent(ctx, amqp.NewLedgerEventMessage(id, amqp.OpUpdated))

	return updated, balance, nil
}

// DeleteTransaction removes a transaction and gives its amount back to the
// envelope balance. The record is snapshotted before deletion so the delete
// event can still describe it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	t, err := s.storage.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.publishEvent(ctx, amqp.NewLedgerDeleteMessage(id, amqp.TransactionSnapshot{
		UserID:      t.UserID,
		EnvelopeID:  t.EnvelopeID,
		AmountCents: t.Amount.Cents,
		Description: t.Description,
	}))

	return nil
}

func (s *LedgerService) publishEvent(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", msg.TransactionID,
			"op", msg.Op,
			"error", err)
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
