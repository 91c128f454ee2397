package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/export"
	"envelopes/internal/storage"
)

// ExportWorker mirrors ledger events into an export backend. Creates and
// updates are re-read from storage so the exported row reflects the current
// record; deletes use the snapshot carried by the message.
type ExportWorker struct {
	storage  *storage.SQLiteRepository
	appender export.Appender
}

func NewExportWorker(storage *storage.SQLiteRepository, appender export.Appender) *ExportWorker {
	return &ExportWorker{
		storage:  storage,
		appender: appender,
	}
}

// HandleLedgerEvent processes a single ledger event message. A nil return
// acknowledges the delivery; errors cause a requeue, so conditions that will
// never resolve (record gone, malformed message) are logged and swallowed.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"transaction_id", msg.TransactionID,
		"op", msg.Op)

	switch msg.Op {
	case amqp.OpCreated, amqp.OpUpdated:
		return w.exportCurrent(ctx, msg)
	case amqp.OpDeleted:
		return w.exportDeleted(ctx, msg)
	default:
		slog.WarnContext(ctx, "Unknown ledger event op, dropping",
			"transaction_id", msg.TransactionID,
			"op", msg.Op)
		return nil
	}
}

func (w *ExportWorker) exportCurrent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	t, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, core.ErrTransactionNotFound) {
		// Deleted between publish and consume. The delete event will carry
		// its own snapshot, so this message has nothing left to say.
		slog.WarnContext(ctx, "Transaction gone before export, dropping",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	row, err := w.buildRow(ctx, t, msg.Op)
	if err != nil {
		return err
	}
	return w.append(ctx, row)
}

func (w *ExportWorker) exportDeleted(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.Deleted == nil {
		slog.WarnContext(ctx, "Delete event without snapshot, dropping",
			"transaction_id", msg.TransactionID)
		return nil
	}

	// The correcting row carries the negated amount: the envelope balance got
	// the deleted amount back.
	t := core.Transaction{
		ID:          msg.TransactionID,
		UserID:      msg.Deleted.UserID,
		EnvelopeID:  msg.Deleted.EnvelopeID,
		Amount:      core.Money{Cents: -msg.Deleted.AmountCents},
		Description: msg.Deleted.Description,
		CreatedAt:   msg.Timestamp,
	}
	row, err := w.buildRow(ctx, t, amqp.OpDeleted)
	if err != nil {
		return err
	}
	return w.append(ctx, row)
}

func (w *ExportWorker) buildRow(ctx context.Context, t core.Transaction, op string) (export.Row, error) {
	envelope, err := w.storage.GetEnvelope(ctx, t.EnvelopeID)
	if err != nil {
		return export.Row{}, fmt.Errorf("get envelope from storage: %w", err)
	}
	user, err := w.storage.GetUser(ctx, t.UserID)
	if err != nil {
		return export.Row{}, fmt.Errorf("get user from storage: %w", err)
	}

	occurred := t.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	return export.Row{
		TransactionID: t.ID,
		Occurred:      occurred,
		Username:      user.Username,
		Envelope:      envelope.Name,
		Kind:          envelope.Kind,
		Amount:        t.Amount,
		Description:   t.Description,
		Op:            op,
	}, nil
}

func (w *ExportWorker) append(ctx context.Context, row export.Row) error {
	ref, err := w.appender.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append to export backend: %w", err)
	}

	slog.InfoContext(ctx, "Exported ledger event",
		"transaction_id", row.TransactionID,
		"op", row.Op,
		"row_ref", ref)
	return nil
}

// Backfill appends every transaction of every user in storage. It is meant
// for fresh export targets and for recovering from missed events; the export
// is append-only so running it against a populated target duplicates rows.
func (w *ExportWorker) Backfill(ctx context.Context, userID int64) (int, error) {
	transactions, err := w.storage.ListTransactionsByUser(ctx, userID, 0)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	exported := 0
	for i := len(transactions) - 1; i >= 0; i-- {
		row, err := w.buildRow(ctx, transactions[i], amqp.OpCreated)
		if err != nil {
			return exported, err
		}
		if err := w.append(ctx, row); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}
