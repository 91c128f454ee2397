package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"envelopes/internal/core"
	"envelopes/internal/storage"
)

func newTestLedger(t *testing.T) (*LedgerService, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	// nil AMQP client: publishing is optional and skipped
	return NewLedgerService(repo, nil), repo
}

func TestLedgerCreateUpdateDelete(t *testing.T) {
	ledger, repo := newTestLedger(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "demo", "demo123", "15551234567")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	env, err := repo.CreateEnvelope(ctx, core.Envelope{
		UserID: user.ID, Name: "Vacation", Kind: core.KindSavings, Budget: core.Money{Cents: 100000},
	})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}

	tx, balance, err := ledger.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 10000}, Source: core.SourceText,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if balance.Cents != 10000 {
		t.Fatalf("expected balance 10000, got %d", balance.Cents)
	}

	amount := core.Money{Cents: 7500}
	_, balance, err = ledger.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if balance.Cents != 7500 {
		t.Fatalf("expected balance 7500, got %d", balance.Cents)
	}

	if err := ledger.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := repo.GetEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("get envelope: %v", err)
	}
	if got.Balance.Cents != 0 {
		t.Fatalf("expected balance 0 after delete, got %d", got.Balance.Cents)
	}

	if err := ledger.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestLedgerCloseNilComponents(t *testing.T) {
	s := &LedgerService{}
	if err := s.Close(); err != nil {
		t.Fatalf("Close with nil components: %v", err)
	}
}
