package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"envelopes/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUserAndEnvelope(t *testing.T, repo *SQLiteRepository, kind core.EnvelopeKind) (core.User, core.Envelope) {
	t.Helper()
	ctx := context.Background()
	user, err := repo.CreateUser(ctx, "demo", "demo123", "+1 (555) 123-4567")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	env, err := repo.CreateEnvelope(ctx, core.Envelope{
		UserID: user.ID,
		Name:   "Groceries",
		Kind:   kind,
		Budget: core.Money{Cents: 20000},
	})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}
	return user, env
}

// balanceInvariant checks that the stored balance equals the sum of the
// envelope's transaction amounts.
func balanceInvariant(t *testing.T, repo *SQLiteRepository, envelopeID int64) {
	t.Helper()
	ctx := context.Background()
	env, err := repo.GetEnvelope(ctx, envelopeID)
	if err != nil {
		t.Fatalf("get envelope: %v", err)
	}
	txs, err := repo.ListTransactionsByEnvelope(ctx, envelopeID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount.Cents
	}
	if env.Balance.Cents != sum {
		t.Fatalf("invariant broken: balance=%d, transaction sum=%d", env.Balance.Cents, sum)
	}
}

func TestFindUserBySender(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, _ := seedUserAndEnvelope(t, repo, core.KindExpense)

	got, err := repo.FindUserBySender(ctx, "15551234567")
	if err != nil {
		t.Fatalf("find by sender: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, got.ID)
	}

	if _, err := repo.FindUserBySender(ctx, "19998887777"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("unknown sender: expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.FindUserBySender(ctx, "no digits here"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("empty sender: expected ErrUserNotFound, got %v", err)
	}
}

func TestFindEnvelopeByNameCaseInsensitive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	got, err := repo.FindEnvelopeByName(ctx, user.ID, "groceries")
	if err != nil {
		t.Fatalf("find envelope: %v", err)
	}
	if got.ID != env.ID {
		t.Fatalf("expected envelope %d, got %d", env.ID, got.ID)
	}

	if _, err := repo.FindEnvelopeByName(ctx, user.ID, "Vacation"); !errors.Is(err, core.ErrEnvelopeNotFound) {
		t.Fatalf("expected ErrEnvelopeNotFound, got %v", err)
	}
}

func TestCreateEnvelopeDuplicateName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, _ := seedUserAndEnvelope(t, repo, core.KindExpense)

	_, err := repo.CreateEnvelope(ctx, core.Envelope{
		UserID: user.ID, Name: "GROCERIES", Kind: core.KindSavings, Budget: core.Money{Cents: 100},
	})
	if !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateTransactionAdjustsBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	tx, balance, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 2550}, Description: "weekly shop", Source: core.SourceText,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.ID == 0 {
		t.Fatal("transaction id not assigned")
	}
	if balance.Cents != 2550 {
		t.Fatalf("expected balance 2550, got %d", balance.Cents)
	}

	// Refund
	_, balance, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: -550}, Source: core.SourceAPI,
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if balance.Cents != 2000 {
		t.Fatalf("expected balance 2000, got %d", balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)
}

func TestCreateTransactionRejections(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	_, _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID + 99,
		Amount: core.Money{Cents: 100}, Source: core.SourceAPI,
	})
	if !errors.Is(err, core.ErrEnvelopeNotFound) {
		t.Fatalf("missing envelope: expected ErrEnvelopeNotFound, got %v", err)
	}

	other, err := repo.CreateUser(ctx, "other", "pw", "12025550000")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, _, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID: other.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 100}, Source: core.SourceAPI,
	})
	if !errors.Is(err, core.ErrEnvelopeNotFound) {
		t.Fatalf("foreign envelope: expected ErrEnvelopeNotFound, got %v", err)
	}

	if err := repo.DeactivateEnvelope(ctx, env.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, _, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 100}, Source: core.SourceAPI,
	})
	if !errors.Is(err, core.ErrEnvelopeInactive) {
		t.Fatalf("inactive envelope: expected ErrEnvelopeInactive, got %v", err)
	}

	// Nothing was written on the failed paths.
	txs, err := repo.ListTransactionsByEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
}

func TestUpdateTransactionDelta(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	tx, _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 2550}, Source: core.SourceText,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Description-only patch must not move the balance.
	desc := "corrected note"
	_, balance, err := repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Description: &desc})
	if err != nil {
		t.Fatalf("update description: %v", err)
	}
	if balance.Cents != 2550 {
		t.Fatalf("description-only update moved balance to %d", balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)

	// Amount patch adjusts by the delta.
	newAmount := core.Money{Cents: 3000}
	updated, balance, err := repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Amount: &newAmount})
	if err != nil {
		t.Fatalf("update amount: %v", err)
	}
	if updated.Amount.Cents != 3000 || updated.Description != desc {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if balance.Cents != 3000 {
		t.Fatalf("expected balance 3000, got %d", balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)
}

func TestUpdateTransactionMoveEnvelope(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	other, err := repo.CreateEnvelope(ctx, core.Envelope{
		UserID: user.ID, Name: "Dining", Kind: core.KindExpense, Budget: core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}

	tx, _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 1200}, Source: core.SourceAPI,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, balance, err := repo.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{EnvelopeID: &other.ID})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if balance.Cents != 1200 {
		t.Fatalf("expected new envelope balance 1200, got %d", balance.Cents)
	}

	old, err := repo.GetEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("get envelope: %v", err)
	}
	if old.Balance.Cents != 0 {
		t.Fatalf("old envelope kept balance %d", old.Balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)
	balanceInvariant(t, repo, other.ID)
}

func TestDeleteTransactionRestoresBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindSavings)

	tx, balance, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 10000}, Source: core.SourceText,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if balance.Cents != 10000 {
		t.Fatalf("expected balance 10000, got %d", balance.Cents)
	}

	if err := repo.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	env2, err := repo.GetEnvelope(ctx, env.ID)
	if err != nil {
		t.Fatalf("get envelope: %v", err)
	}
	if env2.Balance.Cents != 0 {
		t.Fatalf("expected balance restored to 0, got %d", env2.Balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)

	// Re-creating an identical transaction restores the prior balance exactly.
	_, balance, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, EnvelopeID: env.ID,
		Amount: core.Money{Cents: 10000}, Source: core.SourceText,
	})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if balance.Cents != 10000 {
		t.Fatalf("expected balance 10000 after recreate, got %d", balance.Cents)
	}
	balanceInvariant(t, repo, env.ID)

	if err := repo.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("double delete: expected ErrTransactionNotFound, got %v", err)
	}
}

func TestListTransactionsByUserLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, env := seedUserAndEnvelope(t, repo, core.KindExpense)

	for i := 0; i < 5; i++ {
		_, _, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: user.ID, EnvelopeID: env.ID,
			Amount: core.Money{Cents: int64(100 * (i + 1))}, Source: core.SourceAPI,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	txs, err := repo.ListTransactionsByUser(ctx, user.ID, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	// Newest first
	if txs[0].Amount.Cents != 500 {
		t.Fatalf("expected newest transaction first, got %d", txs[0].Amount.Cents)
	}
}
