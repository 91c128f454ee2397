package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"envelopes/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists users, envelopes and the transaction ledger.
// All balance mutations happen inside a single database transaction together
// with the transaction row write, so an envelope's balance always equals the
// sum of its transactions' signed amounts.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Serialize writers at the pool level; sqlite allows one writer at a time
	// and a single connection avoids SQLITE_BUSY churn under concurrency.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// NormalizeSender strips everything but digits from a phone number so that
// "+1 (555) 123-4567" and "15551234567" resolve to the same user.
func NormalizeSender(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteByte(byte(c))
		}
	}
	return b.String()
}

// Users

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, password, phoneNumber string) (core.User, error) {
	u := core.User{
		Username:    username,
		Password:    password,
		PhoneNumber: NormalizeSender(phoneNumber),
		CreatedAt:   time.Now().UTC(),
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password, phone_number, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.Password, u.PhoneNumber, u.CreatedAt.Unix())
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("create user id: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password, phone_number, created_at FROM users WHERE id = ?`, id))
}

// FindUserBySender resolves a digits-only sender identifier to a user.
func (r *SQLiteRepository) FindUserBySender(ctx context.Context, sender string) (core.User, error) {
	sender = NormalizeSender(sender)
	if sender == "" {
		return core.User{}, core.ErrUserNotFound
	}
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password, phone_number, created_at FROM users WHERE phone_number = ?`, sender))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var phone sql.NullString
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Password, &phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.PhoneNumber = phone.String
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

// Envelopes

func (r *SQLiteRepository) CreateEnvelope(ctx context.Context, e core.Envelope) (core.Envelope, error) {
	if err := e.Validate(); err != nil {
		return core.Envelope{}, err
	}
	e.Active = true
	e.Balance = core.Money{}
	e.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO envelopes (user_id, name, kind, budget_cents, balance_cents, is_active, created_at)
		 VALUES (?, ?, ?, ?, 0, 1, ?)`,
		e.UserID, e.Name, string(e.Kind), e.Budget.Cents, e.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.Envelope{}, core.ErrDuplicateName
		}
		return core.Envelope{}, fmt.Errorf("create envelope: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return core.Envelope{}, fmt.Errorf("create envelope id: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListActiveEnvelopes(ctx context.Context, userID int64) ([]core.Envelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, kind, budget_cents, balance_cents, is_active, created_at
		 FROM envelopes WHERE user_id = ? AND is_active = 1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var out []core.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindEnvelopeByName matches case-insensitively among a user's active envelopes.
func (r *SQLiteRepository) FindEnvelopeByName(ctx context.Context, userID int64, name string) (core.Envelope, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, kind, budget_cents, balance_cents, is_active, created_at
		 FROM envelopes WHERE user_id = ? AND is_active = 1 AND name = ? COLLATE NOCASE`,
		userID, strings.TrimSpace(name))
	return scanEnvelope(row)
}

func (r *SQLiteRepository) GetEnvelope(ctx context.Context, id int64) (core.Envelope, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, kind, budget_cents, balance_cents, is_active, created_at
		 FROM envelopes WHERE id = ?`, id)
	return scanEnvelope(row)
}

// DeactivateEnvelope soft-deletes an envelope. Its transactions remain for
// history; the name becomes reusable.
func (r *SQLiteRepository) DeactivateEnvelope(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE envelopes SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("deactivate envelope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate envelope: %w", err)
	}
	if n == 0 {
		return core.ErrEnvelopeNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(row rowScanner) (core.Envelope, error) {
	var e core.Envelope
	var kind string
	var active int64
	var createdAt int64
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &kind, &e.Budget.Cents, &e.Balance.Cents, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Envelope{}, core.ErrEnvelopeNotFound
	}
	if err != nil {
		return core.Envelope{}, fmt.Errorf("scan envelope: %w", err)
	}
	e.Kind = core.EnvelopeKind(kind)
	e.Active = active != 0
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

// Ledger operations. Each one runs the transaction row write and the
// compensating balance adjustment in a single database transaction.

// CreateTransaction inserts the transaction and adds its signed amount to the
// envelope's balance. The envelope must belong to the user and be active.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Money, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.Money{}, err
	}
	t.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var owner int64
	var active int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, is_active FROM envelopes WHERE id = ?`, t.EnvelopeID).Scan(&owner, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.Money{}, core.ErrEnvelopeNotFound
	}
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("load envelope: %w", err)
	}
	if owner != t.UserID {
		return core.Transaction{}, core.Money{}, core.ErrEnvelopeNotFound
	}
	if active == 0 {
		return core.Transaction{}, core.Money{}, core.ErrEnvelopeInactive
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, envelope_id, amount_cents, description, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.EnvelopeID, t.Amount.Cents, t.Description, t.Source, t.CreatedAt.Unix())
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("insert transaction: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("transaction id: %w", err)
	}

	balance, err := adjustBalance(ctx, tx, t.EnvelopeID, t.Amount.Cents)
	if err != nil {
		return core.Transaction{}, core.Money{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("commit: %w", err)
	}
	return t, balance, nil
}

// UpdateTransaction applies a patch and adjusts balances by the delta between
// new and old amounts, never by reapplying the full amount. A description-only
// patch therefore leaves balances untouched. When the patch moves the
// transaction to another envelope, the old envelope gives back the old amount
// and the new envelope receives the new amount.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, core.Money, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var prior core.Transaction
	var createdAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, envelope_id, amount_cents, description, source, created_at
		 FROM transactions WHERE id = ?`, id).
		Scan(&prior.ID, &prior.UserID, &prior.EnvelopeID, &prior.Amount.Cents,
			&prior.Description, &prior.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.Money{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("load transaction: %w", err)
	}
	prior.CreatedAt = time.Unix(createdAt, 0).UTC()

	updated := prior
	if patch.EnvelopeID != nil {
		var owner int64
		var active int64
		err = tx.QueryRowContext(ctx,
			`SELECT user_id, is_active FROM envelopes WHERE id = ?`, *patch.EnvelopeID).Scan(&owner, &active)
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.Money{}, core.ErrEnvelopeNotFound
		}
		if err != nil {
			return core.Transaction{}, core.Money{}, fmt.Errorf("load envelope: %w", err)
		}
		if owner != prior.UserID {
			return core.Transaction{}, core.Money{}, core.ErrEnvelopeNotFound
		}
		if active == 0 && *patch.EnvelopeID != prior.EnvelopeID {
			return core.Transaction{}, core.Money{}, core.ErrEnvelopeInactive
		}
		updated.EnvelopeID = *patch.EnvelopeID
	}
	if patch.Amount != nil {
		if patch.Amount.Cents == 0 {
			return core.Transaction{}, core.Money{}, core.ErrInvalidAmount
		}
		updated.Amount = *patch.Amount
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transactions SET envelope_id = ?, amount_cents = ?, description = ? WHERE id = ?`,
		updated.EnvelopeID, updated.Amount.Cents, updated.Description, id)
	if err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("update transaction: %w", err)
	}

	var balance core.Money
	if updated.EnvelopeID != prior.EnvelopeID {
		if _, err := adjustBalance(ctx, tx, prior.EnvelopeID, -prior.Amount.Cents); err != nil {
			return core.Transaction{}, core.Money{}, err
		}
		balance, err = adjustBalance(ctx, tx, updated.EnvelopeID, updated.Amount.Cents)
	} else {
		balance, err = adjustBalance(ctx, tx, updated.EnvelopeID, updated.Amount.Cents-prior.Amount.Cents)
	}
	if err != nil {
		return core.Transaction{}, core.Money{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, core.Money{}, fmt.Errorf("commit: %w", err)
	}
	return updated, balance, nil
}

// DeleteTransaction removes the transaction record and subtracts its amount
// from the envelope's balance.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var envelopeID, amountCents int64
	err = tx.QueryRowContext(ctx,
		`SELECT envelope_id, amount_cents FROM transactions WHERE id = ?`, id).
		Scan(&envelopeID, &amountCents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if _, err := adjustBalance(ctx, tx, envelopeID, -amountCents); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var t core.Transaction
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, envelope_id, amount_cents, description, source, created_at
		 FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.EnvelopeID, &t.Amount.Cents, &t.Description, &t.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

// ListTransactionsByUser returns the user's transactions, newest first.
// A limit of 0 means no limit.
func (r *SQLiteRepository) ListTransactionsByUser(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	q := `SELECT id, user_id, envelope_id, amount_cents, description, source, created_at
	      FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.listTransactions(ctx, q, args...)
}

func (r *SQLiteRepository) ListTransactionsByEnvelope(ctx context.Context, envelopeID int64) ([]core.Transaction, error) {
	return r.listTransactions(ctx,
		`SELECT id, user_id, envelope_id, amount_cents, description, source, created_at
		 FROM transactions WHERE envelope_id = ? ORDER BY created_at DESC, id DESC`, envelopeID)
}

func (r *SQLiteRepository) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.EnvelopeID, &t.Amount.Cents,
			&t.Description, &t.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// adjustBalance applies a delta as a single read-modify-write statement and
// returns the resulting balance.
func adjustBalance(ctx context.Context, tx *sql.Tx, envelopeID, deltaCents int64) (core.Money, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE envelopes SET balance_cents = balance_cents + ? WHERE id = ?`, deltaCents, envelopeID)
	if err != nil {
		return core.Money{}, fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Money{}, fmt.Errorf("adjust balance: %w", err)
	}
	if n == 0 {
		return core.Money{}, core.ErrEnvelopeNotFound
	}

	var balance core.Money
	err = tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM envelopes WHERE id = ?`, envelopeID).Scan(&balance.Cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}
