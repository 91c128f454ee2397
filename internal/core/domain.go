package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// Envelope kinds. An expense envelope tracks spending against a budget,
	// a savings envelope tracks progress toward a goal.
	KindExpense EnvelopeKind = "expense"
	KindSavings EnvelopeKind = "savings"
)

const (
	// Transaction sources.
	SourceText = "text"
	SourceAPI  = "api"
)

type (
	EnvelopeKind string

	Money struct {
		Cents int64
	}

	User struct {
		ID          int64
		Username    string
		Password    string
		PhoneNumber string // digits only
		CreatedAt   time.Time
	}

	Envelope struct {
		ID        int64
		UserID    int64
		Name      string
		Kind      EnvelopeKind
		Budget    Money
		Balance   Money
		Active    bool
		CreatedAt time.Time
	}

	// Transaction is a signed movement against an envelope. Positive amounts
	// increase the envelope's primary metric (money spent for expense
	// envelopes, money saved for savings envelopes); negative amounts reverse
	// it (refund or withdrawal).
	Transaction struct {
		ID          int64
		UserID      int64
		EnvelopeID  int64
		Amount      Money
		Description string
		Source      string
		CreatedAt   time.Time
	}

	// TransactionPatch carries the fields of a transaction update. Nil fields
	// are left unchanged.
	TransactionPatch struct {
		EnvelopeID  *int64
		Amount      *Money
		Description *string
	}
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEnvelopeNotFound    = errors.New("envelope not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrEnvelopeInactive    = errors.New("envelope is not active")
	ErrTypeMismatch        = errors.New("movement type does not match envelope kind")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid envelope kind")
	ErrEmptyName           = errors.New("empty envelope name")
	ErrDuplicateName       = errors.New("envelope name already in use")
)

func (k EnvelopeKind) Validate() error {
	switch k {
	case KindExpense, KindSavings:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (e Envelope) Validate() error {
	if len(strings.TrimSpace(e.Name)) == 0 {
		return ErrEmptyName
	}
	if len(e.Name) > 100 {
		return errors.New("envelope name too long (max 100 characters)")
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.Budget.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Remaining returns how much of the budget is left for an expense envelope,
// or how far a savings envelope is from its goal. May be negative.
func (e Envelope) Remaining() Money {
	return Money{Cents: e.Budget.Cents - e.Balance.Cents}
}

// Progress returns the saved-so-far percentage for a savings envelope,
// rounded to the nearest whole number. Zero-budget envelopes report 0.
func (e Envelope) Progress() int {
	if e.Budget.Cents <= 0 {
		return 0
	}
	return int((float64(e.Balance.Cents)/float64(e.Budget.Cents))*100 + 0.5)
}

func (t Transaction) Validate() error {
	if t.EnvelopeID <= 0 {
		return ErrEnvelopeNotFound
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	switch t.Source {
	case SourceText, SourceAPI:
		return nil
	default:
		return errors.New("invalid transaction source")
	}
}
