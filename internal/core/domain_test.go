package core

import (
	"errors"
	"strings"
	"testing"
)

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{Name: "Groceries", Kind: KindExpense, Budget: Money{Cents: 20000}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name string
		env  Envelope
		want error
	}{
		{"empty name", Envelope{Name: "  ", Kind: KindExpense, Budget: Money{Cents: 100}}, ErrEmptyName},
		{"bad kind", Envelope{Name: "X", Kind: "checking", Budget: Money{Cents: 100}}, ErrInvalidKind},
		{"zero budget", Envelope{Name: "X", Kind: KindSavings}, ErrInvalidAmount},
		{"negative budget", Envelope{Name: "X", Kind: KindSavings, Budget: Money{Cents: -1}}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		if err := tc.env.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	long := valid
	long.Name = strings.Repeat("a", 101)
	if err := long.Validate(); err == nil {
		t.Fatal("overlong name accepted")
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{EnvelopeID: 1, Amount: Money{Cents: -2550}, Source: SourceText}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	zero := valid
	zero.Amount = Money{}
	if err := zero.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}

	badSource := valid
	badSource.Source = "carrier-pigeon"
	if err := badSource.Validate(); err == nil {
		t.Fatal("invalid source accepted")
	}
}

func TestEnvelopeProgress(t *testing.T) {
	e := Envelope{Kind: KindSavings, Budget: Money{Cents: 10000}, Balance: Money{Cents: 2550}}
	if got := e.Progress(); got != 26 {
		t.Fatalf("expected 26%%, got %d%%", got)
	}
	if got := (Envelope{}).Progress(); got != 0 {
		t.Fatalf("zero budget: expected 0%%, got %d%%", got)
	}
}
