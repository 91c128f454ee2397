package core

import "testing"

func TestParseCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"25.50", 2550, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"$5", 500, true},
		{"+100", 10000, true},
		{"-1", -100, true},
		{"-$25.50", -2550, true},
		{"+$0.99", 99, true},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"$", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{2550, "$25.50"},
		{-2550, "-$25.50"},
		{5, "$0.05"},
		{10000, "$100.00"},
		{0, "$0.00"},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).String(); got != tc.want {
			t.Fatalf("%d cents: expected %q, got %q", tc.cents, tc.want, got)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	m := Money{Cents: -500}
	if m.Abs().Cents != 500 {
		t.Fatalf("Abs: expected 500, got %d", m.Abs().Cents)
	}
	if m.Neg().Cents != 500 {
		t.Fatalf("Neg: expected 500, got %d", m.Neg().Cents)
	}
	if m.Add(Money{Cents: 750}).Cents != 250 {
		t.Fatalf("Add: expected 250, got %d", m.Add(Money{Cents: 750}).Cents)
	}
}
