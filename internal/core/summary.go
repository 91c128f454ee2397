package core

// Stats is an aggregate view over a user's active envelopes.
type Stats struct {
	TotalBudget Money
	TotalSpent  Money
	TotalSaved  Money
	Remaining   Money
}

// ComputeStats sums budgets and balances across envelopes. Expense envelopes
// contribute to budget/spent, savings envelopes to saved. Inactive envelopes
// are skipped.
func ComputeStats(envelopes []Envelope) Stats {
	var s Stats
	for _, e := range envelopes {
		if !e.Active {
			continue
		}
		switch e.Kind {
		case KindExpense:
			s.TotalBudget = s.TotalBudget.Add(e.Budget)
			s.TotalSpent = s.TotalSpent.Add(e.Balance)
		case KindSavings:
			s.TotalSaved = s.TotalSaved.Add(e.Balance)
		}
	}
	s.Remaining = Money{Cents: s.TotalBudget.Cents - s.TotalSpent.Cents}
	return s
}
