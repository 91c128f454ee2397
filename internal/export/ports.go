package export

import (
	"context"
	"errors"
	"strings"
	"time"

	"envelopes/internal/core"
)

// Row is one exported ledger entry. Exports are append-only: updates and
// deletions show up as new rows carrying the correcting amount, so the
// exported sheet reads as a journal rather than a mutable table.
type Row struct {
	TransactionID int64
	Occurred      time.Time
	Username      string
	Envelope      string
	Kind          core.EnvelopeKind
	Amount        core.Money
	Description   string
	Op            string
}

func (r Row) Validate() error {
	if r.TransactionID <= 0 {
		return errors.New("missing transaction id")
	}
	if strings.TrimSpace(r.Envelope) == "" {
		return errors.New("missing envelope name")
	}
	if r.Amount.Cents == 0 {
		return core.ErrInvalidAmount
	}
	return nil
}

// Appender is the port for outbound export backends.
type Appender interface {
	Append(ctx context.Context, r Row) (rowRef string, err error)
}
