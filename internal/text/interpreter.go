package text

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"envelopes/internal/core"
)

// Repository is the narrow read surface the interpreter needs. Implementations
// are treated as fallible remote calls.
type Repository interface {
	FindUserBySender(ctx context.Context, sender string) (core.User, error)
	ListActiveEnvelopes(ctx context.Context, userID int64) ([]core.Envelope, error)
	FindEnvelopeByName(ctx context.Context, userID int64, name string) (core.Envelope, error)
}

// Ledger is the single write path for transactions.
type Ledger interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Money, error)
}

// Interpreter resolves an inbound (sender, text) pair to a reply. Every
// failure becomes a user-facing message; nothing propagates as an error.
type Interpreter struct {
	repo     Repository
	ledger   Ledger
	sessions *SessionStore
}

func NewInterpreter(repo Repository, ledger Ledger, sessions *SessionStore) *Interpreter {
	return &Interpreter{
		repo:     repo,
		ledger:   ledger,
		sessions: sessions,
	}
}

const (
	replyNotRegistered = "Phone number not registered. Please sign up on the web app first."
	replyFailure       = "Something went wrong. Please try again."
	replyLogin         = "Login successful! You can now text commands to manage your budget. Text 'help' for available commands."
	replyNoEnvelopes   = "You don't have any envelopes yet. Create some in the web app!"
	replyUnrecognized  = "Invalid format. Try: 'Groceries -$25.50' or 'Vacation +$100'. Text 'help' for all commands."
	replyHelp          = "Commands:\n" +
		"- \"Groceries -$25.50\" (record expense)\n" +
		"- \"Vacation +$100\" (add to savings)\n" +
		"- \"balance Groceries\" (check envelope balance)\n" +
		"- \"list\" (show all envelopes)\n" +
		"- \"login\" (authenticate for web access)"
)

// HandleMessage processes one inbound message and returns the reply text.
// The sender identifier must already be normalized to digits only.
func (i *Interpreter) HandleMessage(ctx context.Context, sender, raw string) string {
	user, err := i.repo.FindUserBySender(ctx, sender)
	if errors.Is(err, core.ErrUserNotFound) {
		return replyNotRegistered
	}
	if err != nil {
		slog.ErrorContext(ctx, "Sender lookup failed", "sender", sender, "error", err)
		return replyFailure
	}

	// Housekeeping before any session decision.
	i.sessions.PurgeExpired()

	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "add" || lower == "subtract" {
		if entry, ok := i.sessions.Take(sender); ok {
			return i.completePending(ctx, user, entry, lower)
		}
		// No pending entry: fall through so the keyword gets the generic
		// usage reply instead of silently doing nothing.
	}

	cmd := Parse(raw)
	switch cmd.Kind {
	case CmdHelp:
		return replyHelp
	case CmdLogin:
		return replyLogin
	case CmdList:
		return i.listEnvelopes(ctx, user)
	case CmdBalance:
		return i.envelopeBalance(ctx, user, cmd.EnvelopeName)
	case CmdSignedMove:
		return i.signedMove(ctx, user, cmd, raw)
	case CmdAmbiguousMove:
		i.sessions.Put(sender, cmd.EnvelopeName, cmd.AmountCents)
		amount := core.Money{Cents: cmd.AmountCents}
		return fmt.Sprintf("Did you want to add or deduct %s from %s? "+
			"Try \"%s +%s\" to add or \"%s -%s\" to deduct.\n\n"+
			"Or simply reply \"add\" or \"subtract\" to complete this transaction.",
			amount, cmd.EnvelopeName, cmd.EnvelopeName, amount, cmd.EnvelopeName, amount)
	default:
		return replyUnrecognized
	}
}

// completePending applies a consumed session entry. The entry is already gone
// from the store; failures here never resurrect it.
func (i *Interpreter) completePending(ctx context.Context, user core.User, entry PendingEntry, keyword string) string {
	envelope, err := i.repo.FindEnvelopeByName(ctx, user.ID, entry.EnvelopeName)
	if errors.Is(err, core.ErrEnvelopeNotFound) {
		return fmt.Sprintf("Envelope '%s' not found. Session cleared.", entry.EnvelopeName)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Envelope lookup failed", "envelope", entry.EnvelopeName, "error", err)
		return replyFailure
	}

	// "add" increases the envelope's primary metric, "subtract" reverses it.
	amount := core.Money{Cents: entry.AmountCents}
	var action string
	if keyword == "add" {
		if envelope.Kind == core.KindExpense {
			action = "Spent"
		} else {
			action = "Saved"
		}
	} else {
		amount = amount.Neg()
		if envelope.Kind == core.KindExpense {
			action = "Reduced spending by"
		} else {
			action = "Withdrew"
		}
	}

	sign := "+"
	if amount.Cents < 0 {
		sign = "-"
	}
	description := fmt.Sprintf("Text: %s %s%s", envelope.Name, sign, amount.Abs())

	balance, ok := i.record(ctx, user, envelope, amount, description)
	if !ok {
		return replyFailure
	}
	return fmt.Sprintf("%s %s %s %s. New balance: %s",
		action, amount.Abs(), movePreposition(envelope.Kind, amount), envelope.Name, balance.Abs())
}

func (i *Interpreter) signedMove(ctx context.Context, user core.User, cmd Command, raw string) string {
	envelope, err := i.repo.FindEnvelopeByName(ctx, user.ID, cmd.EnvelopeName)
	if errors.Is(err, core.ErrEnvelopeNotFound) {
		return fmt.Sprintf("Envelope '%s' not found. Create it in the web app first.", cmd.EnvelopeName)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Envelope lookup failed", "envelope", cmd.EnvelopeName, "error", err)
		return replyFailure
	}

	// The sign implies a required envelope kind: "-" targets expense
	// envelopes, "+" targets savings envelopes.
	if cmd.Move != envelope.Kind {
		if cmd.Move == core.KindExpense {
			return fmt.Sprintf("Cannot spend from %s envelope '%s'", envelope.Kind, envelope.Name)
		}
		return fmt.Sprintf("Cannot save to %s envelope '%s'", envelope.Kind, envelope.Name)
	}

	// An explicit signed command always increases the envelope's primary
	// metric: more spent for expense envelopes, more saved for savings.
	amount := core.Money{Cents: cmd.AmountCents}
	description := "Text: " + strings.TrimSpace(raw)

	balance, ok := i.record(ctx, user, envelope, amount, description)
	if !ok {
		return replyFailure
	}

	if envelope.Kind == core.KindExpense {
		return fmt.Sprintf("Spent %s from %s. New balance: %s", amount, envelope.Name, balance.Abs())
	}
	return fmt.Sprintf("Saved %s to %s. New balance: %s", amount, envelope.Name, balance.Abs())
}

func (i *Interpreter) record(ctx context.Context, user core.User, envelope core.Envelope, amount core.Money, description string) (core.Money, bool) {
	_, balance, err := i.ledger.CreateTransaction(ctx, core.Transaction{
		UserID:      user.ID,
		EnvelopeID:  envelope.ID,
		Amount:      amount,
		Description: description,
		Source:      core.SourceText,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record transaction",
			"envelope_id", envelope.ID,
			"amount_cents", amount.Cents,
			"error", err)
		return core.Money{}, false
	}
	return balance, true
}

func (i *Interpreter) listEnvelopes(ctx context.Context, user core.User) string {
	envelopes, err := i.repo.ListActiveEnvelopes(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Envelope list failed", "user_id", user.ID, "error", err)
		return replyFailure
	}
	if len(envelopes) == 0 {
		return replyNoEnvelopes
	}

	lines := make([]string, 0, len(envelopes))
	for _, e := range envelopes {
		if e.Kind == core.KindExpense {
			remaining := e.Remaining()
			status := fmt.Sprintf("%s left", remaining)
			if remaining.Cents < 0 {
				status = fmt.Sprintf("%s over", remaining.Abs())
			}
			lines = append(lines, fmt.Sprintf("%s: %s/%s (%s)", e.Name, e.Balance, e.Budget, status))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s/%s (%d%% saved)", e.Name, e.Balance, e.Budget, e.Progress()))
		}
	}
	return "Your Envelopes:\n" + strings.Join(lines, "\n")
}

func (i *Interpreter) envelopeBalance(ctx context.Context, user core.User, name string) string {
	envelope, err := i.repo.FindEnvelopeByName(ctx, user.ID, name)
	if errors.Is(err, core.ErrEnvelopeNotFound) {
		return fmt.Sprintf("Envelope '%s' not found.", name)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Envelope lookup failed", "envelope", name, "error", err)
		return replyFailure
	}

	if envelope.Kind == core.KindExpense {
		return fmt.Sprintf("%s: %s spent of %s budget. %s remaining.",
			envelope.Name, envelope.Balance, envelope.Budget, envelope.Remaining())
	}
	return fmt.Sprintf("%s: %s saved of %s goal (%d%% complete).",
		envelope.Name, envelope.Balance, envelope.Budget, envelope.Progress())
}

// movePreposition phrases the direction of a movement relative to its
// envelope: money goes "from" an expense budget and "to" a savings goal, and
// the reverse on refunds and withdrawals.
func movePreposition(kind core.EnvelopeKind, amount core.Money) string {
	if kind == core.KindExpense {
		if amount.Cents >= 0 {
			return "from"
		}
		return "back to"
	}
	if amount.Cents >= 0 {
		return "to"
	}
	return "from"
}
