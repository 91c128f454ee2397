// Package text turns free-form budget commands into ledger operations.
//
// The grammar is deliberately small: envelope name plus a signed dollar
// amount, a few keyword commands, and a clarification flow for amounts whose
// sign was omitted.
package text

import (
	"regexp"
	"strings"

	"envelopes/internal/core"
)

// CommandKind tags the parsed variant of an incoming message.
type CommandKind int

const (
	CmdUnrecognized CommandKind = iota
	CmdHelp
	CmdBalance
	CmdList
	CmdLogin
	CmdSignedMove
	CmdAmbiguousMove
)

// Command is the structured result of parsing one message. EnvelopeName is
// the raw name as typed; resolution against actual envelopes happens in the
// interpreter. For CmdSignedMove, Move carries the movement type implied by
// the sign: "-" is an expense movement, "+" a savings movement. AmountCents
// is always positive; direction comes from Move or a follow-up reply.
type Command struct {
	Kind         CommandKind
	EnvelopeName string
	AmountCents  int64
	Move         core.EnvelopeKind
}

var (
	balanceRe = regexp.MustCompile(`(?i)^balance\s+(.+)$`)
	// name, sign, amount with optional $ and up to two decimals
	signedRe   = regexp.MustCompile(`^(.+?)\s*([+-])\$?(\d+(?:\.\d{1,2})?)$`)
	unsignedRe = regexp.MustCompile(`^(.+?)\s*\$?(\d+(?:\.\d{1,2})?)$`)
)

// Parse maps one line of text to a Command. It is pure: no storage lookups,
// no session state. Rules are tried in priority order; the first match wins.
func Parse(raw string) Command {
	msg := strings.TrimSpace(raw)
	for _, rule := range rules {
		if cmd, ok := rule(msg); ok {
			return cmd
		}
	}
	return Command{Kind: CmdUnrecognized}
}

// Ordered pattern-to-handler rules.
var rules = []func(string) (Command, bool){
	matchHelp,
	matchBalance,
	matchList,
	matchLogin,
	matchSigned,
	matchAmbiguous,
}

func matchHelp(msg string) (Command, bool) {
	if strings.Contains(strings.ToLower(msg), "help") {
		return Command{Kind: CmdHelp}, true
	}
	return Command{}, false
}

func matchBalance(msg string) (Command, bool) {
	if m := balanceRe.FindStringSubmatch(msg); m != nil {
		return Command{Kind: CmdBalance, EnvelopeName: strings.TrimSpace(m[1])}, true
	}
	return Command{}, false
}

func matchList(msg string) (Command, bool) {
	if strings.EqualFold(msg, "list") {
		return Command{Kind: CmdList}, true
	}
	return Command{}, false
}

func matchLogin(msg string) (Command, bool) {
	if strings.EqualFold(msg, "login") {
		return Command{Kind: CmdLogin}, true
	}
	return Command{}, false
}

func matchSigned(msg string) (Command, bool) {
	m := signedRe.FindStringSubmatch(msg)
	if m == nil {
		return Command{}, false
	}
	cents, err := core.ParseUnsignedCents(m[3])
	if err != nil {
		// Numeric capture that does not parse (zero, overflow) is
		// unrecognized input, never a crash.
		return Command{Kind: CmdUnrecognized}, true
	}
	move := core.KindSavings
	if m[2] == "-" {
		move = core.KindExpense
	}
	return Command{
		Kind:         CmdSignedMove,
		EnvelopeName: strings.TrimSpace(m[1]),
		AmountCents:  cents,
		Move:         move,
	}, true
}

func matchAmbiguous(msg string) (Command, bool) {
	m := unsignedRe.FindStringSubmatch(msg)
	if m == nil {
		return Command{}, false
	}
	cents, err := core.ParseUnsignedCents(m[2])
	if err != nil {
		return Command{Kind: CmdUnrecognized}, true
	}
	return Command{
		Kind:         CmdAmbiguousMove,
		EnvelopeName: strings.TrimSpace(m[1]),
		AmountCents:  cents,
	}, true
}
