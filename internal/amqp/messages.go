package amqp

import (
	"encoding/json"
	"time"
)

const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// LedgerEventMessage announces a ledger mutation. For creates and updates it
// carries only the transaction ID and the operation; consumers fetch the
// current record from storage so stale messages cannot overwrite newer state.
// Deletes carry a snapshot of the removed record, which no longer exists in
// storage by the time the message is consumed.
type LedgerEventMessage struct {
	TransactionID int64                `json:"transaction_id"`
	Op            string               `json:"op"`
	Deleted       *TransactionSnapshot `json:"deleted,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// TransactionSnapshot captures a deleted transaction's fields.
type TransactionSnapshot struct {
	UserID      int64  `json:"user_id"`
	EnvelopeID  int64  `json:"envelope_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

func NewLedgerEventMessage(transactionID int64, op string) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID: transactionID,
		Op:            op,
		Timestamp:     time.Now(),
	}
}

func NewLedgerDeleteMessage(transactionID int64, snapshot TransactionSnapshot) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID: transactionID,
		Op:            OpDeleted,
		Deleted:       &snapshot,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
