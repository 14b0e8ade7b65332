package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordKind names the kind of record a change event refers to.
type RecordKind string

const (
	KindTransaction RecordKind = "transaction"
	KindBudget      RecordKind = "budget"
)

// ChangeOp is the mutation that produced a change event.
type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
)

// RecordChangedMessage announces a mutation in the record store.
// It carries only identifiers and the affected month; consumers re-read the
// store to obtain current state.
type RecordChangedMessage struct {
	Kind      RecordKind `json:"kind"`
	Op        ChangeOp   `json:"op"`
	ID        string     `json:"id"`
	Month     string     `json:"month"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewRecordChangedMessage stamps a change event with the current time.
func NewRecordChangedMessage(kind RecordKind, op ChangeOp, id, month string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Kind:      kind,
		Op:        op,
		ID:        id,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and sanity-checks a change event.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case KindTransaction, KindBudget:
	default:
		return nil, fmt.Errorf("unknown record kind %q", msg.Kind)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("missing record id")
	}
	return &msg, nil
}
