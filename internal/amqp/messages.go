package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action names the kind of ledger change a message announces.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

// LedgerChangedMessage announces that one expense of one user changed.
// Consumers re-read the store for details; the message carries identifiers only.
type LedgerChangedMessage struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ExpenseID int64     `json:"expenseId"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(userID string, expenseID int64, action Action) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		MessageID: uuid.NewString(),
		UserID:    userID,
		ExpenseID: expenseID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes and sanity-checks a message body.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("message %s has no userId", msg.MessageID)
	}
	if !msg.Action.IsValid() {
		return nil, fmt.Errorf("message %s has unknown action %q", msg.MessageID, msg.Action)
	}
	return &msg, nil
}
