package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spendcast/internal/core"
)

// HistoryRefreshMessage asks a worker to re-fetch one user's history.
// From and To are YYYY-MM-DD; both empty means the worker's default window.
type HistoryRefreshMessage struct {
	UserID      string    `json:"user_id"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewHistoryRefreshMessage creates a refresh request. A nil range leaves the window to the worker.
func NewHistoryRefreshMessage(userID string, rng *core.DateRange) *HistoryRefreshMessage {
	msg := &HistoryRefreshMessage{
		UserID:      userID,
		RequestedAt: time.Now().UTC(),
	}
	if rng != nil {
		msg.From = core.FormatDate(rng.Start)
		msg.To = core.FormatDate(rng.End)
	}
	return msg
}

// Range returns the requested window, or nil when none was given.
func (m *HistoryRefreshMessage) Range() (*core.DateRange, error) {
	if m.From == "" && m.To == "" {
		return nil, nil
	}
	if m.From == "" || m.To == "" {
		return nil, fmt.Errorf("%w: from and to must be set together", core.ErrInvalidRange)
	}
	start, err := core.ParseDate(m.From)
	if err != nil {
		return nil, err
	}
	end, err := core.ParseDate(m.To)
	if err != nil {
		return nil, err
	}
	rng := core.DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &rng, nil
}

// ToJSON converts the message to JSON bytes
func (m *HistoryRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// HistoryRefreshMessageFromJSON decodes and validates a message body.
func HistoryRefreshMessageFromJSON(data []byte) (*HistoryRefreshMessage, error) {
	var msg HistoryRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	if _, err := msg.Range(); err != nil {
		return nil, err
	}
	return &msg, nil
}
