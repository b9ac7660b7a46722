package amqp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"spendlog/internal/core"
)

// ExpenseCreated is published after an expense is stored. It carries the
// full record so consumers do not need store access.
type ExpenseCreated struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Date      time.Time `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreated(e core.Expense) *ExpenseCreated {
	return &ExpenseCreated{
		ID:        e.ID,
		UserID:    e.UserID,
		Title:     e.Title,
		Amount:    e.Amount,
		Category:  string(e.Category),
		Date:      e.Date.UTC(),
		Timestamp: time.Now().UTC(),
	}
}

// Expense converts the message back to the domain record.
func (m *ExpenseCreated) Expense() core.Expense {
	return core.Expense{
		ID:       m.ID,
		UserID:   m.UserID,
		Title:    m.Title,
		Amount:   m.Amount,
		Category: core.Category(m.Category),
		Date:     m.Date.UTC(),
	}
}

// ToJSON encodes the message without HTML escaping.
func (m *ExpenseCreated) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ExpenseCreatedFromJSON decodes and sanity-checks a message body.
func ExpenseCreatedFromJSON(data []byte) (*ExpenseCreated, error) {
	var msg ExpenseCreated
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("expense message missing id or user_id")
	}
	return &msg, nil
}
