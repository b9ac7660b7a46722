// Package memory is an in-process mirror target, used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"spendlog/internal/core"
	"spendlog/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows [][]any
}

var _ sheets.ExpenseWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

// Append records the row and returns a synthetic row reference.
func (w *Writer) Append(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, sheets.Row(e))
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() [][]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]any, len(w.rows))
	copy(out, w.rows)
	return out
}
