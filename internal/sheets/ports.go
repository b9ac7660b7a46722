// Package sheets mirrors stored expenses into a spreadsheet.
package sheets

import (
	"context"

	"spendlog/internal/core"
)

// ExpenseWriter appends one expense as a spreadsheet row and returns a
// reference to the written range.
type ExpenseWriter interface {
	Append(ctx context.Context, e core.Expense) (rowRef string, err error)
}

// Row is the column layout of the mirror sheet: date, title, amount,
// category, owner.
func Row(e core.Expense) []any {
	return []any{
		e.Date.UTC().Format(core.DraftLayout),
		e.Title,
		e.Amount,
		string(e.Category),
		e.UserID,
	}
}
