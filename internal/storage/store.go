// Package storage defines the persistence port and its SQLite backend.
package storage

import (
	"context"
	"errors"
	"time"

	"spendlog/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Filter selects expenses of one owner, optionally within [From, To).
// Zero times are unbounded.
type Filter struct {
	OwnerID string
	From    time.Time
	To      time.Time
}

// Match reports whether e passes the filter.
func (f Filter) Match(e core.Expense) bool {
	if e.UserID != f.OwnerID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Date.Before(f.To) {
		return false
	}
	return true
}

type Sort int

const (
	SortNone Sort = iota
	SortDateDesc
	SortKeyAsc
	SortTotalDesc
)

type FindOptions struct {
	Sort  Sort
	Limit int
}

type GroupBy int

const (
	GroupNone GroupBy = iota
	GroupCategory
	GroupMonth
	GroupWeek
)

// Pipeline is a match-group-sort-limit aggregation.
type Pipeline struct {
	Match   Filter
	GroupBy GroupBy
	Sort    Sort
	Limit   int
}

// Group is one aggregation bucket. Only the key fields of the requested
// grouping are set. Week is the Sunday-based week of the year (0-53).
type Group struct {
	Category core.Category
	Year     int
	Month    time.Month
	Week     int
	Total    float64
	Count    int64
}

// ExpenseStore is the document-store capability used by the services.
type ExpenseStore interface {
	Insert(ctx context.Context, e core.Expense) (string, error)
	Find(ctx context.Context, f Filter, opts FindOptions) ([]core.Expense, error)
	Aggregate(ctx context.Context, p Pipeline) ([]Group, error)
	DeleteMany(ctx context.Context, f Filter) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
}

// Store is what a backend provides to the process.
type Store interface {
	ExpenseStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

// SundayWeek returns the week of the year with Sunday as first day, matching
// strftime's %U.
func SundayWeek(t time.Time) int {
	return (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
}
