// Package memory is an in-process storage backend for development and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
	"spendlog/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	items []core.Expense
	users map[string]core.User
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: map[string]core.User{}}
}

func (s *Store) Insert(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Date = e.Date.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return e.ID, nil
}

func (s *Store) Find(_ context.Context, f storage.Filter, opts storage.FindOptions) ([]core.Expense, error) {
	out := s.matching(f)
	if opts.Sort == storage.SortDateDesc {
		slices.SortStableFunc(out, func(a, b core.Expense) int {
			if c := b.Date.Compare(a.Date); c != 0 {
				return c
			}
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type groupKey struct {
	cat   core.Category
	year  int
	month time.Month
	week  int
}

func (s *Store) Aggregate(_ context.Context, p storage.Pipeline) ([]storage.Group, error) {
	buckets := map[groupKey]*storage.Group{}
	var order []groupKey
	for _, e := range s.matching(p.Match) {
		var k groupKey
		switch p.GroupBy {
		case storage.GroupNone:
		case storage.GroupCategory:
			k.cat = e.Category
		case storage.GroupMonth:
			k.year, k.month = e.Date.Year(), e.Date.Month()
		case storage.GroupWeek:
			k.year, k.week = e.Date.Year(), storage.SundayWeek(e.Date)
		default:
			return nil, fmt.Errorf("unsupported grouping %d", p.GroupBy)
		}
		g, ok := buckets[k]
		if !ok {
			g = &storage.Group{Category: k.cat, Year: k.year, Month: k.month, Week: k.week}
			buckets[k] = g
			order = append(order, k)
		}
		g.Total += e.Amount
		g.Count++
	}

	out := make([]storage.Group, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}

	switch p.Sort {
	case storage.SortKeyAsc:
		slices.SortFunc(out, compareKey)
	case storage.SortTotalDesc:
		slices.SortFunc(out, func(a, b storage.Group) int {
			if c := cmp.Compare(b.Total, a.Total); c != 0 {
				return c
			}
			return compareKey(a, b)
		})
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func compareKey(a, b storage.Group) int {
	return cmp.Or(
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.Year, b.Year),
		cmp.Compare(a.Month, b.Month),
		cmp.Compare(a.Week, b.Week),
	)
}

func (s *Store) DeleteMany(_ context.Context, f storage.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var n int64
	for _, e := range s.items {
		if f.Match(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.items = kept
	return n, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return core.User{}, fmt.Errorf("user %q: %w", u.Username, storage.ErrConflict)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.Username] = u
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return core.User{}, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// matching returns a copy of the expenses that pass f.
func (s *Store) matching(f storage.Filter) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, e := range s.items {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
