package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/storage"
)

const (
	listLimit     = 100
	topCategories = 5
	monthlyWindow = 180 * 24 * time.Hour
	weeklyWindow  = 28 * 24 * time.Hour
)

type (
	Summary struct {
		TotalExpenses float64 `json:"total_expenses"`
	}

	CategoryTotal struct {
		Category core.Category `json:"category"`
		Total    float64       `json:"total"`
		Count    int64         `json:"count"`
	}

	MonthTotal struct {
		Month string  `json:"month"`
		Total float64 `json:"total"`
		Count int64   `json:"count"`
	}

	WeekTotal struct {
		Week  string  `json:"week"`
		Total float64 `json:"total"`
		Count int64   `json:"count"`
	}

	TopCategory struct {
		Category core.Category `json:"category"`
		Total    float64       `json:"total"`
	}
)

// cached serves key from the view cache or computes and stores it.
func cached[T any](s *ExpenseService, owner, view string, compute func() (T, error)) (T, error) {
	key := owner + "|" + view
	if s.views == nil {
		v, err := compute()
		if err != nil {
			var zero T
			return zero, &core.StorageError{Op: view, Err: err}
		}
		return v, nil
	}
	if v, ok := s.views.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	gen := s.generation(owner)
	v, err := compute()
	if err != nil {
		var zero T
		return zero, &core.StorageError{Op: view, Err: err}
	}
	s.storeView(owner, key, gen, v)
	return v, nil
}

// Summary returns the sum of all amounts of owner.
func (s *ExpenseService) Summary(ctx context.Context, owner string) (Summary, error) {
	return cached(s, owner, "summary", func() (Summary, error) {
		groups, err := s.store.Aggregate(ctx, storage.Pipeline{
			Match: storage.Filter{OwnerID: owner},
		})
		if err != nil {
			return Summary{}, err
		}
		var total float64
		if len(groups) > 0 {
			total = groups[0].Total
		}
		return Summary{TotalExpenses: round2(total)}, nil
	})
}

// Today returns the expenses dated within the current UTC day, newest first.
func (s *ExpenseService) Today(ctx context.Context, owner string) ([]core.Expense, error) {
	start := s.now().UTC().Truncate(24 * time.Hour)
	return cached(s, owner, "today:"+start.Format(time.DateOnly), func() ([]core.Expense, error) {
		return s.find(ctx, storage.Filter{OwnerID: owner, From: start, To: start.Add(24 * time.Hour)})
	})
}

// All returns the most recent expenses of owner.
func (s *ExpenseService) All(ctx context.Context, owner string) ([]core.Expense, error) {
	return cached(s, owner, "all", func() ([]core.Expense, error) {
		return s.find(ctx, storage.Filter{OwnerID: owner})
	})
}

func (s *ExpenseService) find(ctx context.Context, f storage.Filter) ([]core.Expense, error) {
	out, err := s.store.Find(ctx, f, storage.FindOptions{Sort: storage.SortDateDesc, Limit: listLimit})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Expense{}
	}
	return out, nil
}

// CategorySummary totals owner's expenses per category.
func (s *ExpenseService) CategorySummary(ctx context.Context, owner string) ([]CategoryTotal, error) {
	return cached(s, owner, "categories", func() ([]CategoryTotal, error) {
		groups, err := s.store.Aggregate(ctx, storage.Pipeline{
			Match:   storage.Filter{OwnerID: owner},
			GroupBy: storage.GroupCategory,
			Sort:    storage.SortKeyAsc,
		})
		if err != nil {
			return nil, err
		}
		out := make([]CategoryTotal, 0, len(groups))
		for _, g := range groups {
			out = append(out, CategoryTotal{Category: g.Category, Total: round2(g.Total), Count: g.Count})
		}
		return out, nil
	})
}

// MonthlyTrends totals the last 180 days per calendar month, oldest first.
func (s *ExpenseService) MonthlyTrends(ctx context.Context, owner string) ([]MonthTotal, error) {
	return cached(s, owner, "monthly", func() ([]MonthTotal, error) {
		groups, err := s.store.Aggregate(ctx, storage.Pipeline{
			Match:   storage.Filter{OwnerID: owner, From: s.now().UTC().Add(-monthlyWindow)},
			GroupBy: storage.GroupMonth,
			Sort:    storage.SortKeyAsc,
		})
		if err != nil {
			return nil, err
		}
		out := make([]MonthTotal, 0, len(groups))
		for _, g := range groups {
			label := time.Date(g.Year, g.Month, 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
			out = append(out, MonthTotal{Month: label, Total: round2(g.Total), Count: g.Count})
		}
		return out, nil
	})
}

// WeeklyTrends totals the last 28 days per week. Labels are positional,
// "Week 1" being the oldest week with expenses.
func (s *ExpenseService) WeeklyTrends(ctx context.Context, owner string) ([]WeekTotal, error) {
	return cached(s, owner, "weekly", func() ([]WeekTotal, error) {
		groups, err := s.store.Aggregate(ctx, storage.Pipeline{
			Match:   storage.Filter{OwnerID: owner, From: s.now().UTC().Add(-weeklyWindow)},
			GroupBy: storage.GroupWeek,
			Sort:    storage.SortKeyAsc,
		})
		if err != nil {
			return nil, err
		}
		out := make([]WeekTotal, 0, len(groups))
		for i, g := range groups {
			out = append(out, WeekTotal{Week: fmt.Sprintf("Week %d", i+1), Total: round2(g.Total), Count: g.Count})
		}
		return out, nil
	})
}

// TopCategories returns the five categories with the highest totals.
func (s *ExpenseService) TopCategories(ctx context.Context, owner string) ([]TopCategory, error) {
	return cached(s, owner, "top", func() ([]TopCategory, error) {
		groups, err := s.store.Aggregate(ctx, storage.Pipeline{
			Match:   storage.Filter{OwnerID: owner},
			GroupBy: storage.GroupCategory,
			Sort:    storage.SortTotalDesc,
			Limit:   topCategories,
		})
		if err != nil {
			return nil, err
		}
		out := make([]TopCategory, 0, len(groups))
		for _, g := range groups {
			out = append(out, TopCategory{Category: g.Category, Total: round2(g.Total)})
		}
		return out, nil
	})
}

// round2 rounds to cents. Non-finite sums saturate instead of reaching
// decimal, which panics on them.
func round2(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
