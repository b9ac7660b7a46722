package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/cache"
	"spendlog/internal/categorize"
	"spendlog/internal/core"
	"spendlog/internal/llm"
	"spendlog/internal/parser"
	"spendlog/internal/storage"
	"spendlog/internal/storage/memory"
)

var fixedNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Expense
	err    error
}

func (p *recordingPublisher) PublishExpenseCreated(_ context.Context, e core.Expense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type failingStore struct{ storage.ExpenseStore }

func (failingStore) Insert(context.Context, core.Expense) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Find(context.Context, storage.Filter, storage.FindOptions) ([]core.Expense, error) {
	return nil, errors.New("disk full")
}

func newService(t *testing.T, model llm.TextGenerator, store storage.ExpenseStore, opts ...Option) *ExpenseService {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewExpenseService(parser.New(model, nil), categorize.New(nil, nil), store, nil, opts...)
}

func TestIngestRoundTrip(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	svc := newService(t, nil, store, WithPublisher(pub))
	ctx := context.Background()

	e, err := svc.Ingest(ctx, core.Fields{
		Title:    ptr("Lunch"),
		Amount:   "12.50",
		Date:     "2024-01-01",
		Category: ptr(string(core.FoodAndDining)),
	}, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 12.5, e.Amount)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), e.Date)

	all, err := svc.All(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, e.ID, all[0].ID)
	assert.Equal(t, "u1", all[0].UserID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, e.ID, pub.events[0].ID)

	others, err := svc.All(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestIngestRejectsBadAmounts(t *testing.T) {
	svc := newService(t, nil, memory.New())
	for _, amount := range []any{0, -5, "abc", nil, "0", "1e400", 1.7e308, core.MaxAmount * 2} {
		_, err := svc.Ingest(context.Background(), core.Fields{Title: ptr("x"), Amount: amount}, "u1")
		assert.ErrorIs(t, err, core.ErrInvalidAmount, "amount %v", amount)
	}
}

func TestIngestReclassifiesCategory(t *testing.T) {
	svc := newService(t, nil, memory.New())
	tests := []struct {
		name     string
		category *string
		want     core.Category
	}{
		{"absent", nil, core.Transportation},
		{"other", ptr("Other"), core.Transportation},
		{"unknown", ptr("Cabs"), core.Transportation},
		{"kept", ptr(string(core.Travel)), core.Travel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := svc.Ingest(context.Background(), core.Fields{
				Title: ptr("Uber to airport"), Amount: 30, Category: tt.category,
			}, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Category)
		})
	}
}

func TestIngestDefaults(t *testing.T) {
	svc := newService(t, nil, memory.New())
	e, err := svc.Ingest(context.Background(), core.Fields{Amount: 7, Date: "yesterday"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", e.Title)
	assert.Equal(t, core.Other, e.Category)
	assert.Equal(t, fixedNow, e.Date)
}

func TestIngestStorageFailure(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, nil, failingStore{}, WithPublisher(pub))

	_, err := svc.Ingest(context.Background(), core.Fields{Title: ptr("x"), Amount: 1}, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
	var se *core.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert", se.Op)
	assert.Empty(t, pub.events)

	_, err = svc.All(context.Background(), "u1")
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestIngestPublishFailureIsNotSurfaced(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, nil, memory.New(), WithPublisher(pub))
	_, err := svc.Ingest(context.Background(), core.Fields{Title: ptr("x"), Amount: 1}, "u1")
	assert.NoError(t, err)
}

func TestParseDraftCoffee(t *testing.T) {
	model := llm.Func(func(context.Context, string) (string, error) {
		return "```json\n{\"title\": \"Coffee\", \"amount\": 150, \"date\": \"2024-01-01T19:00:00\", \"category\": \"Other\"}\n```", nil
	})
	svc := newService(t, model, memory.New())

	d, err := svc.ParseDraft(context.Background(), "coffee 150 yesterday evening", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", d.Title)
	assert.Equal(t, 150.0, d.Amount)
	assert.Equal(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC), d.Date)
	assert.Equal(t, core.FoodAndDining, d.Category)
}

func TestParseDraftFailure(t *testing.T) {
	model := llm.Func(func(context.Context, string) (string, error) { return "no idea", nil })
	svc := newService(t, model, memory.New())

	_, err := svc.ParseDraft(context.Background(), "hmm", "u1")
	assert.ErrorIs(t, err, core.ErrParseFailure)
}

func seed(t *testing.T, svc *ExpenseService, owner string) {
	t.Helper()
	rows := []struct {
		title  string
		amount float64
		date   string
	}{
		{"Coffee", 3.5, "2024-01-02T08:00:00Z"},
		{"Taxi", 20, "2024-01-02T09:00:00Z"},
		{"Lunch", 12.25, "2023-12-28T12:00:00Z"},
		{"Netflix", 9.99, "2023-11-15T00:00:00Z"},
		{"Old book", 40, "2023-01-15T00:00:00Z"},
	}
	for _, r := range rows {
		_, err := svc.Ingest(context.Background(), core.Fields{Title: ptr(r.title), Amount: r.amount, Date: r.date}, owner)
		require.NoError(t, err)
	}
}

func TestViews(t *testing.T) {
	svc := newService(t, nil, memory.New())
	ctx := context.Background()
	seed(t, svc, "u1")

	sum, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 85.74, sum.TotalExpenses)

	today, err := svc.Today(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, "Taxi", today[0].Title)

	cats, err := svc.CategorySummary(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, cats, CategoryTotal{Category: core.FoodAndDining, Total: 15.75, Count: 2})

	top, err := svc.TopCategories(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, TopCategory{Category: core.Education, Total: 40}, top[0])

	months, err := svc.MonthlyTrends(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []MonthTotal{
		{Month: "Nov 2023", Total: 9.99, Count: 1},
		{Month: "Dec 2023", Total: 12.25, Count: 1},
		{Month: "Jan 2024", Total: 23.5, Count: 2},
	}, months)

	weeks, err := svc.WeeklyTrends(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, weeks, 2)
	assert.Equal(t, WeekTotal{Week: "Week 1", Total: 12.25, Count: 1}, weeks[0])
	assert.Equal(t, WeekTotal{Week: "Week 2", Total: 23.5, Count: 2}, weeks[1])
}

func TestViewsSaturateOnOverflow(t *testing.T) {
	store := memory.New()
	svc := newService(t, nil, store)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := store.Insert(ctx, core.Expense{
			Title: "Yacht", Amount: 1.7e308, Date: fixedNow, Category: core.Shopping, UserID: "u1",
		})
		require.NoError(t, err)
	}

	sum, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, math.MaxFloat64, sum.TotalExpenses)

	top, err := svc.TopCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, math.MaxFloat64, top[0].Total)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 12.35, round2(12.346))
	assert.Equal(t, math.MaxFloat64, round2(math.Inf(1)))
	assert.Equal(t, -math.MaxFloat64, round2(math.Inf(-1)))
	assert.Zero(t, round2(math.NaN()))
}

func TestEmptyViews(t *testing.T) {
	svc := newService(t, nil, memory.New())
	ctx := context.Background()

	sum, err := svc.Summary(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalExpenses)

	all, err := svc.All(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestViewCacheInvalidatedOnWrite(t *testing.T) {
	views := cache.NewLRUCache[any](100, time.Minute)
	svc := newService(t, nil, memory.New(), WithViewCache(views))
	ctx := context.Background()

	_, err := svc.Ingest(ctx, core.Fields{Title: ptr("Taxi"), Amount: 10}, "u1")
	require.NoError(t, err)
	sum, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum.TotalExpenses)
	assert.Equal(t, 1, views.Size())

	_, err = svc.Ingest(ctx, core.Fields{Title: ptr("Taxi"), Amount: 5}, "u1")
	require.NoError(t, err)
	sum, err = svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, sum.TotalExpenses)

	n, err := svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	sum, err = svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalExpenses)
}

// racingStore calls during once, after reading the aggregate and before
// returning it.
type racingStore struct {
	storage.ExpenseStore
	during func()
}

func (r *racingStore) Aggregate(ctx context.Context, p storage.Pipeline) ([]storage.Group, error) {
	groups, err := r.ExpenseStore.Aggregate(ctx, p)
	if r.during != nil {
		during := r.during
		r.during = nil
		during()
	}
	return groups, err
}

func TestStaleViewNotCachedAfterConcurrentWrite(t *testing.T) {
	views := cache.NewLRUCache[any](100, time.Minute)
	store := &racingStore{ExpenseStore: memory.New()}
	svc := newService(t, nil, store, WithViewCache(views))
	ctx := context.Background()

	store.during = func() {
		_, err := svc.Ingest(ctx, core.Fields{Title: ptr("Taxi"), Amount: 10}, "u1")
		require.NoError(t, err)
	}

	sum, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, sum.TotalExpenses)
	assert.Zero(t, views.Size())

	sum, err = svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum.TotalExpenses)
	assert.Equal(t, 1, views.Size())
}

func TestClearIsOwnerScoped(t *testing.T) {
	svc := newService(t, nil, memory.New())
	ctx := context.Background()
	seed(t, svc, "u1")
	seed(t, svc, "u2")

	n, err := svc.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	rest, err := svc.All(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, rest, 5)
}
