package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"spendlog/internal/cache"
	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/storage"
)

// DraftParser turns a message into a draft without category.
type DraftParser interface {
	Parse(ctx context.Context, message string, ref time.Time) (core.Draft, error)
}

// Categorizer always answers with a member of the category set.
type Categorizer interface {
	Classify(ctx context.Context, title string) core.Category
}

// Publisher announces persisted expenses. Optional.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, e core.Expense) error
}

// ExpenseService orchestrates parsing, classification, persistence and the
// owner-scoped read views.
type ExpenseService struct {
	parser     DraftParser
	classifier Categorizer
	store      storage.ExpenseStore
	views      cache.Cache[any]
	publisher  Publisher
	logger     *log.Logger
	now        func() time.Time

	// genMu guards gens, the per-owner invalidation count. A view computed
	// under an older generation is not cached.
	genMu sync.Mutex
	gens  map[string]uint64
}

// Option customizes an ExpenseService.
type Option func(*ExpenseService)

// WithPublisher emits an event after every successful insert.
func WithPublisher(p Publisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithViewCache caches read views per owner.
func WithViewCache(c cache.Cache[any]) Option {
	return func(s *ExpenseService) { s.views = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(p DraftParser, c Categorizer, store storage.ExpenseStore, logger *log.Logger, opts ...Option) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &ExpenseService{
		parser:     p,
		classifier: c,
		store:      store,
		logger:     logger.WithComponent(log.ComponentIngest),
		now:        time.Now,
		gens:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseDraft parses message and classifies the resulting title. The model's
// own category guess is never used.
func (s *ExpenseService) ParseDraft(ctx context.Context, message, owner string) (core.Draft, error) {
	draft, err := s.parser.Parse(ctx, message, s.now())
	if err != nil {
		s.logger.InfoContext(ctx, "Parse failed",
			log.FieldOwner, owner, log.FieldOperation, log.OpParse, log.FieldError, err)
		return core.Draft{}, err
	}
	draft.Category = s.classifier.Classify(ctx, draft.Title)

	s.logger.DebugContext(ctx, "Parsed expense draft",
		log.FieldOwner, owner,
		log.FieldTitle, draft.Title,
		log.FieldAmount, draft.Amount,
		log.FieldCategory, draft.Category)
	return draft, nil
}

// Ingest normalizes fields into an expense owned by owner and stores it.
//
// An amount that is not a positive number yields core.ErrInvalidAmount. A
// category that is missing, "Other" or unknown is replaced by the
// classifier's answer. Store failures come back as *core.StorageError.
func (s *ExpenseService) Ingest(ctx context.Context, f core.Fields, owner string) (core.Expense, error) {
	if strings.TrimSpace(owner) == "" {
		return core.Expense{}, core.ErrUnauthorized
	}

	amount, err := core.PositiveAmount(f.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: %v", core.ErrInvalidAmount, f.Amount)
	}

	var title string
	if f.Title != nil {
		title = *f.Title
	}

	category := core.Other
	if f.Category != nil {
		if c, ok := core.ParseCategory(*f.Category); ok {
			category = c
		}
	}
	if category == core.Other {
		category = s.classifier.Classify(ctx, title)
	}

	e := core.Expense{
		Title:    title,
		Amount:   amount,
		Date:     core.NormalizeDate(f.Date, s.now()),
		Category: category,
		UserID:   owner,
	}

	id, err := s.store.Insert(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to store expense",
			log.FieldOwner, owner, log.FieldOperation, log.OpIngest, log.FieldError, err)
		return core.Expense{}, &core.StorageError{Op: "insert", Err: err}
	}
	e.ID = id

	s.invalidate(owner)
	s.publish(ctx, e)

	s.logger.InfoContext(ctx, "Expense ingested",
		log.FieldExpenseID, e.ID,
		log.FieldOwner, owner,
		log.FieldAmount, e.Amount,
		log.FieldCategory, e.Category)
	return e, nil
}

func (s *ExpenseService) publish(ctx context.Context, e core.Expense) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseCreated(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, e.ID, log.FieldError, err)
	}
}

func (s *ExpenseService) invalidate(owner string) {
	if s.views == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[owner]++
	s.views.DeletePrefix(owner + "|")
}

func (s *ExpenseService) generation(owner string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[owner]
}

// storeView caches v unless owner was invalidated since gen was read.
func (s *ExpenseService) storeView(owner, key string, gen uint64, v any) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[owner] == gen {
		s.views.Set(key, v)
	}
}

// Clear deletes every expense of owner.
func (s *ExpenseService) Clear(ctx context.Context, owner string) (int64, error) {
	n, err := s.store.DeleteMany(ctx, storage.Filter{OwnerID: owner})
	if err != nil {
		return 0, &core.StorageError{Op: "delete", Err: err}
	}
	s.invalidate(owner)

	s.logger.InfoContext(ctx, "Expenses cleared",
		log.FieldOwner, owner, log.FieldOperation, log.OpDelete, log.FieldCount, n)
	return n, nil
}
