package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spendlog/internal/core"
)

// dateLayout is fixed width so text comparison matches time order.
const dateLayout = "2006-01-02T15:04:05.000Z"

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func buildDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Insert(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, title, amount, date, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Amount, formatDate(e.Date), string(e.Category), formatDate(e.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", classify(err))
	}
	return e.ID, nil
}

func (s *SQLiteStore) Find(ctx context.Context, f Filter, opts FindOptions) ([]core.Expense, error) {
	where, args := whereClause(f)
	q := `SELECT id, user_id, title, amount, date, category, created_at FROM expenses` + where
	if opts.Sort == SortDateDesc {
		q += ` ORDER BY date DESC, created_at DESC`
	}
	if opts.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e                 core.Expense
			cat, date, create string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount, &date, &cat, &create); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Category = core.Category(cat)
		if e.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		e.CreatedAt, _ = parseDate(create)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Aggregate(ctx context.Context, p Pipeline) ([]Group, error) {
	var keyCols string
	switch p.GroupBy {
	case GroupNone:
		keyCols = ``
	case GroupCategory:
		keyCols = `category`
	case GroupMonth:
		keyCols = `CAST(strftime('%Y', date) AS INTEGER), CAST(strftime('%m', date) AS INTEGER)`
	case GroupWeek:
		keyCols = `CAST(strftime('%Y', date) AS INTEGER), CAST(strftime('%U', date) AS INTEGER)`
	default:
		return nil, fmt.Errorf("unsupported grouping %d", p.GroupBy)
	}

	where, args := whereClause(p.Match)
	q := `SELECT `
	if keyCols != "" {
		q += keyCols + `, `
	}
	q += `COALESCE(SUM(amount), 0), COUNT(*) FROM expenses` + where
	if keyCols != "" {
		q += ` GROUP BY ` + keyCols
	}
	switch p.Sort {
	case SortKeyAsc:
		if keyCols != "" {
			q += ` ORDER BY ` + keyCols
		}
	case SortTotalDesc:
		q += fmt.Sprintf(` ORDER BY %d DESC`, keyCount(p.GroupBy)+1)
		if keyCols != "" {
			q += `, ` + keyCols
		}
	}
	if p.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(p.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate expenses: %w", err)
	}
	defer rows.Close()

	out := []Group{}
	for rows.Next() {
		var (
			g      Group
			cat    string
			a, b   int
			target []any
		)
		switch p.GroupBy {
		case GroupCategory:
			target = []any{&cat}
		case GroupMonth, GroupWeek:
			target = []any{&a, &b}
		}
		target = append(target, &g.Total, &g.Count)
		if err := rows.Scan(target...); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		switch p.GroupBy {
		case GroupCategory:
			g.Category = core.Category(cat)
		case GroupMonth:
			g.Year, g.Month = a, time.Month(b)
		case GroupWeek:
			g.Year, g.Week = a, b
		}
		if g.Count == 0 {
			continue
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	where, args := whereClause(f)
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expenses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, formatDate(u.CreatedAt))
	if err != nil {
		return core.User{}, fmt.Errorf("create user %q: %w", u.Username, classify(err))
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	u.CreatedAt, _ = parseDate(created)
	return u, nil
}

func whereClause(f Filter) (string, []any) {
	conds := []string{`user_id = ?`}
	args := []any{f.OwnerID}
	if !f.From.IsZero() {
		conds = append(conds, `date >= ?`)
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, `date < ?`)
		args = append(args, formatDate(f.To))
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func keyCount(g GroupBy) int {
	switch g {
	case GroupCategory:
		return 1
	case GroupMonth, GroupWeek:
		return 2
	}
	return 0
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// classify maps constraint violations to ErrConflict.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}
