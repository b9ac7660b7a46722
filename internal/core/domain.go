package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed spending categories.
type Category string

const (
	FoodAndDining     Category = "Food & Dining"
	Transportation    Category = "Transportation"
	Shopping          Category = "Shopping"
	Entertainment     Category = "Entertainment"
	BillsAndUtilities Category = "Bills & Utilities"
	Healthcare        Category = "Healthcare"
	Education         Category = "Education"
	Travel            Category = "Travel"
	Groceries         Category = "Groceries"
	Fuel              Category = "Fuel"
	PersonalCare      Category = "Personal Care"
	HomeAndGarden     Category = "Home & Garden"
	GiftsAndDonations Category = "Gifts & Donations"
	Subscriptions     Category = "Subscriptions"
	Other             Category = "Other"
)

// categories keeps the order used when listing the set to the model.
var categories = []Category{
	FoodAndDining, Transportation, Shopping, Entertainment,
	BillsAndUtilities, Healthcare, Education, Travel,
	Groceries, Fuel, PersonalCare, HomeAndGarden,
	GiftsAndDonations, Subscriptions, Other,
}

// Categories returns a copy of the fixed category set, "Other" last.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory reports whether s is exactly a member of the category set.
func ParseCategory(s string) (Category, bool) {
	for _, c := range categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Valid returns true if c belongs to the category set.
func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}

func (c Category) String() string {
	return string(c)
}

type (
	// Expense is the persisted record.
	Expense struct {
		ID        string    `json:"_id"`
		Title     string    `json:"title"`
		Amount    float64   `json:"amount"`
		Date      time.Time `json:"date"`
		Category  Category  `json:"category"`
		UserID    string    `json:"user_id"`
		CreatedAt time.Time `json:"-"`
	}

	// Draft is a parsed expense awaiting confirmation by the caller.
	Draft struct {
		Title    string
		Amount   float64
		Date     time.Time
		Category Category
	}

	// Fields carries raw, caller-supplied expense values before normalization.
	// Amount and Date keep whatever type the caller sent (number, text, time).
	Fields struct {
		Title    *string
		Amount   any
		Date     any
		Category *string
	}

	// User owns expenses.
	User struct {
		ID           string
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}
)

var (
	ErrParseFailure  = errors.New("could not parse expense")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrStorage       = errors.New("storage failure")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidDate   = errors.New("invalid date")
)

// StorageError wraps a persistence failure. It matches ErrStorage with errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Validate checks the invariants of a record about to be persisted.
func (e Expense) Validate() error {
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if strings.TrimSpace(e.UserID) == "" {
		return ErrUnauthorized
	}
	return nil
}

// FieldsFromMap builds Fields from a decoded JSON object. Non-string titles
// and categories are treated as absent.
func FieldsFromMap(m map[string]any) Fields {
	var f Fields
	if v, ok := m["title"].(string); ok {
		f.Title = &v
	}
	if v, ok := m["amount"]; ok {
		f.Amount = v
	}
	if v, ok := m["date"]; ok && v != nil {
		f.Date = v
	}
	if v, ok := m["category"].(string); ok {
		f.Category = &v
	}
	return f
}

// MarshalJSON renders the draft in the shape returned by /parse_expense.
func (d Draft) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Title    string   `json:"title"`
		Amount   float64  `json:"amount"`
		Date     string   `json:"date"`
		Category Category `json:"category"`
	}{
		Title:    d.Title,
		Amount:   d.Amount,
		Date:     d.Date.UTC().Format(DraftLayout),
		Category: d.Category,
	})
}
