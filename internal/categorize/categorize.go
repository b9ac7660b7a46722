// Package categorize maps an expense title to one of the fixed categories.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"spendlog/internal/core"
	"spendlog/internal/llm"
	"spendlog/internal/log"
)

type keywordGroup struct {
	category core.Category
	words    []string
}

// Order matters: first match wins, so "gas" lands in Fuel before Bills.
var keywordGroups = []keywordGroup{
	{core.FoodAndDining, []string{"food", "restaurant", "cafe", "coffee", "lunch", "dinner", "breakfast"}},
	{core.Transportation, []string{"uber", "taxi", "bus", "train", "metro", "transport"}},
	{core.Groceries, []string{"grocery", "supermarket", "vegetables", "fruits"}},
	{core.Fuel, []string{"petrol", "diesel", "fuel", "gas"}},
	{core.Entertainment, []string{"movie", "cinema", "game", "entertainment"}},
	{core.BillsAndUtilities, []string{"electricity", "water", "gas", "internet", "phone", "bill"}},
	{core.Healthcare, []string{"medicine", "doctor", "hospital", "health"}},
	{core.Education, []string{"book", "course", "education", "school", "college"}},
	{core.Shopping, []string{"shop", "shopping", "clothes", "dress"}},
	{core.Subscriptions, []string{"netflix", "spotify", "subscription", "prime"}},
}

// Fallback is the deterministic keyword classifier. It never returns a value
// outside the category set.
func Fallback(title string) core.Category {
	t := strings.ToLower(title)
	for _, g := range keywordGroups {
		for _, w := range g.words {
			if strings.Contains(t, w) {
				return g.category
			}
		}
	}
	return core.Other
}

// Classifier asks the model first and falls back to keywords.
type Classifier struct {
	model  llm.TextGenerator
	logger *log.Logger
}

// New returns a Classifier. A nil model means keyword-only classification.
func New(model llm.TextGenerator, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Discard()
	}
	return &Classifier{model: model, logger: logger.WithComponent(log.ComponentClassifier)}
}

// Classify is total: model errors and off-list answers route to Fallback.
func (c *Classifier) Classify(ctx context.Context, title string) core.Category {
	if c == nil || c.model == nil {
		return Fallback(title)
	}

	answer, err := c.model.Generate(ctx, buildPrompt(title))
	if err != nil {
		cat := Fallback(title)
		c.logger.WarnContext(ctx, "Model classification failed, using keywords",
			log.FieldTitle, title, log.FieldCategory, cat, log.FieldError, err)
		return cat
	}

	if cat, ok := core.ParseCategory(strings.TrimSpace(answer)); ok {
		return cat
	}

	cat := Fallback(title)
	c.logger.DebugContext(ctx, "Off-list model answer, using keywords",
		log.FieldTitle, title, log.FieldRawResponse, answer, log.FieldCategory, cat)
	return cat
}

func buildPrompt(title string) string {
	names := make([]string, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		names = append(names, c.String())
	}
	return fmt.Sprintf(`Categorize this expense into one of these categories: %s

Expense: %q

Return ONLY the category name from the list above that best matches this expense.
If unsure, return "Other".

Examples:
- "groceries" -> "Groceries"
- "uber ride" -> "Transportation"
- "coffee" -> "Food & Dining"
- "netflix" -> "Subscriptions"
- "petrol" -> "Fuel"
- "electricity bill" -> "Bills & Utilities"
`, strings.Join(names, ", "), title)
}
