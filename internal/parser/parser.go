// Package parser turns a free-text expense message into a draft by asking a
// language model for JSON and repairing what comes back.
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/llm"
	"spendlog/internal/log"
)

// Failure kinds. All of them match core.ErrParseFailure with errors.Is.
var (
	ErrEmptyResponse    = fmt.Errorf("%w: empty model response", core.ErrParseFailure)
	ErrMalformedJSON    = fmt.Errorf("%w: malformed JSON", core.ErrParseFailure)
	ErrMissingFields    = fmt.Errorf("%w: missing required fields", core.ErrParseFailure)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", core.ErrParseFailure)
	ErrModelUnavailable = fmt.Errorf("%w: model unavailable", core.ErrParseFailure)
)

var requiredKeys = []string{"title", "amount", "date"}

// Parser extracts a draft (without category) from a message.
type Parser struct {
	model  llm.TextGenerator
	logger *log.Logger
}

func New(model llm.TextGenerator, logger *log.Logger) *Parser {
	if model == nil {
		model = llm.Disabled
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Parser{model: model, logger: logger.WithComponent(log.ComponentParser)}
}

// Parse asks the model to structure message, using ref as "now". The
// returned draft has an empty Category; classification is a separate step.
func (p *Parser) Parse(ctx context.Context, message string, ref time.Time) (core.Draft, error) {
	ref = ref.UTC()

	raw, err := p.model.Generate(ctx, buildPrompt(message, ref))
	if err != nil {
		p.logger.WarnContext(ctx, "Model call failed", log.FieldError, err)
		return core.Draft{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	draft, err := Decode(raw, ref)
	if err != nil {
		p.logger.WarnContext(ctx, "Could not parse model response",
			log.FieldFailure, err.Error(), log.FieldRawResponse, raw)
		return core.Draft{}, err
	}
	return draft, nil
}

// Decode runs the extraction and validation steps on raw model output.
func Decode(raw string, ref time.Time) (core.Draft, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return core.Draft{}, ErrEmptyResponse
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return core.Draft{}, ErrMalformedJSON
	}
	// The span must hold exactly one value.
	if _, err := dec.Token(); err != io.EOF {
		return core.Draft{}, ErrMalformedJSON
	}

	for _, k := range requiredKeys {
		if _, ok := obj[k]; !ok {
			return core.Draft{}, fmt.Errorf("%w: %s", ErrMissingFields, k)
		}
	}

	title, ok := obj["title"].(string)
	if !ok {
		return core.Draft{}, fmt.Errorf("%w: title is not text", ErrMissingFields)
	}

	amount, err := core.CoerceAmount(obj["amount"])
	if err != nil {
		return core.Draft{}, fmt.Errorf("%w: %v", ErrInvalidAmount, obj["amount"])
	}

	date := ref.UTC()
	if s, ok := obj["date"].(string); ok {
		if t, err := core.ParseISO(s); err == nil {
			date = t
		}
	}

	return core.Draft{
		Title:  strings.TrimSpace(title),
		Amount: amount,
		Date:   date,
	}, nil
}

// extractJSON trims, drops a surrounding code fence, then keeps the greedy
// span from the first '{' to the last '}'. Nested or multiple objects are not
// handled specially.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{}") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "`"))
	}
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func buildPrompt(message string, ref time.Time) string {
	return fmt.Sprintf(`Parse this expense message and return a valid JSON object with these exact fields:
- "title": A brief description of the expense
- "amount": The amount as a number (not string)
- "date": ISO format datetime string (YYYY-MM-DDTHH:MM:SS)

Message: %q

If no date/time is mentioned, use the current time: %s
If only date is mentioned (no time), assume evening time like 19:00:00

Return ONLY the JSON object, no extra text or formatting:
`, message, ref.Format(core.DraftLayout))
}

// IsFailure reports whether err came from the parse pipeline.
func IsFailure(err error) bool {
	return errors.Is(err, core.ErrParseFailure)
}
