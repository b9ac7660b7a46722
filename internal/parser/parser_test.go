package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/core"
	"spendlog/internal/llm"
)

var ref = time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

func stub(answer string, err error) llm.Func {
	return func(context.Context, string) (string, error) { return answer, err }
}

func TestParsePlainJSON(t *testing.T) {
	p := New(stub(`{"title":"Coffee","amount":150,"date":"2024-01-01T08:00:00"}`, nil), nil)
	d, err := p.Parse(context.Background(), "coffee 150", ref)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", d.Title)
	assert.Equal(t, 150.0, d.Amount)
	assert.True(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC).Equal(d.Date))
	assert.Empty(t, d.Category)
}

func TestParseFencedJSON(t *testing.T) {
	cases := map[string]string{
		"json fence":   "```json\n{\"title\":\"Taxi\",\"amount\":\"12.50\",\"date\":\"2024-01-01T19:00:00Z\"}\n```",
		"bare fence":   "```\n{\"title\":\"Taxi\",\"amount\":12.5,\"date\":\"2024-01-01T19:00:00\"}\n```",
		"inline fence": "```json {\"title\":\"Taxi\",\"amount\":12.5,\"date\":\"2024-01-01T19:00:00\"}```",
		"chatty":       "Sure! Here it is:\n{\"title\":\"Taxi\",\"amount\":12.5,\"date\":\"2024-01-01T19:00:00\"}\nLet me know.",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := Decode(raw, ref)
			require.NoError(t, err)
			assert.Equal(t, "Taxi", d.Title)
			assert.InDelta(t, 12.5, d.Amount, 1e-9)
			assert.True(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC).Equal(d.Date), d.Date.String())
		})
	}
}

func TestDecodeGreedySpan(t *testing.T) {
	// First '{' to last '}' across two objects is not valid JSON.
	_, err := Decode(`{"title":"a","amount":1,"date":"x"} and {"b":2}`, ref)
	assert.ErrorIs(t, err, ErrMalformedJSON)

	_, err = Decode(`{"title":"a","amount":1,"date":"2024-01-01T00:00:00"}{"b":2}`, ref)
	assert.ErrorIs(t, err, ErrMalformedJSON)

	// A stray closing brace after the object.
	_, err = Decode("```json\n{\"title\":\"a\",\"amount\":1,\"date\":\"2024-01-01T00:00:00\"}}\n```", ref)
	assert.ErrorIs(t, err, ErrMalformedJSON)

	// Nested braces inside one object are kept intact.
	d, err := Decode(`noise {"title":"Lunch","amount":20,"date":"2024-01-02T13:00:00","meta":{"k":1}} trailing`, ref)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", d.Title)
}

func TestDecodeFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmptyResponse},
		{"whitespace", "  \n\t ", ErrEmptyResponse},
		{"empty fence", "```json\n```", ErrEmptyResponse},
		{"not json", "I cannot help with that", ErrMalformedJSON},
		{"truncated", `{"title":"x","amount":`, ErrMalformedJSON},
		{"array", `[1,2,3]`, ErrMalformedJSON},
		{"missing date", `{"title":"x","amount":1}`, ErrMissingFields},
		{"missing title", `{"amount":1,"date":"2024-01-01T00:00:00"}`, ErrMissingFields},
		{"title not text", `{"title":5,"amount":1,"date":"2024-01-01T00:00:00"}`, ErrMissingFields},
		{"amount words", `{"title":"x","amount":"lots","date":"2024-01-01T00:00:00"}`, ErrInvalidAmount},
		{"amount null", `{"title":"x","amount":null,"date":"2024-01-01T00:00:00"}`, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, core.ErrParseFailure)
			assert.True(t, IsFailure(err))
		})
	}
}

func TestDecodeDateSoftFallback(t *testing.T) {
	for _, date := range []string{`"yesterday at 3pm"`, `"2024-02-30T10:00:00"`, `12345`, `null`} {
		d, err := Decode(`{"title":"Snacks","amount":"4","date":`+date+`}`, ref)
		require.NoError(t, err, date)
		assert.True(t, ref.Equal(d.Date), "%s -> %s", date, d.Date)
		assert.Equal(t, 4.0, d.Amount)
	}
}

func TestDecodeDateOffsetNormalizedToUTC(t *testing.T) {
	d, err := Decode(`{"title":"x","amount":1,"date":"2024-01-01T10:00:00+02:00"}`, ref)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Date.Location())
	assert.Equal(t, 8, d.Date.Hour())
}

func TestParseModelUnavailable(t *testing.T) {
	p := New(stub("", errors.New("connection refused")), nil)
	_, err := p.Parse(context.Background(), "coffee 150", ref)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, core.ErrParseFailure)

	_, err = New(nil, nil).Parse(context.Background(), "coffee 150", ref)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestPromptCarriesMessageAndReference(t *testing.T) {
	var prompt string
	p := New(llm.Func(func(_ context.Context, s string) (string, error) {
		prompt = s
		return `{"title":"x","amount":1,"date":"2024-01-01T00:00:00"}`, nil
	}), nil)
	_, err := p.Parse(context.Background(), "dinner 40 on friday", ref.In(time.FixedZone("X", 3600)))
	require.NoError(t, err)

	assert.Contains(t, prompt, `"dinner 40 on friday"`)
	assert.Contains(t, prompt, "2024-03-10T12:30:00")
	assert.Contains(t, prompt, "19:00:00")
}
