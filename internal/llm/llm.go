// Package llm is the outbound port to a text-generation model.
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Disabled for every call.
var ErrNotConfigured = errors.New("language model not configured")

// TextGenerator turns a prompt into free text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to TextGenerator.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Disabled always fails with ErrNotConfigured. Used when no API key is set.
var Disabled TextGenerator = Func(func(context.Context, string) (string, error) {
	return "", ErrNotConfigured
})
