package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

// RequestBodyParser reads a bounded JSON object from a request.
type RequestBodyParser struct {
	body []byte
	err  error
}

// NewRequestBodyParser reads at most MaxBodyBytes of r's body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var mbe *http.MaxBytesError
	if errors.As(p.err, &mbe) {
		p.err = errBodyTooLarge
	}
	return p
}

// Decode unmarshals the body into dst.
func (p *RequestBodyParser) Decode(dst any) error {
	if p.err != nil {
		return p.err
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(p.body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// Object decodes the body as a JSON object, keeping value types as sent.
func (p *RequestBodyParser) Object() (map[string]any, error) {
	var m map[string]any
	if err := p.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return m, nil
}

// ParseFailure maps a body error to a response.
func ParseFailure(err error) *JSONResponseBuilder {
	if errors.Is(err, errBodyTooLarge) {
		return ErrorResponse(http.StatusRequestEntityTooLarge, err.Error())
	}
	return UnprocessableEntityError(err.Error())
}
