package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnknownModel is returned when no provider serves the model id.
	ErrUnknownModel = errors.New("unknown model")
	// ErrMissingCredential is returned when the routed provider has no API key.
	ErrMissingCredential = errors.New("missing credential")
	// ErrEmptyBody is returned when an upstream response has no body.
	ErrEmptyBody = errors.New("upstream response has no body")
)

// maxErrorBody caps how much of an upstream error body is embedded in errors.
const maxErrorBody = 4096

// StatusError is a non-success HTTP status from an upstream provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s API error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, body)
}

func newStatusError(provider string, resp *http.Response) *StatusError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
}
