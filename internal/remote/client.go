// Package remote talks to a running gateway: it opens chat streams and
// turns the framed byte stream back into frames, and it loads and saves
// conversation collections.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

const (
	chatPath          = "/api/chat"
	conversationsPath = "/api/conversations"

	// readChunkSize is the size of each body read fed to the decoder.
	readChunkSize = 32 << 10
	maxErrorBody  = 4096
)

// ErrNoBody is returned when the gateway answers without a response body.
var ErrNoBody = errors.New("gateway response has no body")

// StatusError is a non-success status from the gateway.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
}

// GatewayError is an error frame received mid-stream.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

// Client is a gateway client. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Streams are long-lived,
// so the client should not impose an overall timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open posts req to the gateway. Network failures and non-success statuses
// are returned before anything is read. The returned sequence is lazy and
// single-pass: it decodes frames as bytes arrive and closes the body when
// iteration ends for any reason. An error frame from the gateway is yielded
// as a *GatewayError and ends the sequence. Cancelling ctx ends the
// sequence without an error.
func (c *Client) Open(ctx context.Context, req llm.Request) (iter.Seq2[frame.Frame, error], error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}

	var used atomic.Bool
	return func(yield func(frame.Frame, error) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		defer resp.Body.Close()
		c.consume(ctx, resp.Body, yield)
	}, nil
}

func (c *Client) consume(ctx context.Context, body io.Reader, yield func(frame.Frame, error) bool) {
	dec := frame.NewDecoder(c.log)
	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				if !deliver(f, yield) {
					return
				}
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		// A severed connection leaves at most one partial record behind.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if f, ok := dec.Flush(); ok {
				deliver(f, yield)
			}
			return
		}
		yield(frame.Frame{}, fmt.Errorf("read stream: %w", err))
		return
	}
}

func deliver(f frame.Frame, yield func(frame.Frame, error) bool) bool {
	if f.IsError() {
		yield(frame.Frame{}, &GatewayError{Message: f.Error})
		return false
	}
	return yield(f, nil)
}

// do sends a request and converts non-success statuses into *StatusError.
// The caller owns the returned body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError extracts the server's message from a JSON error body.
func statusError(resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(data, &payload) == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
