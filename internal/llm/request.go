package llm

import (
	"errors"
	"math"
	"strings"
)

// Roles used in request contents.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// DefaultMaxOutputTokens is used when the caller does not set a limit.
const DefaultMaxOutputTokens = 8192

// Request is the provider-neutral generation request accepted by the gateway.
type Request struct {
	Model    string           `json:"model"`
	Contents []Content        `json:"contents"`
	Config   GenerationConfig `json:"config"`
}

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob is inline binary data; Data is base64 encoded.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig carries generic generation parameters. Providers with
// fixed parameters override them.
type GenerationConfig struct {
	SystemInstruction string   `json:"systemInstruction,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxOutputTokens   int      `json:"maxOutputTokens,omitempty"`
}

func (p Part) empty() bool {
	return strings.TrimSpace(p.Text) == "" && (p.InlineData == nil || p.InlineData.Data == "")
}

// HasParts reports whether c carries at least one meaningful part.
func (c Content) HasParts() bool {
	for _, p := range c.Parts {
		if !p.empty() {
			return true
		}
	}
	return false
}

// Text joins the text parts of c with newlines.
func (c Content) Text() string {
	var texts []string
	for _, p := range c.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Validate checks that the request can be dispatched.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model is required")
	}
	if n := r.Config.MaxOutputTokens; n < 0 || n > math.MaxInt32 {
		return errors.New("maxOutputTokens out of range")
	}
	for _, c := range r.Contents {
		if c.HasParts() {
			return nil
		}
	}
	return errors.New("contents must include at least one non-empty part")
}

// maxTokens returns the caller's limit or the default, capped to what
// every upstream accepts as a 32-bit count.
func (c GenerationConfig) maxTokens() int {
	if c.MaxOutputTokens > 0 {
		return min(c.MaxOutputTokens, math.MaxInt32)
	}
	return DefaultMaxOutputTokens
}

// Window returns the most recent n items of s, preserving order.
func Window[T any](s []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
