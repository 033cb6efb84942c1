// Package frame implements the wire protocol spoken between the gateway and
// its clients: a sequence of JSON records, each followed by Delimiter.
package frame

import (
	"encoding/json"
)

// Delimiter terminates every encoded record on the wire.
const Delimiter = "\n__CHUNK__\n"

// FinishReason is the uniform terminal status of a generation.
type FinishReason string

const (
	FinishNone   FinishReason = ""
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishSafety FinishReason = "safety"
	FinishOther  FinishReason = "other"
)

// Interrupted reports whether the reason marks an abnormal end of output.
func (r FinishReason) Interrupted() bool {
	return r != FinishNone && r != FinishStop
}

// Citation is a web source backing part of a response.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Usage carries token counters reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Frame is one unit of streamed output. A frame with a non-empty Error is
// terminal: nothing follows it.
type Frame struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finishReason,omitempty"`
	Citations    []Citation   `json:"citations,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// IsError reports whether f is a terminal error frame.
func (f Frame) IsError() bool {
	return f.Error != ""
}

// ErrorFrame builds a terminal error frame.
func ErrorFrame(err error) Frame {
	return Frame{Error: err.Error()}
}

// Encode serializes f followed by Delimiter.
func Encode(f Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		// Frame holds only strings, ints and slices thereof.
		data = []byte(`{"text":""}`)
	}
	return append(data, Delimiter...)
}
