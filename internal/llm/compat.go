package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
)

// OpenAICompatProvider streams from an OpenAI-compatible chat completions
// endpoint using server-sent events.
type OpenAICompatProvider struct {
	baseURL   string
	apiKey    string
	model     string
	name      string
	overrides Overrides
	headers   map[string]string
	client    *http.Client
	log       zerolog.Logger
}

// NewOpenAICompatProvider creates a provider for the endpoint at baseURL.
func NewOpenAICompatProvider(baseURL, apiKey, model, name string, overrides Overrides, headers map[string]string) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		name:      name,
		overrides: overrides,
		headers:   headers,
		client:    upstreamClient,
		log:       zerolog.Nop(),
	}
}

// WithLogger sets the logger used for stream diagnostics.
func (p *OpenAICompatProvider) WithLogger(log zerolog.Logger) *OpenAICompatProvider {
	p.log = log
	return p
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatRequest struct {
	Model               string          `json:"model"`
	Messages            []compatMessage `json:"messages"`
	Stream              bool            `json:"stream"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty"`
}

type compatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildCompatMessages reshapes contents into a chat message list: the system
// instruction first, text parts joined with newlines, model turns as
// assistant turns. Inline data has no representation here and is dropped.
func buildCompatMessages(system string, contents []Content) []compatMessage {
	messages := make([]compatMessage, 0, len(contents)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, compatMessage{Role: "system", Content: system})
	}
	for _, c := range contents {
		text := c.Text()
		if text == "" {
			continue
		}
		role := "user"
		if c.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, compatMessage{Role: role, Content: text})
	}
	return messages
}

func (p *OpenAICompatProvider) buildRequest(req Request) compatRequest {
	return compatRequest{
		Model:               p.model,
		Messages:            buildCompatMessages(req.Config.SystemInstruction, req.Contents),
		Stream:              true,
		Temperature:         p.overrides.temperature(req.Config.Temperature),
		TopP:                p.overrides.TopP,
		MaxCompletionTokens: p.overrides.MaxCompletionTokens,
		ReasoningEffort:     p.overrides.ReasoningEffort,
	}
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	chatReq := p.buildRequest(req)
	if len(chatReq.Messages) == 0 {
		return nil, errors.New("no messages provided")
	}
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	apiURL := p.baseURL + "/chat/completions"

	// The request is made inside the goroutine so it owns resp.Body.
	return newFrameStream(ctx, func(ctx context.Context, out chan<- frame.Frame) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		for k, v := range p.headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s API request failed: %w", p.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return newStatusError(p.name, resp)
		}
		if resp.Body == nil || resp.Body == http.NoBody {
			return fmt.Errorf("%s: %w", p.name, ErrEmptyBody)
		}

		return decodeCompatStream(resp.Body, p.log, func(f frame.Frame) bool {
			return send(ctx, out, f)
		})
	}), nil
}

// decodeCompatStream reads server-sent events from r and hands each
// resulting frame to emit. It stops early when emit returns false.
func decodeCompatStream(r io.Reader, log zerolog.Logger, emit func(frame.Frame) bool) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		f, ok, err := parseCompatLine(scanner.Text(), log)
		if err != nil {
			return err
		}
		if ok && !emit(f) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}
	return nil
}

// parseCompatLine decodes one SSE line. Blank lines, comments, keepalives,
// the [DONE] sentinel and non-JSON payloads yield no frame.
func parseCompatLine(line string, log zerolog.Logger) (frame.Frame, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return frame.Frame{}, false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || data == "[DONE]" {
		return frame.Frame{}, false, nil
	}

	var chunk compatChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		log.Debug().Str("data", truncate(data, 200)).Msg("ignoring non-JSON stream line")
		return frame.Frame{}, false, nil
	}
	if chunk.Error != nil && chunk.Error.Message != "" {
		return frame.Frame{}, false, fmt.Errorf("upstream stream error: %s", chunk.Error.Message)
	}

	var f frame.Frame
	for _, choice := range chunk.Choices {
		reasoning := choice.Delta.ReasoningContent
		if reasoning == "" {
			reasoning = choice.Delta.Reasoning
		}
		if reasoning != "" {
			f.Text += "> " + reasoning
		}
		f.Text += choice.Delta.Content
		if choice.FinishReason != nil {
			f.FinishReason = compatFinishReason(*choice.FinishReason)
		}
	}
	if chunk.Usage != nil {
		f.Usage = &frame.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	if f.Text == "" && f.FinishReason == frame.FinishNone && f.Usage == nil {
		return frame.Frame{}, false, nil
	}
	return f, true, nil
}

func compatFinishReason(reason string) frame.FinishReason {
	switch reason {
	case "":
		return frame.FinishNone
	case "stop":
		return frame.FinishStop
	case "length":
		return frame.FinishLength
	case "content_filter":
		return frame.FinishSafety
	default:
		return frame.FinishOther
	}
}
