package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samsaffron/llm-gateway/internal/frame"
	"google.golang.org/genai"
)

// GeminiProvider streams from the Gemini API with Google Search grounding.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
}

func NewGeminiProvider(apiKey, model, baseURL string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	contents, err := buildGeminiContents(req.Contents)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("no contents provided")
	}
	config := buildGeminiConfig(req.Config)

	return newFrameStream(ctx, func(ctx context.Context, out chan<- frame.Frame) error {
		clientConfig := &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.baseURL != "" {
			clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
		}
		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return fmt.Errorf("create gemini client: %w", err)
		}

		for resp, err := range client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				return fmt.Errorf("Gemini API error: %w", err)
			}
			f, ok := geminiFrame(resp)
			if !ok {
				continue
			}
			if !send(ctx, out, f) {
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

func buildGeminiContents(contents []Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		if !c.HasParts() {
			continue
		}
		role := RoleUser
		if c.Role == RoleModel {
			role = RoleModel
		}
		gc := &genai.Content{Role: role}
		for _, part := range c.Parts {
			switch {
			case part.InlineData != nil && part.InlineData.Data != "":
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode inline data (%s): %w", part.InlineData.MIMEType, err)
				}
				gc.Parts = append(gc.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: part.InlineData.MIMEType, Data: data},
				})
			case part.Text != "":
				gc.Parts = append(gc.Parts, &genai.Part{Text: part.Text})
			}
		}
		out = append(out, gc)
	}
	return out, nil
}

func buildGeminiConfig(cfg GenerationConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(cfg.maxTokens()),
		Tools:           []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.Temperature != nil {
		t := float32(*cfg.Temperature)
		config.Temperature = &t
	}
	return config
}

// geminiFrame maps one streamed response chunk to a frame. Only the first
// candidate is considered. Thought parts are not part of the answer.
func geminiFrame(resp *genai.GenerateContentResponse) (frame.Frame, bool) {
	if resp == nil {
		return frame.Frame{}, false
	}
	var f frame.Frame
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			var sb strings.Builder
			for _, part := range cand.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				sb.WriteString(part.Text)
			}
			f.Text = sb.String()
		}
		f.FinishReason = geminiFinishReason(cand.FinishReason)
		if gm := cand.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk == nil || chunk.Web == nil {
					continue
				}
				if chunk.Web.URI == "" || chunk.Web.Title == "" {
					continue
				}
				f.Citations = append(f.Citations, frame.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
	}
	if um := resp.UsageMetadata; um != nil {
		f.Usage = &frame.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	if f.Text == "" && f.FinishReason == frame.FinishNone && len(f.Citations) == 0 && f.Usage == nil {
		return frame.Frame{}, false
	}
	return f, true
}

func geminiFinishReason(reason genai.FinishReason) frame.FinishReason {
	switch string(reason) {
	case "", "FINISH_REASON_UNSPECIFIED":
		return frame.FinishNone
	case "STOP":
		return frame.FinishStop
	case "MAX_TOKENS":
		return frame.FinishLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "IMAGE_SAFETY":
		return frame.FinishSafety
	default:
		return frame.FinishOther
	}
}
