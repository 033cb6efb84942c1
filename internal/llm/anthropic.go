package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/samsaffron/llm-gateway/internal/frame"
)

type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

func buildAnthropicMessages(contents []Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		if !c.HasParts() {
			continue
		}
		if c.Role == RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(c.Text())))
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, part := range c.Parts {
			switch {
			case part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/"):
				blocks = append(blocks, anthropic.NewImageBlockBase64(part.InlineData.MIMEType, part.InlineData.Data))
			case part.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		}
		if len(blocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := buildAnthropicMessages(req.Contents)
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.Config.maxTokens()),
		Messages:  messages,
	}
	if strings.TrimSpace(req.Config.SystemInstruction) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Config.SystemInstruction}}
	}
	if req.Config.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Config.Temperature)
	}

	return newFrameStream(ctx, func(ctx context.Context, out chan<- frame.Frame) error {
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var usage frame.Usage
		for stream.Next() {
			event := stream.Current()
			var f frame.Frame
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = int(ev.Message.Usage.InputTokens)
				continue
			case anthropic.ContentBlockDeltaEvent:
				delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
				if !ok || delta.Text == "" {
					continue
				}
				f.Text = delta.Text
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				u := usage
				f.Usage = &u
				f.FinishReason = anthropicFinishReason(string(ev.Delta.StopReason))
			default:
				continue
			}
			if !send(ctx, out, f) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("Anthropic streaming error: %w", err)
		}
		return nil
	}), nil
}

func anthropicFinishReason(reason string) frame.FinishReason {
	switch reason {
	case "":
		return frame.FinishNone
	case "end_turn", "stop_sequence":
		return frame.FinishStop
	case "max_tokens":
		return frame.FinishLength
	case "refusal":
		return frame.FinishSafety
	default:
		return frame.FinishOther
	}
}
