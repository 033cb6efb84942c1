package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samsaffron/llm-gateway/internal/frame"
)

// OpenAIProvider streams from the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func buildOpenAIMessages(system string, contents []Content) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, c := range contents {
		if !c.HasParts() {
			continue
		}
		if c.Role == RoleModel {
			messages = append(messages, openai.AssistantMessage(c.Text()))
			continue
		}
		var parts []openai.ChatCompletionContentPartUnionParam
		for _, part := range c.Parts {
			switch {
			case part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/"):
				url := "data:" + part.InlineData.MIMEType + ";base64," + part.InlineData.Data
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
			case part.Text != "":
				parts = append(parts, openai.TextContentPart(part.Text))
			}
		}
		if len(parts) > 0 {
			messages = append(messages, openai.UserMessage(parts))
		}
	}
	return messages
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	messages := buildOpenAIMessages(req.Config.SystemInstruction, req.Contents)
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.Config.maxTokens())),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.Config.Temperature != nil {
		params.Temperature = openai.Float(*req.Config.Temperature)
	}

	return newFrameStream(ctx, func(ctx context.Context, out chan<- frame.Frame) error {
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			var f frame.Frame
			for _, choice := range chunk.Choices {
				f.Text += choice.Delta.Content
				if choice.FinishReason != "" {
					f.FinishReason = compatFinishReason(choice.FinishReason)
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				f.Usage = &frame.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if f.Text == "" && f.FinishReason == frame.FinishNone && f.Usage == nil {
				continue
			}
			if !send(ctx, out, f) {
				return ctx.Err()
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("OpenAI streaming error: %w", err)
		}
		return nil
	}), nil
}
