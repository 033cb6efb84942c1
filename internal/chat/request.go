package chat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samsaffron/llm-gateway/internal/llm"
)

// BuildRequest assembles a gateway request from the most recent history,
// the new prompt and its optional attachment.
func BuildRequest(model, systemInstruction string, history []Message, prompt string, att *Attachment) llm.Request {
	window := llm.Window(history, HistoryWindow)

	contents := make([]llm.Content, 0, len(window)+1)
	for _, m := range window {
		contents = append(contents, historyContent(m))
	}

	var parts []llm.Part
	if att != nil {
		parts = append(parts, promptAttachmentPart(att))
	}
	if strings.TrimSpace(prompt) != "" {
		parts = append(parts, llm.Part{Text: prompt})
	}
	if len(parts) > 0 {
		contents = append(contents, llm.Content{Role: llm.RoleUser, Parts: parts})
	}

	contents = slices.DeleteFunc(contents, func(c llm.Content) bool { return !c.HasParts() })

	if strings.TrimSpace(systemInstruction) == "" {
		systemInstruction = DefaultSystemInstruction
	}
	return llm.Request{
		Model:    model,
		Contents: contents,
		Config: llm.GenerationConfig{
			SystemInstruction: systemInstruction,
			MaxOutputTokens:   llm.DefaultMaxOutputTokens,
		},
	}
}

func historyContent(m Message) llm.Content {
	var parts []llm.Part
	if att := m.Attachment; att != nil {
		switch {
		case att.IsImage():
			parts = append(parts, imagePart(att))
		case m.Role != llm.RoleUser:
		case att.Data != "":
			parts = append(parts, llm.Part{Text: fmt.Sprintf(
				"Context from an earlier file named %q:\n\n--- CONTENT ---\n%s\n--- END ---", att.Name, att.Data)})
		default:
			parts = append(parts, llm.Part{Text: fmt.Sprintf(
				"[The user had attached the file %q but its content was not read.]", att.Name)})
		}
	}
	if m.Content != "" {
		parts = append(parts, llm.Part{Text: m.Content})
	}
	return llm.Content{Role: m.Role, Parts: parts}
}

func promptAttachmentPart(att *Attachment) llm.Part {
	switch {
	case att.IsImage():
		return imagePart(att)
	case att.Data != "":
		return llm.Part{Text: fmt.Sprintf(
			"Use the content of the file %q below to answer the user's question.\n\n--- BEGIN ---\n%s\n--- END ---", att.Name, att.Data)}
	default:
		return llm.Part{Text: fmt.Sprintf(
			"[The user attached the file %q (%s), but its content could not be read. Let the user know politely that you cannot access the content of this type of file.]",
			att.Name, att.MIMEType)}
	}
}

func imagePart(att *Attachment) llm.Part {
	return llm.Part{InlineData: &llm.Blob{MIMEType: att.MIMEType, Data: att.Data}}
}
