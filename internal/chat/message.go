// Package chat owns the client-side conversation state: it builds gateway
// requests from history, folds streamed frames into assistant messages and
// keeps titles and persistence up to date.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

const (
	// DefaultModel is selected for new conversations.
	DefaultModel = "gemini-2.5-flash"
	// TitlePlaceholder is the title of a conversation until one is generated.
	TitlePlaceholder = "New Conversation"
	// DefaultSystemInstruction is sent when a conversation has no override.
	DefaultSystemInstruction = "You are a helpful and friendly AI assistant. Format your answers using Markdown."
	// HistoryWindow is the number of prior messages sent with each request.
	HistoryWindow = 20
)

// Attachment is a small file inlined into a message. Data holds the text
// content for text files and base64 for images; it is empty when the file
// could not be read.
type Attachment struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	Name     string `json:"name"`
}

// IsImage reports whether the attachment is sent as inline image data.
func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.MIMEType, "image/")
}

// Message is one turn of a conversation.
type Message struct {
	ID         string           `json:"id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Attachment *Attachment      `json:"attachment,omitempty"`
	Citations  []frame.Citation `json:"citations,omitempty"`
}

// Conversation is an ordered exchange with one model.
type Conversation struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Messages          []Message `json:"messages"`
	CreatedAt         int64     `json:"createdAt"` // unix milliseconds
	Generating        bool      `json:"isTyping"`
	SystemInstruction string    `json:"systemInstruction,omitempty"`
	ModelID           string    `json:"modelId"`
}

func newConversation(now time.Time) Conversation {
	return Conversation{
		ID:        uuid.NewString(),
		Title:     TitlePlaceholder,
		Messages:  []Message{},
		CreatedAt: now.UnixMilli(),
		ModelID:   DefaultModel,
	}
}

func newUserMessage(text string, att *Attachment) Message {
	return Message{ID: uuid.NewString(), Role: llm.RoleUser, Content: text, Attachment: att}
}

// newPlaceholder returns the empty model message a stream writes into.
func newPlaceholder() Message {
	return Message{ID: uuid.NewString(), Role: llm.RoleModel}
}

// clone copies c so that later slice edits never reach a snapshot.
func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}

// Empty reports whether the conversation has no messages yet.
func (c Conversation) Empty() bool {
	return len(c.Messages) == 0
}

func (c Conversation) indexOf(messageID string) int {
	for i, m := range c.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

func (c Conversation) model() string {
	if c.ModelID == "" {
		return DefaultModel
	}
	return c.ModelID
}
