package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/llm-gateway/internal/chat"
	"github.com/samsaffron/llm-gateway/internal/llm"
)

var (
	green = lipgloss.Color("10") // success
	red   = lipgloss.Color("9")  // error
	grey  = lipgloss.Color("8")  // muted text
	blue  = lipgloss.Color("4")  // headers
)

type styles struct {
	prompt  lipgloss.Style
	dim     lipgloss.Style
	title   lipgloss.Style
	user    lipgloss.Style
	model   lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
}

// newStyles returns colored styles for a terminal and plain ones otherwise.
func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		prompt:  lipgloss.NewStyle().Bold(true).Foreground(blue),
		dim:     lipgloss.NewStyle().Foreground(grey),
		title:   lipgloss.NewStyle().Bold(true).Foreground(blue),
		user:    lipgloss.NewStyle().Bold(true),
		model:   lipgloss.NewStyle().Bold(true).Foreground(green),
		info:    lipgloss.NewStyle().Foreground(grey),
		success: lipgloss.NewStyle().Foreground(green),
		err:     lipgloss.NewStyle().Bold(true).Foreground(red),
	}
}

func (s styles) notice(level chat.Level, msg string) string {
	switch level {
	case chat.LevelSuccess:
		return s.success.Render("✓ " + msg)
	case chat.LevelError:
		return s.err.Render("✗ " + msg)
	default:
		return s.info.Render("• " + msg)
	}
}

func (s styles) role(role string) string {
	if role == llm.RoleUser {
		return s.user.Render("you:")
	}
	return s.model.Render("ai:")
}

// printer writes the growing assistant message of the active conversation
// without repeating what is already on screen.
type printer struct {
	out     io.Writer
	msgID   string
	printed string
}

func (p *printer) update(c chat.Conversation) {
	if len(c.Messages) == 0 {
		return
	}
	m := c.Messages[len(c.Messages)-1]
	if m.Role != llm.RoleModel {
		return
	}
	if m.ID != p.msgID {
		p.msgID, p.printed = m.ID, ""
	}
	if !strings.HasPrefix(m.Content, p.printed) {
		// Content was rewritten; start the message over on a new line.
		fmt.Fprintln(p.out)
		p.printed = ""
	}
	fmt.Fprint(p.out, m.Content[len(p.printed):])
	p.printed = m.Content
}

func (p *printer) finish(c chat.Conversation, st styles) {
	if p.msgID == "" {
		return
	}
	fmt.Fprintln(p.out)
	if len(c.Messages) > 0 {
		m := c.Messages[len(c.Messages)-1]
		for i, cite := range m.Citations {
			fmt.Fprintln(p.out, st.dim.Render(fmt.Sprintf("[%d] %s %s", i+1, orDefault(cite.Title, cite.URI), cite.URI)))
		}
	}
}
