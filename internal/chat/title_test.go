package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Go Concurrency Basics", "Go Concurrency Basics"},
		{"Title: Go Concurrency Basics.", "Go Concurrency Basics"},
		{"title Go Channels", "Go Channels"},
		{"Titles of Empire", "Titles of Empire"},
		{"Título: Receitas de Bolo", "Receitas de Bolo"},
		{`"Quoted Title"`, "Quoted Title"},
		{"'Single quoted!'", "Single quoted"},
		{"**Bold Title**", "Bold Title"},
		{"one two three four five six seven", "one two three four five"},
		{"\n\n  First line wins\nsecond line", "First line wins"},
		{"Ends with comma,", "Ends with comma"},
		{"", ""},
		{"  \"\"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := cleanTitle(tt.in); got != tt.want {
				t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitleGenerator(t *testing.T) {
	tests := []struct {
		name string
		turn fakeTurn
		want string
	}{
		{
			name: "streamed title",
			turn: fakeTurn{frames: []frame.Frame{{Text: "Title: \"Planning a "}, {Text: "Trip to Lisbon.\""}, {FinishReason: frame.FinishStop}}},
			want: "Planning a Trip to Lisbon",
		},
		{"empty output", fakeTurn{frames: []frame.Frame{{FinishReason: frame.FinishStop}}}, TitlePlaceholder},
		{"open failure", fakeTurn{openErr: errors.New("offline")}, TitlePlaceholder},
		{"stream failure", fakeTurn{frames: []frame.Frame{{Text: "Half"}}, err: errors.New("reset")}, TitlePlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := (&fakeStreamer{}).add(tt.turn)
			g := NewTitleGenerator(s, zerolog.Nop())

			got := g.Generate(context.Background(), "plan my lisbon trip", "Here is an itinerary")
			if got != tt.want {
				t.Errorf("Generate = %q, want %q", got, tt.want)
			}

			req := s.lastRequest(t)
			if req.Model != TitleModel {
				t.Errorf("title model = %q", req.Model)
			}
			prompt := req.Contents[len(req.Contents)-1].Text()
			if !strings.Contains(prompt, "plan my lisbon trip") || !strings.Contains(prompt, "Here is an itinerary") {
				t.Errorf("prompt missing exchange: %q", prompt)
			}
		})
	}
}

func TestTitleUserText(t *testing.T) {
	if got := titleUserText("hi", nil); got != "hi" {
		t.Errorf("got %q", got)
	}
	att := &Attachment{Name: "a.txt"}
	if got := titleUserText("", att); got != "[FILE: a.txt]" {
		t.Errorf("got %q", got)
	}
}
