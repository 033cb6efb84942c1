package llm

import (
	"math"
	"reflect"
	"testing"
)

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	tests := []struct {
		n    int
		want []int
	}{
		{n: 3, want: []int{3, 4, 5}},
		{n: 5, want: []int{1, 2, 3, 4, 5}},
		{n: 10, want: []int{1, 2, 3, 4, 5}},
		{n: 0, want: nil},
	}
	for _, tc := range tests {
		if got := Window(items, tc.n); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Window(n=%d)=%v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{Model: "gemini-2.5-flash", Contents: []Content{{Role: RoleUser, Parts: []Part{{Text: "hi"}}}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request: %v", err)
	}

	noModel := valid
	noModel.Model = " "
	if err := noModel.Validate(); err == nil {
		t.Fatal("expected error for missing model")
	}

	blank := Request{Model: "gemini-2.5-flash", Contents: []Content{{Role: RoleUser, Parts: []Part{{Text: "  "}}}}}
	if err := blank.Validate(); err == nil {
		t.Fatal("expected error for blank contents")
	}

	image := Request{Model: "gemini-2.5-flash", Contents: []Content{{Role: RoleUser, Parts: []Part{{InlineData: &Blob{MIMEType: "image/png", Data: "AA=="}}}}}}
	if err := image.Validate(); err != nil {
		t.Fatalf("image-only request: %v", err)
	}
}

func TestMaxOutputTokensRange(t *testing.T) {
	contents := []Content{{Role: RoleUser, Parts: []Part{{Text: "hi"}}}}
	tests := []struct {
		n       int
		wantErr bool
		want    int
	}{
		{n: 0, want: DefaultMaxOutputTokens},
		{n: 1024, want: 1024},
		{n: math.MaxInt32, want: math.MaxInt32},
		{n: -1, wantErr: true, want: DefaultMaxOutputTokens},
		{n: math.MaxInt32 + 1, wantErr: true, want: math.MaxInt32},
	}
	for _, tc := range tests {
		req := Request{Model: "gemini-2.5-flash", Contents: contents, Config: GenerationConfig{MaxOutputTokens: tc.n}}
		if err := req.Validate(); (err != nil) != tc.wantErr {
			t.Errorf("Validate(maxOutputTokens=%d) err=%v, wantErr %v", tc.n, err, tc.wantErr)
		}
		if got := req.Config.maxTokens(); got != tc.want {
			t.Errorf("maxTokens(%d)=%d, want %d", tc.n, got, tc.want)
		}
		if got := buildGeminiConfig(req.Config).MaxOutputTokens; int(got) != tc.want {
			t.Errorf("gemini MaxOutputTokens(%d)=%d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestContentText(t *testing.T) {
	c := Content{Role: RoleUser, Parts: []Part{{Text: "a"}, {InlineData: &Blob{Data: "x"}}, {Text: "b"}}}
	if got := c.Text(); got != "a\nb" {
		t.Fatalf("Text()=%q", got)
	}
}
