package llm

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		model     string
		wantKind  ProviderKind
		wantModel string
	}{
		{model: "gemini-2.5-flash", wantKind: KindGemini, wantModel: "gemini-2.5-flash"},
		{model: "gemini-2.5-pro", wantKind: KindGemini, wantModel: "gemini-2.5-pro"},
		{model: "gemini-3-flash-preview", wantKind: KindGemini, wantModel: "gemini-2.5-flash"},
		{model: "veo-3", wantKind: KindGemini, wantModel: "veo-3"},
		{model: "deepseek-r1", wantKind: KindOpenRouter, wantModel: "deepseek/deepseek-r1-0528:free"},
		{model: "openrouter/auto", wantKind: KindOpenRouter, wantModel: "deepseek/deepseek-r1-0528:free"},
		{model: "openai/gpt-oss-20b", wantKind: KindGroq, wantModel: "openai/gpt-oss-20b"},
		{model: "groq-fast", wantKind: KindGroq, wantModel: "openai/gpt-oss-20b"},
		{model: "gpt-4.1-mini", wantKind: KindOpenAI, wantModel: "gpt-4.1-mini"},
		{model: "o3-mini", wantKind: KindOpenAI, wantModel: "o3-mini"},
		{model: "claude-sonnet-4-5", wantKind: KindAnthropic, wantModel: "claude-sonnet-4-5"},
	}

	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			route, err := Resolve(tc.model)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tc.model, err)
			}
			if route.Kind != tc.wantKind {
				t.Fatalf("kind=%s, want %s", route.Kind, tc.wantKind)
			}
			if route.Model != tc.wantModel {
				t.Fatalf("model=%q, want %q", route.Model, tc.wantModel)
			}
		})
	}
}

func TestResolveUnknownModel(t *testing.T) {
	for _, model := range []string{"", "   ", "llama-3", "mistral-large"} {
		if _, err := Resolve(model); !errors.Is(err, ErrUnknownModel) {
			t.Fatalf("Resolve(%q) err=%v, want ErrUnknownModel", model, err)
		}
	}
}

func TestOverridesTemperature(t *testing.T) {
	requested := 0.2

	groq := VariantFor(KindGroq).Overrides
	if got := groq.temperature(&requested); got == nil || *got != 1 {
		t.Fatalf("groq temperature=%v, want 1", got)
	}

	openRouter := VariantFor(KindOpenRouter).Overrides
	if got := openRouter.temperature(&requested); got == nil || *got != 0.2 {
		t.Fatalf("openrouter temperature=%v, want caller's 0.2", got)
	}
	if got := openRouter.temperature(nil); got == nil || *got != 0.7 {
		t.Fatalf("openrouter default temperature=%v, want 0.7", got)
	}

	gemini := VariantFor(KindGemini).Overrides
	if got := gemini.temperature(nil); got != nil {
		t.Fatalf("gemini temperature=%v, want nil", *got)
	}
}

func TestProviderKindString(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds {
		name := k.String()
		if seen[name] {
			t.Fatalf("duplicate kind name %q", name)
		}
		seen[name] = true
		if VariantFor(k).Kind != k {
			t.Fatalf("variant for %s has kind %s", k, VariantFor(k).Kind)
		}
	}
}

func TestNewProviderMissingCredential(t *testing.T) {
	route, err := Resolve("deepseek-r1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewProvider(route, ProviderConfig{}); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err=%v, want ErrMissingCredential", err)
	}
}
