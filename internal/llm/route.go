package llm

import (
	"fmt"
	"strings"
)

// ProviderKind is the closed set of upstream provider families.
type ProviderKind int

const (
	KindGemini ProviderKind = iota
	KindOpenRouter
	KindGroq
	KindOpenAI
	KindAnthropic
)

// Kinds lists every provider kind in routing order.
var Kinds = []ProviderKind{KindGemini, KindOpenRouter, KindGroq, KindOpenAI, KindAnthropic}

func (k ProviderKind) String() string {
	switch k {
	case KindGemini:
		return "gemini"
	case KindOpenRouter:
		return "openrouter"
	case KindGroq:
		return "groq"
	case KindOpenAI:
		return "openai"
	case KindAnthropic:
		return "anthropic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Overrides are provider-fixed generation parameters.
type Overrides struct {
	// Temperature replaces the caller's temperature when set.
	Temperature *float64
	// DefaultTemperature applies when the caller sends none.
	DefaultTemperature  *float64
	TopP                *float64
	MaxCompletionTokens int
	ReasoningEffort     string
}

// Variant describes one provider family: where it lives, which credential
// it needs and how model ids and parameters are rewritten for it.
type Variant struct {
	Kind          ProviderKind
	Name          string
	BaseURL       string
	CredentialEnv string
	// TargetModel pins every request to one upstream model. Empty passes
	// the requested id through (after Remaps).
	TargetModel string
	Remaps      map[string]string
	Overrides   Overrides
}

// Route is the result of resolving a model id.
type Route struct {
	Variant
	Model string
}

func float(v float64) *float64 { return &v }

var variants = map[ProviderKind]Variant{
	KindGemini: {
		Kind:          KindGemini,
		Name:          "Gemini",
		CredentialEnv: "API_KEY",
		Remaps: map[string]string{
			"gemini-3-flash-preview": "gemini-2.5-flash",
		},
	},
	KindOpenRouter: {
		Kind:          KindOpenRouter,
		Name:          "OpenRouter",
		BaseURL:       openRouterBaseURL,
		CredentialEnv: "OPENROUTER_API_KEY",
		TargetModel:   "deepseek/deepseek-r1-0528:free",
		Overrides: Overrides{
			DefaultTemperature: float(0.7),
		},
	},
	KindGroq: {
		Kind:          KindGroq,
		Name:          "Groq",
		BaseURL:       groqBaseURL,
		CredentialEnv: "GROQ_API_KEY",
		TargetModel:   "openai/gpt-oss-20b",
		Overrides: Overrides{
			Temperature:         float(1),
			TopP:                float(1),
			MaxCompletionTokens: 8192,
			ReasoningEffort:     "medium",
		},
	},
	KindOpenAI: {
		Kind:          KindOpenAI,
		Name:          "OpenAI",
		CredentialEnv: "OPENAI_API_KEY",
	},
	KindAnthropic: {
		Kind:          KindAnthropic,
		Name:          "Anthropic",
		CredentialEnv: "ANTHROPIC_API_KEY",
	},
}

// VariantFor returns the variant of a provider kind.
func VariantFor(kind ProviderKind) Variant {
	return variants[kind]
}

// kindOf maps a model id to its provider family.
func kindOf(model string) (ProviderKind, bool) {
	id := strings.ToLower(strings.TrimSpace(model))
	switch {
	case id == "":
		return 0, false
	case strings.Contains(id, "gemini"), strings.Contains(id, "veo"):
		return KindGemini, true
	case strings.Contains(id, "deepseek"), strings.Contains(id, "openrouter"):
		return KindOpenRouter, true
	case id == "openai/gpt-oss-20b", strings.Contains(id, "groq"):
		return KindGroq, true
	case strings.HasPrefix(id, "gpt-"), strings.HasPrefix(id, "o1"),
		strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return KindOpenAI, true
	case strings.HasPrefix(id, "claude"):
		return KindAnthropic, true
	}
	return 0, false
}

// Resolve routes a model id to its provider variant and upstream model.
func Resolve(model string) (Route, error) {
	kind, ok := kindOf(model)
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	v := variants[kind]
	target := strings.TrimSpace(model)
	if v.TargetModel != "" {
		target = v.TargetModel
	} else if remapped, ok := v.Remaps[target]; ok {
		target = remapped
	}
	return Route{Variant: v, Model: target}, nil
}

// temperature applies the variant's overrides to the caller's temperature.
func (o Overrides) temperature(requested *float64) *float64 {
	if o.Temperature != nil {
		return o.Temperature
	}
	if requested != nil {
		return requested
	}
	return o.DefaultTemperature
}
