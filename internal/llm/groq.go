package llm

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewGroqProvider creates a Groq provider. Groq pins its own sampling
// parameters through the route overrides.
func NewGroqProvider(apiKey, baseURL string, route Route) *OpenAICompatProvider {
	return NewOpenAICompatProvider(baseURL, apiKey, route.Model, route.Name, route.Overrides, nil)
}
