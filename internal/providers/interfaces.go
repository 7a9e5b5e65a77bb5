package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	System    string   `json:"system,omitempty"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
	// ExpectedItems is a hint for providers that can size their output.
	ExpectedItems int `json:"expected_items,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

const defaultSystemPrompt = "You write quiz questions for students. Answer with strict JSON only, no prose."

func systemPrompt(req GenerateRequest) string {
	if req.System != "" {
		return req.System
	}
	return defaultSystemPrompt
}

func userPrompt(req GenerateRequest) string {
	prompt := req.Prompt
	for _, c := range req.Context {
		prompt += "\n\n" + c
	}
	return prompt
}
