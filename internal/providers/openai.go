package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls chat completions through the official SDK. The SDK's
// own retries are disabled: the quiz orchestrator owns the retry budget.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	model   string
	opts    []option.RequestOption
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	apiKey := resolveOpenAIKey(keyName)
	model := strings.TrimSpace(os.Getenv("QUIZGEN_OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if base := strings.TrimSpace(os.Getenv("QUIZGEN_OPENAI_BASE_URL")); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  apiKey,
		model:   model,
		opts:    opts,
	}
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: o.model, Key: o.keyName}
	if o.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	client := openai.NewClient(o.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(req)),
			openai.UserMessage(userPrompt(req)),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return GenerateResponse{}, info, &StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: err.Error()}
		}
		return GenerateResponse{}, info, fmt.Errorf("openai generate request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("openai returned empty choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return GenerateResponse{}, info, fmt.Errorf("openai response blocked by content_filter")
	}
	return GenerateResponse{Text: choice.Message.Content}, info, nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		k := os.Getenv("QUIZGEN_OPENAI_KEY_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
