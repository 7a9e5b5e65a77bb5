package providers

import (
	"fmt"
	"strings"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager holds the configured LLM providers in preference order: real
// providers first, mock last.
type Manager struct {
	llmProviders []NamedLLMProvider
}

func NewManager(providerList string) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(providerList) {
		p, err := buildProvider(ref)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	m.llmProviders = preferredOrder(m.llmProviders)
	return m, nil
}

// NewManagerWith wraps already built providers; used by tests and the local CLI.
func NewManagerWith(named ...NamedLLMProvider) *Manager {
	if len(named) == 0 {
		named = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider()}}
	}
	return &Manager{llmProviders: named}
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

// ForAttempt rotates through providers so consecutive attempts of one pass
// land on different providers when more than one is configured.
func (m *Manager) ForAttempt(attempt int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if attempt < 0 {
		attempt = 0
	}
	p := m.llmProviders[attempt%len(m.llmProviders)]
	return p.Provider, p.Ref
}

func (m *Manager) Refs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.llmProviders))
	for _, p := range m.llmProviders {
		out = append(out, p.Ref)
	}
	return out
}

func preferredOrder(in []NamedLLMProvider) []NamedLLMProvider {
	out := make([]NamedLLMProvider, 0, len(in))
	for _, p := range in {
		if p.Ref.Name != "mock" {
			out = append(out, p)
		}
	}
	for _, p := range in {
		if p.Ref.Name == "mock" {
			out = append(out, p)
		}
	}
	return out
}

func buildProvider(ref ProviderRef) (LLMProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
