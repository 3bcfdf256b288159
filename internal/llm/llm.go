// Package llm is a small provider-neutral chat completion client used to
// summarize finished interviews.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingKey means the provider named by a model spec has no API key.
var ErrMissingKey = errors.New("llm api key not configured")

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Keys holds one API key per provider.
type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

func (k Keys) forProvider(provider string) (string, error) {
	switch provider {
	case "openai":
		return k.OpenAI, nil
	case "anthropic":
		return k.Anthropic, nil
	case "gemini":
		return k.Gemini, nil
	}
	return "", unknownProvider(provider)
}

func unknownProvider(provider string) error {
	return fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	maxTokens   int
	temperature float64
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps the completion length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

func WithTemperature(t float64) Option {
	return func(o *clientOptions) {
		o.temperature = t
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(strings.TrimSpace(model), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return strings.ToLower(parts[0]), parts[1], nil
}

// FromSpec builds a client for a "provider/model" spec, picking the
// provider's key from keys.
func FromSpec(spec string, keys Keys, opts ...Option) (Client, error) {
	provider, model, err := ParseModel(spec)
	if err != nil {
		return nil, err
	}
	key, err := keys.forProvider(provider)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, provider)
	}
	return NewClient(provider, key, model, opts...)
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, unknownProvider(provider)
	}
}
