package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	llmkit "github.com/aktagon/llmkit/anthropic"
	llmtypes "github.com/aktagon/llmkit/anthropic/types"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Supported model providers
const (
	ProviderLLMKit       = "llmkit"
	ProviderAnthropicSDK = "anthropic-sdk"
)

var ErrMissingAPIKey = errors.New("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")

// Model is the language-model collaborator: one prompt in, free-form text out
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewModel creates the client for the configured provider
func NewModel(settings AgentSettings, apiKey string) (Model, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch settings.Provider {
	case ProviderLLMKit, "":
		return &LLMKitModel{apiKey: apiKey, settings: settings}, nil
	case ProviderAnthropicSDK:
		return NewSDKModel(settings, apiKey), nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", settings.Provider)
	}
}

// LLMKitModel calls Anthropic through llmkit's prompt helper
type LLMKitModel struct {
	apiKey   string
	settings AgentSettings
}

// Complete sends a single user prompt. llmkit has no context support, so ctx
// is only checked before the call.
func (m *LLMKitModel) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	settings := llmtypes.RequestSettings{
		Model:       m.settings.Model,
		MaxTokens:   m.settings.MaxTokens,
		Temperature: m.settings.Temperature,
	}
	response, err := llmkit.PromptWithSettings(m.settings.SystemPrompt, prompt, "", m.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("llmkit prompt: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	return response.Content[0].Text, nil
}

// SDKModel calls Anthropic through the official Go SDK
type SDKModel struct {
	client   anthropic.Client
	settings AgentSettings
}

// NewSDKModel creates an SDK-backed model client. Extra request options are
// applied after the API key.
func NewSDKModel(settings AgentSettings, apiKey string, opts ...option.RequestOption) *SDKModel {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &SDKModel{
		client:   anthropic.NewClient(opts...),
		settings: settings,
	}
}

// Complete returns the first text block of the reply
func (m *SDKModel) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(m.settings.Model),
		MaxTokens:   int64(m.settings.MaxTokens),
		Temperature: anthropic.Float(m.settings.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: m.settings.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// promptData is the data available to the classifier prompt template
type promptData struct {
	URL              string
	Topic            string
	ResponseTemplate string
	Scraped          string
}

// PromptBuilder renders the classifier prompt
type PromptBuilder struct {
	tmpl             *template.Template
	topic            string
	responseTemplate string
}

// NewPromptBuilder parses the prompt template. The template must contain
// {{.URL}}; the scraped-context clause is expected under {{if .Scraped}}.
func NewPromptBuilder(text, topic, responseTemplate string) (*PromptBuilder, error) {
	if !strings.Contains(text, "{{.URL}}") {
		return nil, fmt.Errorf("classifier prompt template must contain {{.URL}} variable")
	}

	tmpl, err := template.New("classifier").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing classifier prompt template: %w", err)
	}

	return &PromptBuilder{tmpl: tmpl, topic: topic, responseTemplate: responseTemplate}, nil
}

// Build renders the prompt for url. scraped is empty when no page text is
// available, which omits the context clause.
func (b *PromptBuilder) Build(url, scraped string) (string, error) {
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, promptData{
		URL:              url,
		Topic:            b.topic,
		ResponseTemplate: b.responseTemplate,
		Scraped:          scraped,
	})
	if err != nil {
		return "", fmt.Errorf("executing classifier prompt template: %w", err)
	}
	return buf.String(), nil
}
