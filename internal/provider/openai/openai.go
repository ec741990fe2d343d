// Package openai adapts the OpenAI chat-completions API to the
// Provider Port, grounded on the teacher's internal/service/ai OpenAI
// adapter (same client construction, same streaming-channel shape,
// generalized from summarization to subtitle translation).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"subtrans/backend/internal/provider"
)

// Name is the provider identity reported to the engine and used in logs.
const Name = "openai"

// Provider implements provider.Translator, provider.StreamTranslator and
// provider.PromptBuilder against the OpenAI chat-completions endpoint.
type Provider struct {
	client sdk.Client
	model  string
}

// New constructs an OpenAI-backed provider. baseURL is optional and
// redirects the client at an OpenAI-compatible endpoint.
func New(apiKey, baseURL, model string) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		client: sdk.NewClient(opts...),
		model:  model,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) systemPrompt() string {
	return "You are a professional subtitle translator. Follow the formatting instructions exactly."
}

func (p *Provider) messages(userPrompt string) []sdk.ChatCompletionMessageParamUnion {
	return []sdk.ChatCompletionMessageParamUnion{
		sdk.SystemMessage(p.systemPrompt()),
		sdk.UserMessage(userPrompt),
	}
}

// Translate performs a blocking chat-completion call and returns the full
// response text.
func (p *Provider) Translate(ctx context.Context, text, sourceHint, targetLanguage, prompt string) (string, error) {
	userPrompt, err := renderPrompt(text, sourceHint, targetLanguage, prompt)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: p.messages(userPrompt),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", provider.NewError(provider.NoContent, "empty completion", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamTranslate delivers incremental chunks through onPartial and
// returns the concatenated final text.
func (p *Provider) StreamTranslate(ctx context.Context, text, sourceHint, targetLanguage, prompt string, onPartial func(string)) (string, error) {
	userPrompt, err := renderPrompt(text, sourceHint, targetLanguage, prompt)
	if err != nil {
		return "", err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model),
		Messages: p.messages(userPrompt),
	})
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if onPartial != nil {
				onPartial(choice.Delta.Content)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", classify(err)
	}
	if full.Len() == 0 {
		return "", provider.NewError(provider.NoContent, "empty streamed completion", nil)
	}
	return full.String(), nil
}

// BuildUserPrompt exposes the exact prompt text this provider would send,
// so the engine's token estimation can include framing overhead.
func (p *Provider) BuildUserPrompt(text, targetLanguage, prompt string) (provider.UserPrompt, error) {
	userPrompt, err := renderPrompt(text, "", targetLanguage, prompt)
	if err != nil {
		return provider.UserPrompt{}, err
	}
	return provider.UserPrompt{
		UserPrompt:   userPrompt,
		SystemPrompt: p.systemPrompt(),
	}, nil
}

// Test sends a minimal message to verify credentials and connectivity,
// mirroring the teacher's Provider.Test probe.
func (p *Provider) Test(ctx context.Context) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:     sdk.ChatModel(p.model),
		Messages:  []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage("Hello world")},
		MaxTokens: sdk.Int(20),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func renderPrompt(text, _, targetLanguage, prompt string) (string, error) {
	if text == "" {
		return "", errors.New("openai: empty request text")
	}
	if prompt == "" {
		return fmt.Sprintf("Translate the following subtitle text to %s:\n\n%s", targetLanguage, text), nil
	}
	return prompt + "\n\n" + text, nil
}

// classify maps an OpenAI SDK error to a Provider Port error kind.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return provider.NewError(provider.RateLimited, "rate limited", err)
		case 503:
			return provider.NewError(provider.Overloaded, "overloaded", err)
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "content") {
				return provider.NewError(provider.ProhibitedContent, "prohibited content", err)
			}
			if strings.Contains(strings.ToLower(apiErr.Message), "token") {
				return provider.NewError(provider.MaxTokens, "max tokens exceeded", err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewError(provider.NetworkTimeout, "request timed out", err)
	}

	return provider.NewError(provider.Other, "openai request failed", err)
}
