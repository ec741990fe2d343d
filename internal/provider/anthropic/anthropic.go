// Package anthropic adapts the Anthropic Messages API to the Provider
// Port, grounded on the teacher's internal/service/ai Anthropic adapter
// (same client construction and text-block extraction), serving as the
// fallback provider per the engine's retry/fallback policy.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"subtrans/backend/internal/provider"
)

// Name is the provider identity reported to the engine and used in logs.
const Name = "anthropic"

const defaultMaxTokens = 4096

// Provider implements provider.Translator and provider.StreamTranslator
// against the Anthropic Messages endpoint.
type Provider struct {
	client sdk.Client
	model  string
}

// New constructs an Anthropic-backed provider.
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

func (p *Provider) Translate(ctx context.Context, text, sourceHint, targetLanguage, prompt string) (string, error) {
	userPrompt, err := renderPrompt(text, targetLanguage, prompt)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	return extractText(resp)
}

// StreamTranslate delivers incremental text deltas through onPartial.
// Anthropic's fallback role means this is rarely used in practice (the
// engine only falls back to the non-streaming path) but is implemented
// for completeness of the capability contract.
func (p *Provider) StreamTranslate(ctx context.Context, text, sourceHint, targetLanguage, prompt string, onPartial func(string)) (string, error) {
	userPrompt, err := renderPrompt(text, targetLanguage, prompt)
	if err != nil {
		return "", err
	}

	stream := p.client.Messages.NewStreaming(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	})
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(sdk.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		full.WriteString(text.Text)
		if onPartial != nil {
			onPartial(text.Text)
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

// Test sends a minimal message to verify credentials and connectivity,
// mirroring the teacher's Provider.Test probe.
func (p *Provider) Test(ctx context.Context) (string, error) {
	resp, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: 50,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock("Hello world")),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	return extractText(resp)
}

func extractText(resp *sdk.Message) (string, error) {
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			return tb.Text, nil
		}
	}
	return "", provider.NewError(provider.NoContent, "no text block in response", nil)
}

func renderPrompt(text, targetLanguage, prompt string) (string, error) {
	if text == "" {
		return "", errors.New("anthropic: empty request text")
	}
	if prompt == "" {
		return fmt.Sprintf("Translate the following subtitle text to %s:\n\n%s", targetLanguage, text), nil
	}
	return prompt + "\n\n" + text, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return provider.NewError(provider.RateLimited, "rate limited", err)
		case 529, 503:
			return provider.NewError(provider.Overloaded, "overloaded", err)
		case 400:
			lower := strings.ToLower(apiErr.Message)
			switch {
			case strings.Contains(lower, "content"):
				return provider.NewError(provider.ProhibitedContent, "prohibited content", err)
			case strings.Contains(lower, "token"):
				return provider.NewError(provider.MaxTokens, "max tokens exceeded", err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewError(provider.NetworkTimeout, "request timed out", err)
	}

	return provider.NewError(provider.Other, "anthropic request failed", err)
}
