// Package mockprovider provides a test double for the Provider Port,
// grounded on the pack's hand-maintained gomock-style mocks (see e.g.
// pkg/provider/llm/mock in the glyphoxa example): configurable canned
// responses/errors plus call recording, no code generation required.
package mockprovider

import (
	"context"
	"sync"

	"subtrans/backend/internal/provider"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text           string
	SourceHint     string
	TargetLanguage string
	Prompt         string
}

// Response is one queued result for Translate or StreamTranslate.
type Response struct {
	Text string
	Err  error
}

// Provider is a scriptable provider.Translator /
// provider.StreamTranslator test double. Queue responses via Responses;
// each call pops the next entry. When the queue is exhausted, the last
// entry (if any) repeats.
type Provider struct {
	mu sync.Mutex

	name string

	// Responses is the queue consumed by Translate (and StreamTranslate,
	// emitted as a single onPartial chunk before returning).
	Responses []Response

	// Calls records every Translate/StreamTranslate invocation, in order.
	Calls []TranslateCall

	// Streaming reports whether StreamTranslate may be called; when false,
	// StreamTranslate panics. The method itself is always present, so
	// provider.Discover reports the StreamTranslator capability either way.
	Streaming bool

	next int
}

// New builds a mock provider that returns responses in order.
func New(name string, responses ...Response) *Provider {
	return &Provider{name: name, Responses: responses, Streaming: true}
}

func (p *Provider) Name() string {
	if p.name == "" {
		return "mock"
	}
	return p.name
}

func (p *Provider) popLocked() Response {
	if len(p.Responses) == 0 {
		return Response{}
	}
	idx := p.next
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	} else {
		p.next++
	}
	return p.Responses[idx]
}

func (p *Provider) Translate(ctx context.Context, text, sourceHint, targetLanguage, prompt string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranslateCall{Text: text, SourceHint: sourceHint, TargetLanguage: targetLanguage, Prompt: prompt})
	resp := p.popLocked()
	p.mu.Unlock()
	return resp.Text, resp.Err
}

// StreamTranslate emits the queued response as one partial chunk (unless
// the queue entry carries an error) then returns it as the final text.
func (p *Provider) StreamTranslate(ctx context.Context, text, sourceHint, targetLanguage, prompt string, onPartial func(string)) (string, error) {
	if !p.Streaming {
		panic("mockprovider: StreamTranslate called on a non-streaming provider")
	}
	p.mu.Lock()
	p.Calls = append(p.Calls, TranslateCall{Text: text, SourceHint: sourceHint, TargetLanguage: targetLanguage, Prompt: prompt})
	resp := p.popLocked()
	p.mu.Unlock()

	if resp.Err != nil {
		return "", resp.Err
	}
	if onPartial != nil && resp.Text != "" {
		onPartial(resp.Text)
	}
	return resp.Text, nil
}

// CallCount returns the number of Translate/StreamTranslate invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent recorded call, if any.
func (p *Provider) LastCall() (TranslateCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return TranslateCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

var (
	_ provider.Translator       = (*Provider)(nil)
	_ provider.StreamTranslator = (*Provider)(nil)
)
