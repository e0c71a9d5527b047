package llm

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"loom-backend/application/ports"
)

// StubProvider is a deterministic GenerationProvider for local
// development and tests. It echoes the prompt and context shape back
// instead of calling a model, so canvases stay fully usable without
// an API key.
type StubProvider struct {
	logger *zap.Logger
}

// NewStubProvider creates a stub provider
func NewStubProvider(logger *zap.Logger) *StubProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubProvider{logger: logger}
}

// Generate fabricates a response describing the request it received
func (p *StubProvider) Generate(_ context.Context, request ports.GenerationRequest) (ports.GenerationResult, error) {
	if request.Context == nil {
		return ports.GenerationResult{}, fmt.Errorf("generation request carries no context")
	}

	p.logger.Debug("Stub generation",
		zap.String("cardID", request.CardID.String()),
		zap.Int("parents", len(request.Context.Parents)),
		zap.Int("ancestors", len(request.Context.Ancestors)))

	response := fmt.Sprintf("[stub] %s (parents: %d, ancestors: %d)",
		request.Context.Prompt, len(request.Context.Parents), len(request.Context.Ancestors))
	return ports.GenerationResult{Response: response, Model: "stub"}, nil
}

// Summarize truncates instead of condensing
func (p *StubProvider) Summarize(_ context.Context, text string) (string, error) {
	const maxRunes = 120
	if utf8.RuneCountInString(text) <= maxRunes {
		return text, nil
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…", nil
}
