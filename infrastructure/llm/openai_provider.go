// Package llm adapts chat-completion providers to the generation port.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"loom-backend/application/ports"
	domainservices "loom-backend/domain/services"
	"loom-backend/infrastructure/config"
)

const systemPrompt = "You are the response engine of a branching conversation canvas. " +
	"Each request carries the card's inherited context: condensed distant ancestors, " +
	"the direct parent exchanges in order, and finally the card's own prompt. " +
	"Answer the final prompt using that context. Be direct and complete."

const summarySystemPrompt = "Condense the following response into a short summary that " +
	"preserves its conclusions and key facts. The summary stands in for the full text " +
	"as context for follow-up questions."

// OpenAIProvider implements ports.GenerationProvider over the OpenAI
// chat-completion API. Calls run behind a circuit breaker so a
// misbehaving upstream fails fast instead of stacking timeouts.
type OpenAIProvider struct {
	client       *openai.Client
	breaker      *gobreaker.CircuitBreaker
	model        string
	summaryModel string
	timeout      time.Duration
	logger       *zap.Logger
}

// NewOpenAIProvider builds a provider from the static configuration
func NewOpenAIProvider(cfg *config.Config, logger *zap.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		breaker:      breaker,
		model:        cfg.GenerationModel,
		summaryModel: cfg.SummaryModel,
		timeout:      cfg.GenerationTimeout,
		logger:       logger,
	}
}

// Generate produces a response for the given card context
func (p *OpenAIProvider) Generate(ctx context.Context, request ports.GenerationRequest) (ports.GenerationResult, error) {
	if request.Context == nil {
		return ports.GenerationResult{}, fmt.Errorf("generation request carries no context")
	}

	messages := renderMessages(request.Context)
	p.logger.Debug("Generating card response",
		zap.String("cardID", request.CardID.String()),
		zap.String("model", p.model),
		zap.Int("messages", len(messages)))

	content, err := p.complete(ctx, p.model, messages)
	if err != nil {
		return ports.GenerationResult{}, err
	}
	return ports.GenerationResult{Response: content, Model: p.model}, nil
}

// Summarize condenses a response for use as distant-ancestor context
func (p *OpenAIProvider) Summarize(ctx context.Context, text string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
	return p.complete(ctx, p.summaryModel, messages)
}

func (p *OpenAIProvider) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.breaker.Execute(func() (any, error) {
		resp, callErr := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: messages,
		})
		if callErr != nil {
			return nil, callErr
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("provider returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		p.logger.Warn("Completion call failed",
			zap.String("model", model),
			zap.Error(err))
		return "", fmt.Errorf("completion call failed: %w", err)
	}
	return result.(string), nil
}

// renderMessages maps a card context onto a chat transcript: ancestors
// condense into the system message, each parent becomes a prior
// user/assistant exchange in context order, and the card's own prompt
// (with its quote, if any) closes as the final user message.
func renderMessages(cardCtx *domainservices.CardContext) []openai.ChatCompletionMessage {
	system := systemPrompt
	if len(cardCtx.Ancestors) > 0 {
		var b strings.Builder
		b.WriteString(systemPrompt)
		b.WriteString("\n\nEarlier context, nearest first:\n")
		for _, ancestor := range cardCtx.Ancestors {
			b.WriteString("- ")
			b.WriteString(ancestor.Condensed)
			b.WriteByte('\n')
		}
		system = b.String()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2+2*len(cardCtx.Parents))
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})

	for _, parent := range cardCtx.Parents {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: parent.Prompt},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: parent.Response},
		)
	}

	user := cardCtx.Prompt
	if cardCtx.Quote != nil && cardCtx.Quote.Excerpt != "" {
		user = "> " + cardCtx.Quote.Excerpt + "\n\n" + cardCtx.Prompt
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
	return messages
}
