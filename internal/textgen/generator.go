// Package textgen produces decorative text: line-item descriptions and
// invoice summaries. Nothing in the invoice lifecycle depends on it.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Generator completes a prompt under a system instruction.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var ErrEmptyCompletion = errors.New("model returned no text")

// OpenAIGenerator calls chat completions through a circuit breaker.
type OpenAIGenerator struct {
	client  completer
	model   string
	breaker *CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
}

func NewOpenAIGenerator(apiKey, model string, breaker *CircuitBreaker, log zerolog.Logger) *OpenAIGenerator {
	return newOpenAIGenerator(openai.NewClient(apiKey), model, breaker, log)
}

func newOpenAIGenerator(client completer, model string, breaker *CircuitBreaker, log zerolog.Logger) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(3, time.Minute)
	}
	return &OpenAIGenerator{
		client:  client,
		model:   model,
		breaker: breaker,
		timeout: 20 * time.Second,
		log:     log,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	const op = "textgen.Generate"

	var text string
	err := g.breaker.Call(func() error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		messages := make([]openai.ChatCompletionMessage, 0, 2)
		if system != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			Messages:    messages,
			Temperature: 0.7,
			MaxTokens:   200,
		})
		if err != nil {
			return fmt.Errorf("%s: completion request failed: %w", op, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s: %w", op, ErrEmptyCompletion)
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return fmt.Errorf("%s: %w", op, ErrEmptyCompletion)
		}
		return nil
	})
	if err != nil {
		g.log.Warn().Err(err).Str("model", g.model).Str("breaker", string(g.breaker.State())).Msg("text generation failed")
		return "", err
	}
	return text, nil
}
