package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/promptcraft/promptcraft-chat/internal/models"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions. Ollama needs no
// API key, so the key sent with a request is ignored.
type Ollama struct {
	model  string
	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Chat implements the LLM interface by streaming responses from the Ollama model. The response is streamed
// incrementally, allowing for real-time processing of model outputs.
func (o Ollama) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		history := chatMessages(req)
		msgs := make([]api.Message, len(history))
		for i, msg := range history {
			msgs[i] = api.Message{Role: msg.role, Content: msg.content}
		}

		t := true
		chatReq := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
			Options:  o.options(),
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		if err := o.client.Chat(ctx, &chatReq, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			if stopped || errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Warn("Chat request failed", slog.String(errLoggerKey, err.Error()))
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

func (o Ollama) options() map[string]any {
	opts := make(map[string]any)
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		opts["num_predict"] = *o.params.MaxTokens
	}
	if len(o.params.Stop) > 0 {
		opts["stop"] = o.params.Stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
