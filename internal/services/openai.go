package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the LLM interface for interacting with OpenAI's language models, or
// any server speaking the same API when a base URL is set.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string

	params LLMParameters

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance. apiKey is used for requests that carry no key of their own; an
// empty baseURL selects the official endpoint.
func NewOpenAI(apiKey, baseURL, model string, params LLMParameters, logger *slog.Logger) OpenAI {
	return OpenAI{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		params:  params,
		logger:  logger.With(slog.String("module", "openai")),
	}
}

// Chat is a wrapper around the OpenAI streaming chat completion API.
func (o OpenAI) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		key := apiKey(req, o.apiKey)
		if key == "" {
			yield("", errors.New("an API key is required"))
			return
		}

		history := chatMessages(req)
		msgs := make([]goopenai.ChatCompletionMessage, len(history))
		for i, msg := range history {
			msgs[i] = goopenai.ChatCompletionMessage{Role: msg.role, Content: msg.content}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := o.client(key).CreateChatCompletionStream(ctx, o.chatRequest(msgs))
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				o.logger.Warn("Stream failed", slog.String(errLoggerKey, err.Error()))
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			if content := response.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

func (o OpenAI) client(key string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(key)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}

	return req
}
