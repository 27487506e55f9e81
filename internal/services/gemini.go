package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	"google.golang.org/genai"
)

// Gemini provides an implementation of the LLM interface for Google's Gemini models. A client is built for
// every request because the API key usually comes with the request.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string

	params LLMParameters

	logger *slog.Logger
}

const defaultGeminiModel = "gemini-1.5-flash"

// NewGemini creates a new Gemini instance. apiKey is used for requests that carry no key of their own; an
// empty baseURL selects the public API and an empty model selects gemini-1.5-flash.
func NewGemini(apiKey, baseURL, model string, params LLMParameters, logger *slog.Logger) Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return Gemini{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		params:  params,
		logger:  logger.With(slog.String("module", "gemini")),
	}
}

// Chat streams the model's answer to the conversation in req.
func (g Gemini) Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		key := apiKey(req, g.apiKey)
		if key == "" {
			yield("", errors.New("an API key is required"))
			return
		}

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      key,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
		})
		if err != nil {
			yield("", fmt.Errorf("error creating gemini client: %w", err))
			return
		}

		for chunk, err := range client.Models.GenerateContentStream(ctx, g.model, geminiContents(req.Messages), g.config(req.SystemPrompt)) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				g.logger.Warn("Stream failed", slog.String(errLoggerKey, err.Error()))
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			if text := chunk.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func geminiContents(messages []models.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func (g Gemini) config(systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:   g.params.Temperature,
		TopP:          g.params.TopP,
		StopSequences: g.params.Stop,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if g.params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*g.params.MaxTokens)
	}
	return cfg
}
