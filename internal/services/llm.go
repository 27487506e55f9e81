package services

import (
	"github.com/promptcraft/promptcraft-chat/internal/models"
)

const errLoggerKey = "err"

// LLMParameters holds the optional sampling parameters shared by every provider. A nil field leaves the
// provider's default in place.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopP        *float32 `yaml:"topP"`
	MaxTokens   *int     `yaml:"maxTokens"`
	Stop        []string `yaml:"stop"`
}

// apiKey returns the key sent with the request, falling back to the configured one.
func apiKey(req models.ChatRequest, configured string) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return configured
}

// chatMessages returns the conversation history with the system prompt, if any, as the first message. Empty
// messages are skipped.
func chatMessages(req models.ChatRequest) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{role: "system", content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		msgs = append(msgs, chatMessage{role: string(msg.Role), content: msg.Content})
	}
	return msgs
}

type chatMessage struct {
	role    string
	content string
}
