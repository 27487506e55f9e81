package models

// ChatRequest is everything a language model needs to produce the next assistant message: the conversation's
// system prompt and its history, the last element being the user message to answer. APIKey is the caller's
// credential for providers that take one per request; it is never persisted.
type ChatRequest struct {
	APIKey       string
	SystemPrompt string
	Messages     []Message
}
