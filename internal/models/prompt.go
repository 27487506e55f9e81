package models

import (
	"encoding/json"
	"time"
)

// Prompt is a reusable system prompt template. Built-in prompts ship with the client and have no ID; custom
// prompts are persisted by the server.
type Prompt struct {
	ID        ID        `json:"id,omitempty" yaml:"-"`
	Name      string    `json:"name" yaml:"name"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
}

// BuiltIn reports whether the prompt is a built-in default.
func (p Prompt) BuiltIn() bool {
	return p.ID == ""
}

// UnmarshalJSON implements json.Unmarshaler, accepting zone-less timestamps.
func (p *Prompt) UnmarshalJSON(b []byte) error {
	type alias Prompt
	aux := struct {
		*alias
		CreatedAt flexTime `json:"created_at"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.CreatedAt = aux.CreatedAt.Time
	return nil
}
