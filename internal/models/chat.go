package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Conversation represents a persisted chat session scoped to one system prompt. Its messages are kept in
// insertion order, which is also their chronological order.
type Conversation struct {
	ID           ID        `json:"id"`
	SystemPrompt string    `json:"system_prompt_used"`
	CreatedAt    time.Time `json:"created_at"`

	Messages []Message `json:"messages,omitempty"`
}

// ConversationSummary is the listing form of a Conversation, without its messages.
type ConversationSummary struct {
	ID           ID        `json:"id"`
	SystemPrompt string    `json:"system_prompt_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// ID is an opaque server-assigned identifier. The server may send it as a JSON string or a number; it is
// always encoded back as a string.
type ID string

// Summary returns the listing form of the conversation.
func (c Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		SystemPrompt: c.SystemPrompt,
		CreatedAt:    c.CreatedAt,
	}
}

// UnmarshalJSON implements json.Unmarshaler, accepting zone-less timestamps.
func (c *Conversation) UnmarshalJSON(b []byte) error {
	type alias Conversation
	aux := struct {
		*alias
		CreatedAt flexTime `json:"created_at"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.CreatedAt = aux.CreatedAt.Time
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting zone-less timestamps.
func (c *ConversationSummary) UnmarshalJSON(b []byte) error {
	type alias ConversationSummary
	aux := struct {
		*alias
		CreatedAt flexTime `json:"created_at"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.CreatedAt = aux.CreatedAt.Time
	return nil
}

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*id = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid id %s: %w", s, err)
		}
		*id = ID(n.String())
	}
	return nil
}

// flexTime decodes RFC 3339 timestamps as well as the zone-less ISO-8601 form some backends emit. Zone-less
// values are interpreted as UTC.
type flexTime struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	if v, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range zonelessLayouts {
		if v, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp format %q", raw)
}
