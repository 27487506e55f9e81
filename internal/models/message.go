package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message represents one turn within a conversation. ID is empty until the server has persisted the message,
// which is the case for the optimistic echo of a user message and for the assistant placeholder that is being
// streamed into. Key identifies the message on the client across that transition.
type Message struct {
	ID             ID        `json:"id"`
	ConversationID ID        `json:"conversation_id,omitempty"`
	Role           Role      `json:"sender"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Feedback

	// Key is a client-side identifier, never sent over the wire.
	Key string `json:"-"`
	// Streaming is true while the message is the target of an active stream.
	Streaming bool `json:"-"`
	// Failed is true if the response that should have filled the message failed.
	Failed bool `json:"-"`
}

// Feedback holds the like/dislike pair of a message. The two flags are independent: both may be set, or
// neither.
type Feedback struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}

// FeedbackKind selects one of the two feedback controls.
type FeedbackKind string

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the model.
	RoleAssistant Role = "assistant"

	// FeedbackLike is the "like" control.
	FeedbackLike FeedbackKind = "like"
	// FeedbackDislike is the "dislike" control.
	FeedbackDislike FeedbackKind = "dislike"
)

// UnmarshalText implements encoding.TextUnmarshaler. Aliases used by model providers ("ai", "model") are
// mapped to RoleAssistant.
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "user":
		*r = RoleUser
	case "assistant", "ai", "model":
		*r = RoleAssistant
	default:
		return fmt.Errorf("unknown sender %q", string(b))
	}
	return nil
}

// Eligible reports whether the message can receive feedback. Messages without a server identifier or still
// being streamed cannot.
func (m Message) Eligible() bool {
	return m.ID != "" && !m.Streaming
}

// UnmarshalJSON implements json.Unmarshaler, accepting zone-less timestamps.
func (m *Message) UnmarshalJSON(b []byte) error {
	type alias Message
	aux := struct {
		*alias
		Timestamp flexTime `json:"timestamp"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.Timestamp = aux.Timestamp.Time
	return nil
}

// Valid reports whether k names one of the two feedback controls.
func (k FeedbackKind) Valid() bool {
	return k == FeedbackLike || k == FeedbackDislike
}
