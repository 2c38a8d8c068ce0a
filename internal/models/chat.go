package models

import (
	"time"
)

// Message represents an individual entry of a consultation. It contains the participant's role, the
// text of the entry, the time it was created and, for assistant replies, the web sources the reply was
// grounded on.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// GroundingSources would be filled only for assistant messages that received citations.
	GroundingSources []Source `json:"groundingSources,omitempty"`
	// IsSearching is true only while the assistant reply for this message is pending.
	IsSearching bool `json:"isSearching"`
}

// Source is a cited web document returned alongside a grounded reply.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the completion service, including the welcome
	// message and the pending placeholder.
	RoleAssistant Role = "assistant"
)

// Completion is the successful outcome of a completion service call.
type Completion struct {
	Text    string
	Sources []Source
}

// CompletionRecord is a diagnostic entry describing a single completion service call. It never holds
// message content.
type CompletionRecord struct {
	ID        string        `json:"id"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Turns     int           `json:"turns"`
	Sources   int           `json:"sources"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the recorded call ended with an error.
func (r CompletionRecord) Failed() bool {
	return r.Error != ""
}
