package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxMessageLen bounds a single chat message body.
const MaxMessageLen = 4 * 1024

// ChatMessage belongs to exactly one match. Messages are only meaningful
// while the match is open; send is rejected once it closes or is cancelled.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	MatchID   uuid.UUID `json:"match_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the request body for POST /v1/matches/{id}/messages.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// Validate checks the message body before any write.
func (r SendMessageRequest) Validate() error {
	if r.Body == "" {
		return fmt.Errorf("body is required")
	}
	if len(r.Body) > MaxMessageLen {
		return fmt.Errorf("body exceeds maximum length of %d bytes", MaxMessageLen)
	}
	return nil
}
