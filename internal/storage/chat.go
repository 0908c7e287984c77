package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reuniteapp/reunite/internal/model"
)

// CreateChatMessage inserts a chat message and returns it. The caller is
// responsible for verifying that the match is open and the sender is a
// participant.
func (db *DB) CreateChatMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, match_id, sender_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.MatchID, msg.SenderID, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("storage: create chat message: %w", err)
	}
	return msg, nil
}

// ListChatMessages returns a match's messages oldest first.
func (db *DB) ListChatMessages(ctx context.Context, matchID uuid.UUID) ([]model.ChatMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, match_id, sender_id, body, created_at
		 FROM chat_messages WHERE match_id = $1 ORDER BY created_at ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list chat messages: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.MatchID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chat message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
