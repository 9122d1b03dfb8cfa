// ABOUTME: Conversation and message persistence with message_count maintenance
// ABOUTME: Append/delete touch the counter and the rows in one transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/grimoire/internal/access"
)

// CreateConversation creates a new conversation for conv.UserID. The agent
// is referenced by name only; it need not exist and may be deleted later
// without touching the conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, p access.Principal, conv *Conversation) error {
	if !p.CanAccess(conv.UserID) {
		return ErrNotFound
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	// No messages yet, whatever the caller put in the struct.
	conv.MessageCount = 0

	query := `
		INSERT INTO conversations (id, user_id, agent_name, title, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.AgentName,
		conv.Title,
		conv.MessageCount,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "agent", conv.AgentName, "user_id", conv.UserID)
	return nil
}

// GetConversation retrieves a conversation by ID, scoped to the principal.
func (s *SQLiteStore) GetConversation(ctx context.Context, p access.Principal, id string) (*Conversation, error) {
	owner := ownerParam(p)
	query := `
		SELECT id, user_id, agent_name, title, message_count, created_at, updated_at
		FROM conversations
		WHERE id = ? AND (? IS NULL OR user_id = ?)
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, owner, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	return conv, nil
}

// ListConversations returns an owner's conversations, most recently active
// first. A non-empty agentName narrows the list to that agent.
func (s *SQLiteStore) ListConversations(ctx context.Context, p access.Principal, ownerID, agentName string) ([]*Conversation, error) {
	if !p.CanAccess(ownerID) {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, user_id, agent_name, title, message_count, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
	`
	args := []any{ownerID}

	if agentName != "" {
		query += " AND agent_name = ?"
		args = append(args, agentName)
	}
	query += " ORDER BY updated_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := []*Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return convs, nil
}

// AppendMessage inserts a message and bumps its conversation's
// message_count and updated_at, all in one transaction. A missing or
// foreign conversation yields ErrNotFound before anything is written.
func (s *SQLiteStore) AppendMessage(ctx context.Context, p access.Principal, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// The guarded counter bump doubles as the existence and ownership
		// check: zero rows means there is nothing this caller may append to.
		owner := ownerParam(p)
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET message_count = message_count + 1, updated_at = ?
			WHERE id = ? AND (? IS NULL OR user_id = ?)
		`, time.Now().UTC().Format(time.RFC3339), msg.ConversationID, owner, owner)
		if err != nil {
			return fmt.Errorf("bumping message count: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, agent_name, sender, body, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.ConversationID,
			msg.AgentName,
			msg.Sender,
			msg.Text,
			msg.Timestamp.UTC().Format(timeFormatNano),
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", msg.ConversationID, "sender", msg.Sender)
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, p access.Principal, conversationID string) ([]*Message, error) {
	// Existence probe first so foreign and missing conversations are
	// indistinguishable from each other and from an empty one they are not.
	owner := ownerParam(p)
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ? AND (? IS NULL OR user_id = ?)`,
		conversationID, owner, owner,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	query := `
		SELECT id, conversation_id, agent_name, sender, body, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteConversation removes a conversation; its messages cascade with it.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, p access.Principal, conversationID string) error {
	owner := ownerParam(p)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND (? IS NULL OR user_id = ?)`,
		conversationID, owner, owner,
	)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted conversation", "id", conversationID)
	return nil
}

// DeleteMessage removes a single message and decrements its conversation's
// message_count in the same transaction. Ownership resolves transitively
// through the conversation.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, p access.Principal, messageID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var conversationID, ownerID string
		err := tx.QueryRowContext(ctx, `
			SELECT m.conversation_id, c.user_id
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.id = ?
		`, messageID).Scan(&conversationID, &ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying message owner: %w", err)
		}

		if !p.CanAccess(ownerID) {
			return ErrNotFound
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
		if err != nil {
			return fmt.Errorf("deleting message: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET message_count = message_count - 1, updated_at = ?
			WHERE id = ?
		`, time.Now().UTC().Format(time.RFC3339), conversationID)
		if err != nil {
			return fmt.Errorf("decrementing message count: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted message", "id", messageID)
	return nil
}

// DeleteAgentConversations bulk-deletes an owner's conversations with one
// agent, returning how many went. Messages cascade. Zero is not an error.
func (s *SQLiteStore) DeleteAgentConversations(ctx context.Context, p access.Principal, ownerID, agentName string) (int64, error) {
	if !p.CanAccess(ownerID) {
		return 0, ErrNotFound
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND agent_name = ?`,
		ownerID, agentName,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting conversations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("deleted agent conversations", "agent", agentName, "user_id", ownerID, "count", rowsAffected)
	}
	return rowsAffected, nil
}

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var conv Conversation
	var createdAtStr, updatedAtStr string

	err := scanner.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.AgentName,
		&conv.Title,
		&conv.MessageCount,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if conv.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var msg Message
	var timestampStr string

	err := scanner.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.AgentName,
		&msg.Sender,
		&msg.Text,
		&timestampStr,
	)
	if err != nil {
		return nil, err
	}

	if msg.Timestamp, err = parseTime(timestampStr); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	return &msg, nil
}
