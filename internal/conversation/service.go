// ABOUTME: Conversation service: starting threads, appending turns, history
// ABOUTME: Titles derive from the first message; agents are referenced by name only

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/store"
)

// titleLimit is how many characters of the first message become the title.
const titleLimit = 50

// Store defines what the conversation service needs from storage
type Store interface {
	CreateConversation(ctx context.Context, p access.Principal, conv *store.Conversation) error
	GetConversation(ctx context.Context, p access.Principal, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, p access.Principal, ownerID, agentName string) ([]*store.Conversation, error)
	AppendMessage(ctx context.Context, p access.Principal, msg *store.Message) error
	ListMessages(ctx context.Context, p access.Principal, conversationID string) ([]*store.Message, error)
	DeleteConversation(ctx context.Context, p access.Principal, conversationID string) error
	DeleteMessage(ctx context.Context, p access.Principal, messageID string) error
	DeleteAgentConversations(ctx context.Context, p access.Principal, ownerID, agentName string) (int64, error)

	AppendAuditLog(ctx context.Context, entry *store.AuditEntry) error
}

// Service manages conversations and their messages on top of the store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a conversation service.
func New(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// History is a conversation together with its messages in creation order.
type History struct {
	Conversation *store.Conversation
	Messages     []*store.Message
}

// Start creates a conversation with agentName owned by the principal and
// appends firstMessage as the opening user turn. The title derives from the
// first message. The agent is referenced by name only; it need not exist.
func (s *Service) Start(ctx context.Context, p access.Principal, agentName, firstMessage string) (*store.Conversation, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("principal has no user id")
	}
	if agentName == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	conv := &store.Conversation{
		UserID:    p.UserID,
		AgentName: agentName,
		Title:     deriveTitle(firstMessage),
	}
	if err := s.store.CreateConversation(ctx, p, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	msg := &store.Message{
		ConversationID: conv.ID,
		AgentName:      agentName,
		Sender:         store.SenderUser,
		Text:           firstMessage,
	}
	if err := s.store.AppendMessage(ctx, p, msg); err != nil {
		return nil, fmt.Errorf("appending first message: %w", err)
	}
	conv.MessageCount = 1

	s.logger.Debug("started conversation", "id", conv.ID, "agent", agentName, "user_id", p.UserID)
	return conv, nil
}

// Append records one turn. sender must be "user" or "bot"; agentName is the
// agent context the turn was produced under.
func (s *Service) Append(ctx context.Context, p access.Principal, conversationID, sender, text, agentName string) (*store.Message, error) {
	if sender != store.SenderUser && sender != store.SenderBot {
		return nil, fmt.Errorf("invalid sender %q", sender)
	}

	msg := &store.Message{
		ConversationID: conversationID,
		AgentName:      agentName,
		Sender:         sender,
		Text:           text,
	}
	if err := s.store.AppendMessage(ctx, p, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// Get returns one conversation.
func (s *Service) Get(ctx context.Context, p access.Principal, conversationID string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, p, conversationID)
}

// List returns the principal's conversations, most recently active first.
// A non-empty agentName narrows the list to that agent's threads.
func (s *Service) List(ctx context.Context, p access.Principal, agentName string) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, p, p.UserID, agentName)
}

// GetHistory returns a conversation and its messages in creation order.
func (s *Service) GetHistory(ctx context.Context, p access.Principal, conversationID string) (*History, error) {
	conv, err := s.store.GetConversation(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, p, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	return &History{Conversation: conv, Messages: messages}, nil
}

// Delete removes a conversation and all its messages.
func (s *Service) Delete(ctx context.Context, p access.Principal, conversationID string) error {
	if err := s.store.DeleteConversation(ctx, p, conversationID); err != nil {
		return err
	}

	s.audit(p.UserID, store.AuditConversationDeleted, "conversation", conversationID, nil)
	s.logger.Info("deleted conversation", "id", conversationID, "actor", p.UserID)
	return nil
}

// DeleteMessage removes a single turn; the conversation's message count
// moves with it.
func (s *Service) DeleteMessage(ctx context.Context, p access.Principal, messageID string) error {
	return s.store.DeleteMessage(ctx, p, messageID)
}

// DeleteAgentConversations removes every thread the principal has with one
// agent and returns how many went. Used when an agent is being retired.
func (s *Service) DeleteAgentConversations(ctx context.Context, p access.Principal, agentName string) (int64, error) {
	count, err := s.store.DeleteAgentConversations(ctx, p, p.UserID, agentName)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.audit(p.UserID, store.AuditConversationDeleted, "agent", agentName, map[string]any{"count": count})
		s.logger.Info("deleted agent conversations", "agent", agentName, "count", count)
	}
	return count, nil
}

// deriveTitle turns the first message into a conversation title: trimmed,
// capped at titleLimit characters, "..." marking the cut.
func deriveTitle(firstMessage string) string {
	title := []rune(strings.TrimSpace(firstMessage))
	if len(title) <= titleLimit {
		return string(title)
	}
	return string(title[:titleLimit]) + "..."
}

// audit appends a best-effort audit entry after the primary write committed.
func (s *Service) audit(actorID string, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &store.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.store.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry", "action", string(action), "error", err)
	}
}
