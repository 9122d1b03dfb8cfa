// ABOUTME: Tests for conversation and message persistence
// ABOUTME: Covers message_count maintenance, ordering, scoping, and cascades

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/grimoire/internal/access"
)

func TestStore_CreateConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	conv := &Conversation{
		UserID:       alice.ID,
		AgentName:    "helper",
		Title:        "What is a monad?",
		MessageCount: 42, // ignored: a new conversation has no messages
	}
	require.NoError(t, store.CreateConversation(ctx, p, conv))
	require.NotEmpty(t, conv.ID)

	got, err := store.GetConversation(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "helper", got.AgentName)
	assert.Equal(t, "What is a monad?", got.Title)
	assert.Equal(t, 0, got.MessageCount)
}

func TestStore_AppendMessage_OrderAndCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, p, conv))

	turns := []struct {
		sender string
		text   string
	}{
		{SenderUser, "hello"},
		{SenderBot, "hi there"},
		{SenderUser, "tell me more"},
	}
	for _, turn := range turns {
		msg := &Message{
			ConversationID: conv.ID,
			AgentName:      "helper",
			Sender:         turn.sender,
			Text:           turn.text,
		}
		require.NoError(t, store.AppendMessage(ctx, p, msg))
	}

	got, err := store.GetConversation(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)

	messages, err := store.ListMessages(ctx, p, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, turn := range turns {
		assert.Equal(t, turn.sender, messages[i].Sender)
		assert.Equal(t, turn.text, messages[i].Text)
	}
	// Creation order holds even for appends within the same wall-clock second.
	assert.True(t, !messages[1].Timestamp.Before(messages[0].Timestamp))
	assert.True(t, !messages[2].Timestamp.Before(messages[1].Timestamp))
}

func TestStore_AppendMessage_MissingConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")

	msg := &Message{ConversationID: "nonexistent", Sender: SenderUser, Text: "hi"}
	err := store.AppendMessage(ctx, access.User(alice.ID), msg)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendMessage_ForeignConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	bob := createTestUser(t, store, "bob@example.com")

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, access.User(alice.ID), conv))

	msg := &Message{ConversationID: conv.ID, Sender: SenderUser, Text: "intruding"}
	err := store.AppendMessage(ctx, access.User(bob.ID), msg)
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing was written.
	got, err := store.GetConversation(ctx, access.User(alice.ID), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestStore_DeleteMessage_DecrementsCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, p, conv))

	ids := make([]string, 0, 3)
	for _, text := range []string{"one", "two", "three"} {
		msg := &Message{ConversationID: conv.ID, Sender: SenderUser, Text: text}
		require.NoError(t, store.AppendMessage(ctx, p, msg))
		ids = append(ids, msg.ID)
	}

	require.NoError(t, store.DeleteMessage(ctx, p, ids[1]))

	got, err := store.GetConversation(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)

	messages, err := store.ListMessages(ctx, p, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "one", messages[0].Text)
	assert.Equal(t, "three", messages[1].Text)
}

func TestStore_DeleteMessage_Scoping(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	bob := createTestUser(t, store, "bob@example.com")
	p := access.User(alice.ID)

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, p, conv))
	msg := &Message{ConversationID: conv.ID, Sender: SenderUser, Text: "keep out"}
	require.NoError(t, store.AppendMessage(ctx, p, msg))

	// Ownership resolves through the conversation: Bob cannot delete.
	err := store.DeleteMessage(ctx, access.User(bob.ID), msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetConversation(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)

	// An admin can.
	require.NoError(t, store.DeleteMessage(ctx, access.System(), msg.ID))
	got, err = store.GetConversation(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)

	assert.ErrorIs(t, store.DeleteMessage(ctx, p, "nonexistent"), ErrNotFound)
}

func TestStore_DeleteConversation_CascadesMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, p, conv))
	for i := 0; i < 3; i++ {
		msg := &Message{ConversationID: conv.ID, Sender: SenderBot, Text: "reply"}
		require.NoError(t, store.AppendMessage(ctx, p, msg))
	}

	require.NoError(t, store.DeleteConversation(ctx, p, conv.ID))

	_, err := store.GetConversation(ctx, p, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ListMessages(ctx, p, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, store.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conv.ID,
	).Scan(&orphans))
	assert.Equal(t, 0, orphans)
}

func TestStore_Conversations_OwnerScoping(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	bob := createTestUser(t, store, "bob@example.com")

	conv := &Conversation{UserID: alice.ID, AgentName: "helper"}
	require.NoError(t, store.CreateConversation(ctx, access.User(alice.ID), conv))

	_, err := store.GetConversation(ctx, access.User(bob.ID), conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ListMessages(ctx, access.User(bob.ID), conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	err = store.DeleteConversation(ctx, access.User(bob.ID), conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ListConversations(ctx, access.User(bob.ID), alice.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// Admin bypass.
	got, err := store.GetConversation(ctx, access.System(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	all, err := store.ListConversations(ctx, access.System(), alice.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListConversations_AgentFilter(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	for _, agentName := range []string{"helper", "helper", "critic"} {
		conv := &Conversation{UserID: alice.ID, AgentName: agentName}
		require.NoError(t, store.CreateConversation(ctx, p, conv))
	}

	all, err := store.ListConversations(ctx, p, alice.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	helperOnly, err := store.ListConversations(ctx, p, alice.ID, "helper")
	require.NoError(t, err)
	require.Len(t, helperOnly, 2)
	for _, conv := range helperOnly {
		assert.Equal(t, "helper", conv.AgentName)
	}
}

func TestStore_DeleteAgentConversations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice@example.com")
	p := access.User(alice.ID)

	var helperConvs []string
	for _, agentName := range []string{"helper", "helper", "critic"} {
		conv := &Conversation{UserID: alice.ID, AgentName: agentName}
		require.NoError(t, store.CreateConversation(ctx, p, conv))
		if agentName == "helper" {
			msg := &Message{ConversationID: conv.ID, Sender: SenderUser, Text: "hi"}
			require.NoError(t, store.AppendMessage(ctx, p, msg))
			helperConvs = append(helperConvs, conv.ID)
		}
	}

	deleted, err := store.DeleteAgentConversations(ctx, p, alice.ID, "helper")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.ListConversations(ctx, p, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "critic", remaining[0].AgentName)

	// Their messages cascaded too.
	for _, id := range helperConvs {
		var orphans int
		require.NoError(t, store.db.QueryRow(
			`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id,
		).Scan(&orphans))
		assert.Equal(t, 0, orphans)
	}

	// Deleting where nothing matches reports zero, not an error.
	deleted, err = store.DeleteAgentConversations(ctx, p, alice.ID, "helper")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
