// ABOUTME: Tests for the conversation service
// ABOUTME: Covers title derivation, turn ordering, history, scoping, and bulk deletion

package conversation

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/store"
)

func setupTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(st, nil), st
}

func createUser(t *testing.T, st *store.SQLiteStore, email string) *store.User {
	t.Helper()
	user := &store.User{Email: email, PasswordHash: "hash", Verified: true}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func TestService_Start(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	conv, err := svc.Start(ctx, p, "helper", "How do I renew my visa?")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, "helper", conv.AgentName)
	assert.Equal(t, "How do I renew my visa?", conv.Title)
	assert.Equal(t, 1, conv.MessageCount)

	// The first message landed as a user turn
	messages, err := st.ListMessages(ctx, p, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.SenderUser, messages[0].Sender)
	assert.Equal(t, "How do I renew my visa?", messages[0].Text)
	assert.Equal(t, "helper", messages[0].AgentName)
}

func TestService_Start_RequiresAgentName(t *testing.T) {
	svc, st := setupTestService(t)

	alice := createUser(t, st, "alice@example.com")

	_, err := svc.Start(context.Background(), access.User(alice.ID), "", "hello")
	assert.Error(t, err)
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("words and more ", 10) // 150 chars

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short stays whole", "Quick question", "Quick question"},
		{"whitespace trimmed", "  padded out  \n", "padded out"},
		{"long gets cut", long, strings.TrimSpace(long)[:50] + "..."},
		{"exactly at limit", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"empty message", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.input))
		})
	}
}

func TestService_Append_AlternatingTurns(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	conv, err := svc.Start(ctx, p, "helper", "first")
	require.NoError(t, err)

	_, err = svc.Append(ctx, p, conv.ID, store.SenderBot, "second", "helper")
	require.NoError(t, err)
	_, err = svc.Append(ctx, p, conv.ID, store.SenderUser, "third", "helper")
	require.NoError(t, err)

	// message_count tracks the rows
	got, err := svc.Get(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)

	// Creation order
	hist, err := svc.GetHistory(ctx, p, conv.ID)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 3)
	assert.Equal(t, "first", hist.Messages[0].Text)
	assert.Equal(t, "second", hist.Messages[1].Text)
	assert.Equal(t, "third", hist.Messages[2].Text)
	assert.Equal(t, store.SenderUser, hist.Messages[0].Sender)
	assert.Equal(t, store.SenderBot, hist.Messages[1].Sender)
	assert.Equal(t, store.SenderUser, hist.Messages[2].Sender)
}

func TestService_Append_RejectsUnknownSender(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	conv, err := svc.Start(ctx, p, "helper", "hello")
	require.NoError(t, err)

	_, err = svc.Append(ctx, p, conv.ID, "system", "nope", "helper")
	assert.Error(t, err)

	got, err := svc.Get(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
}

func TestService_Append_ForeignConversation(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	bob := createUser(t, st, "bob@example.com")

	conv, err := svc.Start(ctx, access.User(alice.ID), "helper", "hello")
	require.NoError(t, err)

	_, err = svc.Append(ctx, access.User(bob.ID), conv.ID, store.SenderUser, "intruding", "helper")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_GetHistory_Scoping(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	bob := createUser(t, st, "bob@example.com")

	conv, err := svc.Start(ctx, access.User(alice.ID), "helper", "hello")
	require.NoError(t, err)

	_, err = svc.GetHistory(ctx, access.User(bob.ID), conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Admins read across tenants
	hist, err := svc.GetHistory(ctx, access.System(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 1)
}

func TestService_List_FiltersByAgent(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	_, err := svc.Start(ctx, p, "helper", "one")
	require.NoError(t, err)
	_, err = svc.Start(ctx, p, "helper", "two")
	require.NoError(t, err)
	_, err = svc.Start(ctx, p, "researcher", "three")
	require.NoError(t, err)

	all, err := svc.List(ctx, p, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	helper, err := svc.List(ctx, p, "helper")
	require.NoError(t, err)
	assert.Len(t, helper, 2)
	for _, conv := range helper {
		assert.Equal(t, "helper", conv.AgentName)
	}
}

func TestService_Delete(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	conv, err := svc.Start(ctx, p, "helper", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p, conv.ID))

	_, err = svc.Get(ctx, p, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deletion is audited
	entries, err := st.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, store.AuditConversationDeleted, entries[0].Action)
	assert.Equal(t, conv.ID, entries[0].TargetID)
}

func TestService_DeleteMessage(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	conv, err := svc.Start(ctx, p, "helper", "hello")
	require.NoError(t, err)
	msg, err := svc.Append(ctx, p, conv.ID, store.SenderBot, "hi there", "helper")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, p, msg.ID))

	got, err := svc.Get(ctx, p, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
}

func TestService_DeleteAgentConversations(t *testing.T) {
	svc, st := setupTestService(t)
	ctx := context.Background()

	alice := createUser(t, st, "alice@example.com")
	p := access.User(alice.ID)

	_, err := svc.Start(ctx, p, "helper", "one")
	require.NoError(t, err)
	_, err = svc.Start(ctx, p, "helper", "two")
	require.NoError(t, err)
	keep, err := svc.Start(ctx, p, "researcher", "three")
	require.NoError(t, err)

	count, err := svc.DeleteAgentConversations(ctx, p, "helper")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining, err := svc.List(ctx, p, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)

	// Nothing left to delete the second time around
	count, err = svc.DeleteAgentConversations(ctx, p, "helper")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
