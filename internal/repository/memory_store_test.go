package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, store *MemoryStore, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		user := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
		require.NoError(t, store.CreateUser(context.Background(), user))
		ids = append(ids, user.ID)
	}
	return ids
}

func TestMemoryStoreAppendSharesConversationForBothDirections(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "bob")

	first, err := store.AppendMessage(ctx, ids[0], ids[1], "hi")
	require.NoError(t, err)
	second, err := store.AppendMessage(ctx, ids[1], ids[0], "hey")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, models.StatusSent, first.Status)

	conversation, err := store.FindConversation(ctx, models.NewConversationKey(ids[1], ids[0]))
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, conversation.ID)

	history, err := store.ListMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Body)
	assert.Equal(t, "hey", history[1].Body)
}

func TestMemoryStoreAdvanceStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "bob")

	message, err := store.AppendMessage(ctx, ids[0], ids[1], "hi")
	require.NoError(t, err)

	delivered, err := store.AdvanceStatus(ctx, message.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	_, err = store.AdvanceStatus(ctx, message.ID, models.StatusDelivered)
	assert.ErrorIs(t, err, ErrStatusUnchanged)

	seen, err := store.AdvanceStatus(ctx, message.ID, models.StatusSeen)
	require.NoError(t, err)
	assert.NotNil(t, seen.SeenAt)

	_, err = store.AdvanceStatus(ctx, message.ID, models.StatusDelivered)
	assert.ErrorIs(t, err, ErrStatusUnchanged)

	current, err := store.GetMessage(ctx, message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeen, current.Status)
}

func TestMemoryStoreConcurrentAdvanceWinsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "bob")
	message, err := store.AppendMessage(ctx, ids[0], ids[1], "hi")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AdvanceStatus(ctx, message.ID, models.StatusDelivered); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryStorePendingAndUnread(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "bob", "carol")
	alice, bob, carol := ids[0], ids[1], ids[2]

	fromAlice, err := store.AppendMessage(ctx, alice, bob, "one")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, alice, bob, "two")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, carol, bob, "three")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, bob, alice, "reply")
	require.NoError(t, err)

	_, err = store.AdvanceStatus(ctx, fromAlice.ID, models.StatusDelivered)
	require.NoError(t, err)

	pending, err := store.ListPending(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	counts, err := store.CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{alice: 2, carol: 1}, counts)

	changed, err := store.MarkConversationSeen(ctx, fromAlice.ConversationID, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = store.MarkConversationSeen(ctx, fromAlice.ConversationID, bob)
	require.NoError(t, err)
	assert.Zero(t, changed)

	counts, err = store.CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{carol: 1}, counts)

	counts, err = store.CountUnread(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{bob: 1}, counts)
}

func TestMemoryStoreConversationSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "bob")

	_, err := store.AppendMessage(ctx, ids[0], ids[1], "hi")
	require.NoError(t, err)
	last, err := store.AppendMessage(ctx, ids[0], ids[1], "still there?")
	require.NoError(t, err)

	summaries, err := store.ListConversations(ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, ids[0], summaries[0].PeerID)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, last.ID, summaries[0].LastMessage.ID)

	summaries, err = store.ListConversations(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Zero(t, summaries[0].UnreadCount)
}

func TestMemoryStoreUsersAndContacts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedUsers(t, store, "alice", "albert", "bob")

	err := store.CreateUser(ctx, &models.User{Username: "ALICE", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := store.GetByLogin(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, ids[0], found.ID)

	_, err = store.GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	users, total, err := store.Search(ctx, "al", ids[0], 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "albert", users[0].Username)

	require.NoError(t, store.AddContacts(ctx, ids[0], ids[2]))
	require.NoError(t, store.AddContacts(ctx, ids[2], ids[0]))

	contacts, err := store.ListContacts(ctx, ids[2])
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice", contacts[0].Username)

	require.NoError(t, store.PresenceChanged(ctx, ids[0], true, store.now()))
	user, err := store.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, user.IsOnline)
	assert.NotNil(t, user.LastSeen)
}
