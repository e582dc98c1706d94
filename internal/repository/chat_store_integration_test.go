package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestPostgresChatStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	store := NewPostgresChatStore(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID) })

	first, err := store.AppendMessage(ctx, aliceID, bobID, "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	second, err := store.AppendMessage(ctx, bobID, aliceID, "hey")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Fatalf("expected one conversation, got %s and %s", first.ConversationID, second.ConversationID)
	}
	if first.Status != models.StatusSent {
		t.Fatalf("expected sent, got %s", first.Status)
	}

	pending, err := store.ListPending(ctx, bobID)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected the first message pending, got %+v", pending)
	}

	delivered, err := store.AdvanceStatus(ctx, first.ID, models.StatusDelivered)
	if err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	if delivered.Status != models.StatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered with timestamp, got %+v", delivered)
	}
	if _, err := store.AdvanceStatus(ctx, first.ID, models.StatusDelivered); err != ErrStatusUnchanged {
		t.Fatalf("expected ErrStatusUnchanged, got %v", err)
	}

	counts, err := store.CountUnread(ctx, bobID)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if counts[aliceID] != 1 {
		t.Fatalf("expected 1 unread from alice, got %v", counts)
	}

	changed, err := store.MarkConversationSeen(ctx, first.ConversationID, bobID)
	if err != nil {
		t.Fatalf("MarkConversationSeen: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 changed, got %d", changed)
	}

	history, err := store.ListMessages(ctx, first.ConversationID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("unexpected history order: %+v", history)
	}
	if history[0].Status != models.StatusSeen {
		t.Fatalf("expected first message seen, got %s", history[0].Status)
	}

	summaries, err := store.ListConversations(ctx, aliceID)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].PeerID != bobID || summaries[0].UnreadCount != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) string {
	t.Helper()

	suffix := time.Now().UnixNano()
	user := &models.User{
		Username:     fmt.Sprintf("%s-%d", name, suffix),
		Email:        fmt.Sprintf("chat-test-%s-%d@example.com", name, suffix),
		PasswordHash: "test-hash",
	}
	if err := NewUserRepository(pool).CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return user.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			t.Errorf("cleanup user %s: %v", id, err)
		}
	}
}
