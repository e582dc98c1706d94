package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandle struct {
	id string

	mu     sync.Mutex
	events []string
	last   any
	fail   bool
}

func newHandle(id string) *recordingHandle {
	return &recordingHandle{id: id}
}

func (h *recordingHandle) ID() string { return h.id }

func (h *recordingHandle) Send(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("connection closed")
	}
	h.events = append(h.events, event)
	h.last = payload
	return nil
}

func (h *recordingHandle) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

type observerCall struct {
	userID string
	online bool
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observerCall
	err   error
}

func (o *recordingObserver) PresenceChanged(_ context.Context, userID string, online bool, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observerCall{userID: userID, online: online})
	return o.err
}

func TestBindAndLookup(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{}
	registry := NewRegistry(observer)
	conn := newHandle("c1")

	require.NoError(t, registry.Bind(ctx, "alice", conn))

	got, ok := registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())
	assert.True(t, registry.IsOnline("alice"))
	assert.False(t, registry.IsOnline("bob"))
	assert.Equal(t, []observerCall{{userID: "alice", online: true}}, observer.calls)
	assert.Equal(t, []string{events.PresenceChanged}, conn.received())
}

func TestLaterBindSupersedesEarlierHandle(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	first := newHandle("c1")
	second := newHandle("c2")

	require.NoError(t, registry.Bind(ctx, "alice", first))
	require.NoError(t, registry.Bind(ctx, "alice", second))

	got, ok := registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
	assert.Len(t, registry.Snapshot(), 1)
}

func TestStaleUnbindDoesNotEvictNewerHandle(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	stale := newHandle("c1")
	fresh := newHandle("c2")

	require.NoError(t, registry.Bind(ctx, "alice", stale))
	require.NoError(t, registry.Bind(ctx, "alice", fresh))

	assert.False(t, registry.Unbind(ctx, "alice", stale))
	got, ok := registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())

	assert.True(t, registry.Unbind(ctx, "alice", fresh))
	assert.False(t, registry.IsOnline("alice"))
}

func TestHandleCannotBeSharedAcrossIdentities(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	conn := newHandle("c1")

	require.NoError(t, registry.Bind(ctx, "alice", conn))
	err := registry.Bind(ctx, "bob", conn)

	assert.ErrorIs(t, err, ErrHandleInUse)
	assert.False(t, registry.IsOnline("bob"))
}

func TestBindAndUnbindBroadcastSnapshot(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	alice := newHandle("ca")
	bob := newHandle("cb")

	require.NoError(t, registry.Bind(ctx, "alice", alice))
	require.NoError(t, registry.Bind(ctx, "bob", bob))

	payload, ok := alice.last.(events.PresencePayload)
	require.True(t, ok)
	require.Len(t, payload.Online, 2)
	assert.Equal(t, "alice", payload.Online[0].UserID)
	assert.Equal(t, "bob", payload.Online[1].UserID)

	require.True(t, registry.Unbind(ctx, "bob", bob))
	payload, ok = alice.last.(events.PresencePayload)
	require.True(t, ok)
	require.Len(t, payload.Online, 1)
	assert.Equal(t, "alice", payload.Online[0].UserID)
	assert.Len(t, bob.received(), 1)
}

func TestBroadcastFailureAndObserverFailureAreNotFatal(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(&recordingObserver{err: errors.New("db down")})
	dead := newHandle("dead")
	dead.fail = true

	require.NoError(t, registry.Bind(ctx, "alice", dead))
	require.NoError(t, registry.Bind(ctx, "bob", newHandle("cb")))
	assert.True(t, registry.IsOnline("alice"))
	assert.True(t, registry.IsOnline("bob"))
}

func TestConcurrentBindKeepsOneHandlePerIdentity(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()

	var wg sync.WaitGroup
	handles := make([]*recordingHandle, 50)
	for i := range handles {
		handles[i] = newHandle(fmt.Sprintf("c%d", i))
	}
	for _, handle := range handles {
		wg.Add(1)
		go func(h *recordingHandle) {
			defer wg.Done()
			assert.NoError(t, registry.Bind(ctx, "alice", h))
			registry.Unbind(ctx, "alice", h)
			assert.NoError(t, registry.Bind(ctx, "alice", h))
		}(handle)
	}
	wg.Wait()

	current, ok := registry.Lookup("alice")
	require.True(t, ok)
	assert.Len(t, registry.Snapshot(), 1)

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	assert.Equal(t, map[string]string{current.ID(): "alice"}, registry.owners)
}

// lastStateObserver keeps the most recent state per user and stalls on
// offline events so a racing bind can overtake it.
type lastStateObserver struct {
	offlineDelay time.Duration

	mu     sync.Mutex
	online map[string]bool
}

func (o *lastStateObserver) PresenceChanged(_ context.Context, userID string, online bool, _ time.Time) error {
	if !online {
		time.Sleep(o.offlineDelay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.online[userID] = online
	return nil
}

func (o *lastStateObserver) state(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online[userID]
}

func TestObserverEndsInRegistryStateWhenUnbindRacesBind(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		observer := &lastStateObserver{offlineDelay: 5 * time.Millisecond, online: make(map[string]bool)}
		registry := NewRegistry(observer)
		first := newHandle(fmt.Sprintf("first-%d", i))
		second := newHandle(fmt.Sprintf("second-%d", i))
		require.NoError(t, registry.Bind(ctx, "alice", first))

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			registry.Unbind(ctx, "alice", first)
		}()
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, registry.Bind(ctx, "alice", second))
		}()
		close(start)
		wg.Wait()

		require.True(t, registry.IsOnline("alice"))
		assert.True(t, observer.state("alice"), "observer saw a stale offline event in round %d", i)
	}
}

func TestPresenceSnapshotsCarryIncreasingVersions(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	watcher := newHandle("cw")
	bob := newHandle("cb")

	require.NoError(t, registry.Bind(ctx, "watcher", watcher))
	versions := make([]uint64, 0, 3)
	record := func() {
		payload, ok := watcher.last.(events.PresencePayload)
		require.True(t, ok)
		versions = append(versions, payload.Version)
	}

	record()
	require.NoError(t, registry.Bind(ctx, "bob", bob))
	record()
	require.True(t, registry.Unbind(ctx, "bob", bob))
	record()

	assert.Equal(t, []uint64{1, 2, 3}, versions)

	assert.False(t, registry.Unbind(ctx, "bob", bob))
	record()
	assert.Equal(t, uint64(3), versions[3])
}

type lossyHandle struct {
	*recordingHandle
	full bool
}

func (h *lossyHandle) TrySend(event string, payload any) error {
	if h.full {
		return errors.New("buffer full")
	}
	return h.recordingHandle.Send(event, payload)
}

func (h *lossyHandle) Send(event string, payload any) error {
	if event == events.PresenceChanged {
		panic("presence snapshots must use TrySend")
	}
	return h.recordingHandle.Send(event, payload)
}

func TestBroadcastDropsSnapshotForFullBestEffortHandle(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	alice := &lossyHandle{recordingHandle: newHandle("ca"), full: true}

	require.NoError(t, registry.Bind(ctx, "alice", alice))
	require.NoError(t, registry.Bind(ctx, "bob", newHandle("cb")))

	assert.Empty(t, alice.received())
	assert.True(t, registry.IsOnline("alice"))
}
