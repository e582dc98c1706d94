// Package presence tracks which identities currently hold a live connection.
//
// The Registry binds at most one current handle per identity. A later bind
// supersedes the earlier handle for delivery purposes without closing it, and
// an unbind only takes effect when it names the handle that is still bound, so
// a late disconnect from a superseded connection cannot evict a newer one.
package presence

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/sirupsen/logrus"
)

var ErrHandleInUse = errors.New("connection handle is bound to another identity")

// Handle is one live transport session.
type Handle interface {
	ID() string
	Send(event string, payload any) error
}

// BestEffort is implemented by handles that can drop a frame instead of
// waiting for room. Presence snapshots are sent through it when available.
type BestEffort interface {
	TrySend(event string, payload any) error
}

// Observer is told about every successful bind and unbind, after the
// in-memory table has been updated.
type Observer interface {
	PresenceChanged(ctx context.Context, userID string, online bool, at time.Time) error
}

// Refresher is implemented by observers that keep a time-bounded copy of
// presence and need periodic renewal while a connection stays up.
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

type binding struct {
	handle Handle
	since  time.Time
}

const identityStripes = 64

type Registry struct {
	mu        sync.RWMutex
	byUser    map[string]binding
	owners    map[string]string
	version   uint64
	observers []Observer
	now       func() time.Time

	// An identity's stripe is held from the table update until its observers
	// and broadcast have run, so they see that identity's changes in order.
	identities [identityStripes]sync.Mutex
}

func NewRegistry(observers ...Observer) *Registry {
	return &Registry{
		byUser:    make(map[string]binding),
		owners:    make(map[string]string),
		observers: observers,
		now:       time.Now,
	}
}

// Bind makes handle the current connection for userID, replacing any previous
// one, and broadcasts the new online snapshot.
func (r *Registry) Bind(ctx context.Context, userID string, handle Handle) error {
	unlock := r.lockIdentity(userID)
	defer unlock()
	at := r.now().UTC()

	r.mu.Lock()
	if owner, ok := r.owners[handle.ID()]; ok && owner != userID {
		r.mu.Unlock()
		return ErrHandleInUse
	}
	if previous, ok := r.byUser[userID]; ok && previous.handle.ID() != handle.ID() {
		delete(r.owners, previous.handle.ID())
	}
	r.byUser[userID] = binding{handle: handle, since: at}
	r.owners[handle.ID()] = userID
	payload, targets := r.changedLocked()
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"connection_id": handle.ID(),
	}).Debug("presence bound")

	r.notifyObservers(ctx, userID, true, at)
	broadcast(payload, targets)
	return nil
}

// Unbind clears userID's binding only if handle is still the bound one. It
// reports whether anything changed.
func (r *Registry) Unbind(ctx context.Context, userID string, handle Handle) bool {
	unlock := r.lockIdentity(userID)
	defer unlock()
	at := r.now().UTC()

	r.mu.Lock()
	current, ok := r.byUser[userID]
	if !ok || current.handle.ID() != handle.ID() {
		if r.owners[handle.ID()] == userID {
			delete(r.owners, handle.ID())
		}
		r.mu.Unlock()
		return false
	}
	delete(r.byUser, userID)
	delete(r.owners, handle.ID())
	payload, targets := r.changedLocked()
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"connection_id": handle.ID(),
	}).Debug("presence unbound")

	r.notifyObservers(ctx, userID, false, at)
	broadcast(payload, targets)
	return true
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return current.handle, true
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Snapshot returns the online identities ordered by user id.
func (r *Registry) Snapshot() []events.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, _ := r.snapshotLocked()
	return snapshot
}

// Touch renews time-bounded presence copies for a user that is still bound.
func (r *Registry) Touch(ctx context.Context, userID string) {
	if !r.IsOnline(userID) {
		return
	}
	for _, observer := range r.observers {
		refresher, ok := observer.(Refresher)
		if !ok {
			continue
		}
		if err := refresher.Refresh(ctx, userID); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("presence refresh failed")
		}
	}
}

func (r *Registry) lockIdentity(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	stripe := &r.identities[h.Sum32()%identityStripes]
	stripe.Lock()
	return stripe.Unlock
}

// changedLocked bumps the snapshot version after a table change.
func (r *Registry) changedLocked() (events.PresencePayload, []Handle) {
	r.version++
	snapshot, targets := r.snapshotLocked()
	return events.PresencePayload{Version: r.version, Online: snapshot}, targets
}

func (r *Registry) snapshotLocked() ([]events.OnlineUser, []Handle) {
	snapshot := make([]events.OnlineUser, 0, len(r.byUser))
	targets := make([]Handle, 0, len(r.byUser))
	for userID, current := range r.byUser {
		snapshot = append(snapshot, events.OnlineUser{UserID: userID, Since: current.since})
		targets = append(targets, current.handle)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].UserID < snapshot[j].UserID
	})
	return snapshot, targets
}

func (r *Registry) notifyObservers(ctx context.Context, userID string, online bool, at time.Time) {
	for _, observer := range r.observers {
		if err := observer.PresenceChanged(ctx, userID, online, at); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"online":  online,
			}).Warn("presence observer failed")
		}
	}
}

func broadcast(payload events.PresencePayload, targets []Handle) {
	for _, target := range targets {
		var err error
		if lossy, ok := target.(BestEffort); ok {
			err = lossy.TrySend(events.PresenceChanged, payload)
		} else {
			err = target.Send(events.PresenceChanged, payload)
		}
		if err != nil {
			logrus.WithError(err).WithField("connection_id", target.ID()).Debug("presence broadcast skipped")
		}
	}
}
