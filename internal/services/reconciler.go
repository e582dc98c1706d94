package services

import (
	"context"
	"errors"
	"time"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/presence"
	"github.com/sirupsen/logrus"
)

const DefaultSettleDelay = 100 * time.Millisecond

// ReconcileSession is a live connection that remembers whether its sweep has
// already run. BeginReconcile returns true exactly once per connection.
type ReconcileSession interface {
	presence.Handle
	BeginReconcile() bool
}

// Reconciler promotes a newly connected user's pending messages to delivered.
type Reconciler struct {
	store       *MessageStore
	connections connectionLookup
	unread      *UnreadAccounting
	settle      time.Duration
}

func NewReconciler(
	store *MessageStore,
	connections connectionLookup,
	unread *UnreadAccounting,
	settle time.Duration,
) *Reconciler {
	if settle < 0 {
		settle = 0
	}
	return &Reconciler{
		store:       store,
		connections: connections,
		unread:      unread,
		settle:      settle,
	}
}

type notification struct {
	target  presence.Handle
	event   string
	payload any
}

// Reconcile runs the sweep for session at most once and returns how many
// messages it promoted. Transitions already committed are never undone when
// ctx is cancelled mid-sweep.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, session ReconcileSession) (int, error) {
	if !session.BeginReconcile() {
		return 0, nil
	}

	if r.settle > 0 {
		timer := time.NewTimer(r.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	ctx = context.WithoutCancel(ctx)

	log := logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"connection_id": session.ID(),
	})

	pending, err := r.store.PendingFor(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("reconcile sweep could not list pending messages")
		return 0, err
	}

	delivered := make([]*models.ChatMessage, 0, len(pending))
	for _, message := range pending {
		updated, err := r.store.Transition(ctx, message.ID, models.StatusDelivered, userID)
		if err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				log.WithError(err).WithField("message_id", message.ID).Warn("reconcile skipped message")
			}
			continue
		}
		delivered = append(delivered, updated)
	}
	if len(delivered) == 0 {
		return 0, nil
	}

	outbox := r.plan(userID, session, delivered)
	for _, n := range outbox {
		if err := n.target.Send(n.event, n.payload); err != nil {
			log.WithError(err).WithField("event", n.event).Debug("reconcile notification dropped")
		}
	}
	r.unread.PushTo(ctx, userID, session)

	log.WithField("count", len(delivered)).Info("pending messages delivered")
	return len(delivered), nil
}

// plan builds every notification for the sweep before any is sent, grouped by
// conversation in first-seen order.
func (r *Reconciler) plan(
	userID string,
	session ReconcileSession,
	delivered []*models.ChatMessage,
) []notification {
	order := make([]string, 0)
	groups := make(map[string][]*models.ChatMessage)
	for _, message := range delivered {
		if _, ok := groups[message.ConversationID]; !ok {
			order = append(order, message.ConversationID)
		}
		groups[message.ConversationID] = append(groups[message.ConversationID], message)
	}

	outbox := make([]notification, 0, 2*len(delivered)+1)
	for _, conversationID := range order {
		for _, message := range groups[conversationID] {
			payload := events.StatusChangedFor(message, userID)
			if sender, ok := r.connections.Lookup(message.SenderID); ok {
				outbox = append(outbox, notification{target: sender, event: events.StatusChanged, payload: payload})
			}
			outbox = append(outbox, notification{target: session, event: events.StatusChanged, payload: payload})
		}
	}
	outbox = append(outbox, notification{
		target:  session,
		event:   events.DeliveredBatch,
		payload: events.DeliveredBatchPayload{Count: len(delivered)},
	})
	return outbox
}
