package services

import (
	"context"
	"strings"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/presence"
	"github.com/sirupsen/logrus"
)

type connectionLookup interface {
	Lookup(userID string) (presence.Handle, bool)
}

// UnreadAccounting derives unread counts from the message store on every call.
// Nothing here caches counts between mutations.
type UnreadAccounting struct {
	store       *MessageStore
	connections connectionLookup
}

func NewUnreadAccounting(store *MessageStore, connections connectionLookup) *UnreadAccounting {
	return &UnreadAccounting{store: store, connections: connections}
}

func (u *UnreadAccounting) Summary(ctx context.Context, userID string) (models.UnreadSummary, error) {
	counts, err := u.store.UnreadBySender(ctx, userID)
	if err != nil {
		return models.UnreadSummary{}, err
	}

	summary := models.UnreadSummary{PerPeer: make(map[string]int, len(counts))}
	for peerID, count := range counts {
		if count == 0 {
			continue
		}
		summary.PerPeer[peerID] = count
		summary.Total += count
	}
	return summary, nil
}

// MarkSeen marks everything peerID sent to viewerID as seen and tells peerID
// about it when it changed anything.
func (u *UnreadAccounting) MarkSeen(ctx context.Context, viewerID, peerID string) (int, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" || peerID == viewerID {
		return 0, ErrInvalidRecipient
	}

	batch, err := u.store.BulkSeen(ctx, models.NewConversationKey(viewerID, peerID), viewerID)
	if err != nil {
		return 0, err
	}
	if batch.Count == 0 {
		return 0, nil
	}

	if handle, ok := u.connections.Lookup(peerID); ok {
		payload := events.SeenBatchPayload{
			PeerID:         viewerID,
			ConversationID: batch.ConversationID,
			Count:          batch.Count,
		}
		if err := handle.Send(events.SeenBatch, payload); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": peerID,
				"peer_id": viewerID,
			}).Debug("seen batch notification dropped")
		}
	}
	return batch.Count, nil
}

// Push sends a freshly computed summary to userID's current connection.
func (u *UnreadAccounting) Push(ctx context.Context, userID string) {
	handle, ok := u.connections.Lookup(userID)
	if !ok {
		return
	}
	u.PushTo(ctx, userID, handle)
}

func (u *UnreadAccounting) PushTo(ctx context.Context, userID string, handle presence.Handle) {
	summary, err := u.Summary(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("unread summary failed")
		return
	}
	if err := handle.Send(events.UnreadSummary, summary); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("unread summary dropped")
	}
}
