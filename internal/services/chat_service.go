package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/presence"
	"github.com/sirupsen/logrus"
)

// ChatService is the entry point used by the HTTP and websocket layers. It
// wires the message store, dispatcher, reconciler and unread accounting
// around one connection registry.
type ChatService struct {
	store      *MessageStore
	registry   *presence.Registry
	dispatcher *Dispatcher
	reconciler *Reconciler
	unread     *UnreadAccounting
}

func NewChatService(
	backend ChatBackend,
	users UserDirectory,
	registry *presence.Registry,
	settleDelay time.Duration,
) *ChatService {
	store := NewMessageStore(backend)
	unread := NewUnreadAccounting(store, registry)
	return &ChatService{
		store:      store,
		registry:   registry,
		dispatcher: NewDispatcher(store, users, registry, unread),
		reconciler: NewReconciler(store, registry, unread, settleDelay),
		unread:     unread,
	}
}

// Connect binds session as userID's current connection.
func (s *ChatService) Connect(ctx context.Context, userID string, session presence.Handle) error {
	if err := s.registry.Bind(ctx, userID, session); err != nil {
		if errors.Is(err, presence.ErrHandleInUse) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *ChatService) Disconnect(ctx context.Context, userID string, session presence.Handle) {
	s.registry.Unbind(ctx, userID, session)
}

// Reconcile runs the delivery sweep for a freshly bound session.
func (s *ChatService) Reconcile(ctx context.Context, userID string, session ReconcileSession) (int, error) {
	return s.reconciler.Reconcile(ctx, userID, session)
}

func (s *ChatService) KeepAlive(ctx context.Context, userID string) {
	s.registry.Touch(ctx, userID)
}

func (s *ChatService) Presence() []events.OnlineUser {
	return s.registry.Snapshot()
}

func (s *ChatService) ListConversations(ctx context.Context, actorID string) ([]models.ConversationSummary, error) {
	return s.store.Conversations(ctx, actorID)
}

// History returns every message exchanged with peerID, oldest first.
func (s *ChatService) History(ctx context.Context, actorID, peerID string) ([]models.ChatMessage, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" || peerID == actorID {
		return nil, ErrInvalidRecipient
	}
	return s.store.History(ctx, models.NewConversationKey(actorID, peerID))
}

func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID string,
	recipientID string,
	body string,
) (*models.ChatMessage, error) {
	return s.dispatcher.SendMessage(ctx, senderID, recipientID, body)
}

// MarkSeen marks peerID's messages to viewerID as seen and pushes the new
// unread summary to the viewer.
func (s *ChatService) MarkSeen(ctx context.Context, viewerID, peerID string) (int, error) {
	count, err := s.unread.MarkSeen(ctx, viewerID, peerID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.unread.Push(ctx, viewerID)
	}
	return count, nil
}

func (s *ChatService) Unread(ctx context.Context, userID string) (models.UnreadSummary, error) {
	return s.unread.Summary(ctx, userID)
}

// UpdateStatus applies an explicit status change requested by the message's
// recipient. A repeated or backward move returns the current record unchanged.
func (s *ChatService) UpdateStatus(
	ctx context.Context,
	actorID string,
	messageID string,
	status models.MessageStatus,
) (*models.ChatMessage, error) {
	if strings.TrimSpace(messageID) == "" || status == models.StatusSent {
		return nil, ErrInvalidInput
	}

	message, err := s.store.Transition(ctx, messageID, status, actorID)
	if errors.Is(err, ErrInvalidTransition) {
		return message, nil
	}
	if err != nil {
		return nil, err
	}

	payload := events.StatusChangedFor(message, actorID)
	for _, userID := range []string{message.SenderID, message.RecipientID} {
		handle, ok := s.registry.Lookup(userID)
		if !ok {
			continue
		}
		if err := handle.Send(events.StatusChanged, payload); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Debug("status notification dropped")
		}
	}
	s.unread.Push(ctx, actorID)

	return message, nil
}
