package services

import (
	"context"
	"errors"

	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/repository"
	"github.com/sirupsen/logrus"
)

// ChatBackend is the durable store behind MessageStore. AdvanceStatus must be
// an atomic compare-and-set that only moves status forward and reports
// repository.ErrStatusUnchanged otherwise.
type ChatBackend interface {
	AppendMessage(ctx context.Context, senderID, recipientID, body string) (*models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID string) (*models.ChatMessage, error)
	AdvanceStatus(ctx context.Context, messageID string, status models.MessageStatus) (*models.ChatMessage, error)
	FindConversation(ctx context.Context, key models.ConversationKey) (*models.Conversation, error)
	MarkConversationSeen(ctx context.Context, conversationID, viewerID string) (int, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	ListPending(ctx context.Context, recipientID string) ([]models.ChatMessage, error)
	CountUnread(ctx context.Context, recipientID string) (map[string]int, error)
	ListConversations(ctx context.Context, participantID string) ([]models.ConversationSummary, error)
}

// UserDirectory resolves identities and the contact list.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, query, excludeID string, limit, offset int) ([]models.User, int, error)
	AddContacts(ctx context.Context, a, b string) error
	ListContacts(ctx context.Context, userID string) ([]models.User, error)
}

// SeenBatch is the result of marking one conversation seen.
type SeenBatch struct {
	ConversationID string
	Count          int
}

// MessageStore owns the message status machine on top of a ChatBackend.
type MessageStore struct {
	backend ChatBackend
}

func NewMessageStore(backend ChatBackend) *MessageStore {
	return &MessageStore{backend: backend}
}

// Append stores a new message with status sent, creating the conversation for
// the pair on first use.
func (s *MessageStore) Append(ctx context.Context, senderID, recipientID, body string) (*models.ChatMessage, error) {
	message, err := s.backend.AppendMessage(ctx, senderID, recipientID, body)
	if err != nil {
		return nil, storeFailure("append message", err)
	}
	return message, nil
}

// Transition moves a message addressed to actorID forward to status. A move
// that is not strictly forward returns the current record together with
// ErrInvalidTransition.
func (s *MessageStore) Transition(
	ctx context.Context,
	messageID string,
	status models.MessageStatus,
	actorID string,
) (*models.ChatMessage, error) {
	if !status.Valid() {
		return nil, ErrInvalidInput
	}

	current, err := s.backend.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeLookup("get message", err, ErrNotFound)
	}
	if current.RecipientID != actorID {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"actor_id":   actorID,
			"status":     status.String(),
		}).Warn("status change rejected for non-recipient")
		return nil, ErrUnauthorized
	}
	if !current.Status.Before(status) {
		return current, ErrInvalidTransition
	}

	updated, err := s.backend.AdvanceStatus(ctx, messageID, status)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, repository.ErrStatusUnchanged) {
		return nil, storeFailure("advance status", err)
	}

	// Lost the compare-and-set to a concurrent transition.
	latest, err := s.backend.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeLookup("get message", err, ErrNotFound)
	}
	return latest, ErrInvalidTransition
}

// BulkSeen marks every unseen message addressed to viewerID in the pair's
// conversation as seen. A pair with no conversation yet yields zero.
func (s *MessageStore) BulkSeen(ctx context.Context, key models.ConversationKey, viewerID string) (SeenBatch, error) {
	if !key.Has(viewerID) {
		return SeenBatch{}, ErrUnauthorized
	}

	conversation, err := s.backend.FindConversation(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SeenBatch{}, nil
		}
		return SeenBatch{}, storeFailure("find conversation", err)
	}

	count, err := s.backend.MarkConversationSeen(ctx, conversation.ID, viewerID)
	if err != nil {
		return SeenBatch{}, storeFailure("mark conversation seen", err)
	}
	return SeenBatch{ConversationID: conversation.ID, Count: count}, nil
}

// PendingFor lists every message addressed to recipientID still at sent.
func (s *MessageStore) PendingFor(ctx context.Context, recipientID string) ([]models.ChatMessage, error) {
	pending, err := s.backend.ListPending(ctx, recipientID)
	if err != nil {
		return nil, storeFailure("list pending", err)
	}
	return pending, nil
}

// History returns the pair's messages oldest first. It is unbounded.
func (s *MessageStore) History(ctx context.Context, key models.ConversationKey) ([]models.ChatMessage, error) {
	conversation, err := s.backend.FindConversation(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []models.ChatMessage{}, nil
		}
		return nil, storeFailure("find conversation", err)
	}

	messages, err := s.backend.ListMessages(ctx, conversation.ID)
	if err != nil {
		return nil, storeFailure("list messages", err)
	}
	return messages, nil
}

func (s *MessageStore) UnreadBySender(ctx context.Context, recipientID string) (map[string]int, error) {
	counts, err := s.backend.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, storeFailure("count unread", err)
	}
	return counts, nil
}

func (s *MessageStore) Conversations(ctx context.Context, participantID string) ([]models.ConversationSummary, error) {
	summaries, err := s.backend.ListConversations(ctx, participantID)
	if err != nil {
		return nil, storeFailure("list conversations", err)
	}
	return summaries, nil
}
