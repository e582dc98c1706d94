package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresChatStore persists conversations and messages in PostgreSQL.
type PostgresChatStore struct {
	db               TxBeginner
	conversationRepo *ConversationRepository
	messageRepo      *MessageRepository
}

func NewPostgresChatStore(db TxBeginner) *PostgresChatStore {
	return &PostgresChatStore{
		db:               db,
		conversationRepo: NewConversationRepository(db),
		messageRepo:      NewMessageRepository(db),
	}
}

// AppendMessage creates the conversation for the pair if needed and appends a
// message with status sent, in one transaction.
func (s *PostgresChatStore) AppendMessage(
	ctx context.Context,
	senderID string,
	recipientID string,
	body string,
) (*models.ChatMessage, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr(err, "begin append")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := NewConversationRepository(tx)
	txMessageRepo := NewMessageRepository(tx)

	conversation, err := txConversationRepo.CreateOrGet(ctx, models.NewConversationKey(senderID, recipientID))
	if err != nil {
		return nil, err
	}

	message, err := txMessageRepo.Create(ctx, conversation.ID, senderID, recipientID, body)
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.Touch(ctx, conversation.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr(err, "commit append")
	}

	return message, nil
}

func (s *PostgresChatStore) GetMessage(ctx context.Context, messageID string) (*models.ChatMessage, error) {
	return s.messageRepo.GetByID(ctx, messageID)
}

func (s *PostgresChatStore) AdvanceStatus(
	ctx context.Context,
	messageID string,
	status models.MessageStatus,
) (*models.ChatMessage, error) {
	return s.messageRepo.AdvanceStatus(ctx, messageID, status)
}

func (s *PostgresChatStore) FindConversation(
	ctx context.Context,
	key models.ConversationKey,
) (*models.Conversation, error) {
	return s.conversationRepo.GetByKey(ctx, key)
}

func (s *PostgresChatStore) MarkConversationSeen(
	ctx context.Context,
	conversationID string,
	viewerID string,
) (int, error) {
	return s.messageRepo.MarkConversationSeen(ctx, conversationID, viewerID)
}

func (s *PostgresChatStore) ListMessages(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	return s.messageRepo.ListByConversation(ctx, conversationID)
}

func (s *PostgresChatStore) ListPending(ctx context.Context, recipientID string) ([]models.ChatMessage, error) {
	return s.messageRepo.ListPendingForRecipient(ctx, recipientID)
}

func (s *PostgresChatStore) CountUnread(ctx context.Context, recipientID string) (map[string]int, error) {
	return s.messageRepo.CountUnreadBySender(ctx, recipientID)
}

func (s *PostgresChatStore) ListConversations(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	if !validUUIDs(participantID) {
		return []models.ConversationSummary{}, nil
	}
	return s.conversationRepo.ListForParticipant(ctx, participantID)
}
