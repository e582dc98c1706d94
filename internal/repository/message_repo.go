package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

const messageColumns = `id::text, conversation_id::text, sender_id::text, recipient_id::text, body, status, created_at, delivered_at, seen_at`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func scanMessage(row pgx.Row, message *models.ChatMessage) error {
	var status int16
	if err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.RecipientID,
		&message.Body,
		&status,
		&message.CreatedAt,
		&message.DeliveredAt,
		&message.SeenAt,
	); err != nil {
		return err
	}
	message.Status = models.MessageStatus(status)
	return nil
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID string,
	senderID string,
	recipientID string,
	body string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, body, status)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING ` + messageColumns

	var message models.ChatMessage
	err := scanMessage(r.db.QueryRow(ctx, query, uuid.NewString(), conversationID, senderID, recipientID, body), &message)
	if err != nil {
		return nil, wrapErr(err, "create message")
	}

	return &message, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*models.ChatMessage, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, ErrNotFound
	}
	var message models.ChatMessage
	err := scanMessage(r.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, messageID), &message)
	if err != nil {
		return nil, wrapErr(err, "get message")
	}
	return &message, nil
}

// AdvanceStatus moves a message to status only if its current status is
// lower. It returns ErrStatusUnchanged when the compare-and-set loses.
func (r *MessageRepository) AdvanceStatus(
	ctx context.Context,
	messageID string,
	status models.MessageStatus,
) (*models.ChatMessage, error) {
	query := `
		UPDATE messages
		SET status = $2,
		    delivered_at = COALESCE(delivered_at, NOW()),
		    seen_at = CASE WHEN $2 = 2 THEN COALESCE(seen_at, NOW()) ELSE seen_at END
		WHERE id = $1 AND status < $2
		RETURNING ` + messageColumns

	var message models.ChatMessage
	err := scanMessage(r.db.QueryRow(ctx, query, messageID, int16(status)), &message)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStatusUnchanged
	}
	if err != nil {
		return nil, wrapErr(err, "advance message status")
	}
	return &message, nil
}

// MarkConversationSeen moves every unseen message addressed to viewerID in the
// conversation to seen and returns how many changed.
func (r *MessageRepository) MarkConversationSeen(
	ctx context.Context,
	conversationID string,
	viewerID string,
) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET status = 2,
		    delivered_at = COALESCE(delivered_at, NOW()),
		    seen_at = NOW()
		WHERE conversation_id = $1
		  AND recipient_id = $2
		  AND status < 2
	`, conversationID, viewerID)
	if err != nil {
		return 0, wrapErr(err, "mark conversation seen")
	}
	return int(tag.RowsAffected()), nil
}

func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
) ([]models.ChatMessage, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, conversationID)
}

// ListPendingForRecipient is served by the (recipient_id, status) index.
func (r *MessageRepository) ListPendingForRecipient(
	ctx context.Context,
	recipientID string,
) ([]models.ChatMessage, error) {
	if _, err := uuid.Parse(recipientID); err != nil {
		return []models.ChatMessage{}, nil
	}
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE recipient_id = $1 AND status = 0
		ORDER BY created_at ASC, seq ASC
	`, recipientID)
}

func (r *MessageRepository) CountUnreadBySender(ctx context.Context, recipientID string) (map[string]int, error) {
	counts := make(map[string]int)
	if _, err := uuid.Parse(recipientID); err != nil {
		return counts, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT sender_id::text, COUNT(*)
		FROM messages
		WHERE recipient_id = $1 AND status < 2
		GROUP BY sender_id
	`, recipientID)
	if err != nil {
		return nil, wrapErr(err, "count unread")
	}
	defer rows.Close()

	for rows.Next() {
		var senderID string
		var count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, wrapErr(err, "scan unread count")
		}
		counts[senderID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "count unread")
	}
	return counts, nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]models.ChatMessage, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, "list messages")
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := scanMessage(rows, &message); err != nil {
			return nil, wrapErr(err, "scan message")
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "list messages")
	}

	return messages, nil
}
