package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

const conversationColumns = `id::text, participant_low::text, participant_high::text, created_at, updated_at`

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateOrGet returns the single conversation for key, creating it on first use.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	key models.ConversationKey,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (id, participant_low, participant_high)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_low, participant_high)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, uuid.NewString(), key.Low, key.High).Scan(
		&conversation.ID,
		&conversation.ParticipantLow,
		&conversation.ParticipantHigh,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err, "create conversation")
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByKey(
	ctx context.Context,
	key models.ConversationKey,
) (*models.Conversation, error) {
	if !validUUIDs(key.Low, key.High) {
		return nil, ErrNotFound
	}
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_low = $1 AND participant_high = $2
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, key.Low, key.High).Scan(
		&conversation.ID,
		&conversation.ParticipantLow,
		&conversation.ParticipantHigh,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err, "get conversation")
	}

	return &conversation, nil
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id::text,
			c.participant_low::text,
			c.participant_high::text,
			c.created_at,
			c.updated_at,
			lm.id::text,
			lm.conversation_id::text,
			lm.sender_id::text,
			lm.recipient_id::text,
			lm.body,
			lm.status,
			lm.created_at,
			lm.delivered_at,
			lm.seen_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT id, conversation_id, sender_id, recipient_id, body, status, created_at, delivered_at, seen_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, seq DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND recipient_id = $1
			  AND status < 2
		) uc ON TRUE
		WHERE c.participant_low = $1 OR c.participant_high = $1
		ORDER BY COALESCE(lm.created_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, wrapErr(err, "list conversations")
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullString
		var messageConversationID sql.NullString
		var messageSenderID sql.NullString
		var messageRecipientID sql.NullString
		var messageBody sql.NullString
		var messageStatus sql.NullInt16
		var messageCreatedAt sql.NullTime
		var messageDeliveredAt sql.NullTime
		var messageSeenAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.ParticipantLow,
			&summary.ParticipantHigh,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageConversationID,
			&messageSenderID,
			&messageRecipientID,
			&messageBody,
			&messageStatus,
			&messageCreatedAt,
			&messageDeliveredAt,
			&messageSeenAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, wrapErr(err, "scan conversation")
		}

		summary.PeerID = summary.Key().Peer(participantID)
		if messageID.Valid {
			summary.LastMessage = &models.ChatMessage{
				ID:             messageID.String,
				ConversationID: messageConversationID.String,
				SenderID:       messageSenderID.String,
				RecipientID:    messageRecipientID.String,
				Body:           messageBody.String,
				Status:         models.MessageStatus(messageStatus.Int16),
				CreatedAt:      messageCreatedAt.Time,
			}
			if messageDeliveredAt.Valid {
				summary.LastMessage.DeliveredAt = &messageDeliveredAt.Time
			}
			if messageSeenAt.Valid {
				summary.LastMessage.SeenAt = &messageSeenAt.Time
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, "list conversations")
	}

	return summaries, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET updated_at = NOW()
		WHERE id = $1
	`, conversationID)
	return wrapErr(err, "touch conversation")
}

func validUUIDs(values ...string) bool {
	for _, value := range values {
		if _, err := uuid.Parse(value); err != nil {
			return false
		}
	}
	return true
}
