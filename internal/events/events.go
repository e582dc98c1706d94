// Package events defines the names and payloads exchanged with clients over a
// live connection.
package events

import (
	"encoding/json"
	"time"

	"github.com/saeid-a/ChatAppBack/internal/models"
)

// Outbound events.
const (
	MessageCreated  = "messageCreated"
	MessageAck      = "messageAck"
	StatusChanged   = "statusChanged"
	SeenBatch       = "seenBatch"
	DeliveredBatch  = "deliveredBatch"
	PresenceChanged = "presenceChanged"
	UnreadSummary   = "unreadSummary"
	Authenticated   = "authenticated"
	History         = "history"
	Contacts        = "contacts"
	Users           = "users"
	SeenAck         = "seenAck"
	StatusAck       = "statusAck"
	Pong            = "pong"
	Error           = "error"
)

// Inbound events.
const (
	Authenticate = "authenticate"
	SendMessage  = "sendMessage"
	MarkSeen     = "markSeen"
	GetHistory   = "getHistory"
	GetUnread    = "getUnread"
	UpdateStatus = "updateStatus"
	GetContacts  = "getContacts"
	SearchUsers  = "searchUsers"
	Ping         = "ping"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Data: data})
}

type StatusChangedPayload struct {
	ConversationID string               `json:"conversation_id"`
	MessageID      string               `json:"message_id"`
	Status         models.MessageStatus `json:"status"`
	UpdatedBy      string               `json:"updated_by"`
	Message        *models.ChatMessage  `json:"message,omitempty"`
}

func StatusChangedFor(message *models.ChatMessage, updatedBy string) StatusChangedPayload {
	return StatusChangedPayload{
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		Status:         message.Status,
		UpdatedBy:      updatedBy,
		Message:        message,
	}
}

// SeenBatchPayload tells a sender that PeerID has read Count of its messages.
type SeenBatchPayload struct {
	PeerID         string `json:"peer_id"`
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}

type DeliveredBatchPayload struct {
	Count int `json:"count"`
}

type OnlineUser struct {
	UserID string    `json:"user_id"`
	Since  time.Time `json:"since"`
}

// PresencePayload is a full online snapshot. Version grows with every change,
// so a client keeps the snapshot with the highest version it has seen.
type PresencePayload struct {
	Version uint64       `json:"version"`
	Online  []OnlineUser `json:"online"`
}

type AuthenticatedPayload struct {
	UserID string `json:"user_id"`
}

type HistoryPayload struct {
	PeerID   string               `json:"peer_id"`
	Messages []models.ChatMessage `json:"messages"`
	Count    int                  `json:"count"`
}

type ContactsPayload struct {
	Contacts []models.PublicUser `json:"contacts"`
}

type UsersPayload struct {
	Users []models.PublicUser `json:"users"`
	Count int                 `json:"count"`
}

type SeenAckPayload struct {
	PeerID string `json:"peer_id"`
	Count  int    `json:"count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

type AuthenticateRequest struct {
	Token string `json:"token"`
}

type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

type PeerRequest struct {
	PeerID string `json:"peer_id"`
}

type UpdateStatusRequest struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type SearchUsersRequest struct {
	Query string `json:"query"`
}
