package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageStatus is the delivery state of a message. The numeric order is the
// lifecycle order, so a transition is valid only when it strictly increases.
type MessageStatus int16

const (
	StatusSent MessageStatus = iota
	StatusDelivered
	StatusSeen
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	default:
		return fmt.Sprintf("status(%d)", int16(s))
	}
}

func (s MessageStatus) Valid() bool {
	return s >= StatusSent && s <= StatusSeen
}

// Before reports whether next is strictly forward of s.
func (s MessageStatus) Before(next MessageStatus) bool {
	return s < next
}

func ParseMessageStatus(value string) (MessageStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "seen":
		return StatusSeen, nil
	default:
		return 0, fmt.Errorf("unknown message status %q", value)
	}
}

func (s MessageStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid message status %d", int16(s))
	}
	return []byte(s.String()), nil
}

func (s *MessageStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConversationKey is the canonical form of an unordered participant pair.
type ConversationKey struct {
	Low  string
	High string
}

func NewConversationKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

func (k ConversationKey) Has(userID string) bool {
	return userID != "" && (k.Low == userID || k.High == userID)
}

// Peer returns the other participant, or "" when self is not part of the pair.
func (k ConversationKey) Peer(self string) string {
	switch self {
	case k.Low:
		return k.High
	case k.High:
		return k.Low
	default:
		return ""
	}
}

func (k ConversationKey) String() string {
	return k.Low + ":" + k.High
}

type Conversation struct {
	ID              string    `json:"id"`
	ParticipantLow  string    `json:"participant_low"`
	ParticipantHigh string    `json:"participant_high"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c Conversation) Key() ConversationKey {
	return ConversationKey{Low: c.ParticipantLow, High: c.ParticipantHigh}
}

type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	RecipientID    string        `json:"recipient_id"`
	Body           string        `json:"body"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	SeenAt         *time.Time    `json:"seen_at,omitempty"`
}

// Unread reports whether the message still counts against its recipient.
func (m ChatMessage) Unread() bool {
	return m.Status != StatusSeen
}

type ConversationSummary struct {
	Conversation
	PeerID      string       `json:"peer_id"`
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

type UnreadSummary struct {
	Total   int            `json:"total"`
	PerPeer map[string]int `json:"per_peer"`
}
