package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

// MemoryStore keeps users, conversations and messages in process memory. It
// serves STORE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	contacts      map[string]map[string]struct{}
	conversations map[models.ConversationKey]models.Conversation
	messages      map[string][]models.ChatMessage
	messageIndex  map[string]messageRef
	now           func() time.Time
}

type messageRef struct {
	conversationID string
	position       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		contacts:      make(map[string]map[string]struct{}),
		conversations: make(map[models.ConversationKey]models.Conversation),
		messages:      make(map[string][]models.ChatMessage),
		messageIndex:  make(map[string]messageRef),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, user.Username) || strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetByLogin(_ context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Username == login || user.Email == strings.ToLower(login) {
			copied := user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *MemoryStore) Search(
	_ context.Context,
	query string,
	excludeID string,
	limit int,
	offset int,
) ([]models.User, int, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	matched := make([]models.User, 0)
	for _, user := range s.users {
		if user.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), needle) {
			matched = append(matched, user)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Username < matched[j].Username
	})
	total := len(matched)
	if offset >= total {
		return []models.User{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) PresenceChanged(_ context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	user.IsOnline = online
	lastSeen := at
	user.LastSeen = &lastSeen
	user.UpdatedAt = s.now()
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) AddContacts(_ context.Context, a string, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addContactLocked(a, b)
	s.addContactLocked(b, a)
	return nil
}

func (s *MemoryStore) addContactLocked(owner string, contact string) {
	set, ok := s.contacts[owner]
	if !ok {
		set = make(map[string]struct{})
		s.contacts[owner] = set
	}
	set[contact] = struct{}{}
}

func (s *MemoryStore) ListContacts(_ context.Context, userID string) ([]models.User, error) {
	s.mu.RLock()
	contacts := make([]models.User, 0, len(s.contacts[userID]))
	for contactID := range s.contacts[userID] {
		if user, ok := s.users[contactID]; ok {
			contacts = append(contacts, user)
		}
	}
	s.mu.RUnlock()

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].Username < contacts[j].Username
	})
	return contacts, nil
}

func (s *MemoryStore) AppendMessage(
	_ context.Context,
	senderID string,
	recipientID string,
	body string,
) (*models.ChatMessage, error) {
	key := models.NewConversationKey(senderID, recipientID)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[key]
	if !ok {
		conversation = models.Conversation{
			ID:              uuid.NewString(),
			ParticipantLow:  key.Low,
			ParticipantHigh: key.High,
			CreatedAt:       now,
		}
	}
	conversation.UpdatedAt = now
	s.conversations[key] = conversation

	message := models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           body,
		Status:         models.StatusSent,
		CreatedAt:      now,
	}
	s.messageIndex[message.ID] = messageRef{
		conversationID: conversation.ID,
		position:       len(s.messages[conversation.ID]),
	}
	s.messages[conversation.ID] = append(s.messages[conversation.ID], message)

	return &message, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.messageIndex[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	message := s.messages[ref.conversationID][ref.position]
	return &message, nil
}

// AdvanceStatus applies the same compare-and-set rule as the SQL store.
func (s *MemoryStore) AdvanceStatus(
	_ context.Context,
	messageID string,
	status models.MessageStatus,
) (*models.ChatMessage, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.messageIndex[messageID]
	if !ok {
		return nil, ErrStatusUnchanged
	}
	message := &s.messages[ref.conversationID][ref.position]
	if !message.Status.Before(status) {
		return nil, ErrStatusUnchanged
	}
	applyStatus(message, status, now)
	copied := *message
	return &copied, nil
}

func (s *MemoryStore) FindConversation(
	_ context.Context,
	key models.ConversationKey,
) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.conversations[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &conversation, nil
}

func (s *MemoryStore) MarkConversationSeen(
	_ context.Context,
	conversationID string,
	viewerID string,
) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	messages := s.messages[conversationID]
	for i := range messages {
		if messages[i].RecipientID != viewerID || !messages[i].Unread() {
			continue
		}
		applyStatus(&messages[i], models.StatusSeen, now)
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[conversationID]
	copied := make([]models.ChatMessage, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) ListPending(_ context.Context, recipientID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	pending := make([]models.ChatMessage, 0)
	for _, messages := range s.messages {
		for _, message := range messages {
			if message.RecipientID == recipientID && message.Status == models.StatusSent {
				pending = append(pending, message)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, recipientID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, messages := range s.messages {
		for _, message := range messages {
			if message.RecipientID == recipientID && message.Unread() {
				counts[message.SenderID]++
			}
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListConversations(
	_ context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	summaries := make([]models.ConversationSummary, 0)
	for key, conversation := range s.conversations {
		if !key.Has(participantID) {
			continue
		}
		summary := models.ConversationSummary{
			Conversation: conversation,
			PeerID:       key.Peer(participantID),
		}
		messages := s.messages[conversation.ID]
		if len(messages) > 0 {
			last := messages[len(messages)-1]
			summary.LastMessage = &last
		}
		for _, message := range messages {
			if message.RecipientID == participantID && message.Unread() {
				summary.UnreadCount++
			}
		}
		summaries = append(summaries, summary)
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

func applyStatus(message *models.ChatMessage, status models.MessageStatus, at time.Time) {
	message.Status = status
	if message.DeliveredAt == nil {
		deliveredAt := at
		message.DeliveredAt = &deliveredAt
	}
	if status == models.StatusSeen && message.SeenAt == nil {
		seenAt := at
		message.SeenAt = &seenAt
	}
}
