package services

import (
	"context"
	"strings"

	"github.com/saeid-a/ChatAppBack/internal/models"
)

const MaxSearchResults = 50

type onlineChecker interface {
	IsOnline(userID string) bool
}

type UserService struct {
	users    UserDirectory
	presence onlineChecker
}

func NewUserService(users UserDirectory, presence onlineChecker) *UserService {
	return &UserService{users: users, presence: presence}
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeLookup("get user", err, ErrNotFound)
	}
	user.IsOnline = s.presence.IsOnline(user.ID)
	return user, nil
}

// Search finds other users by username substring.
func (s *UserService) Search(
	ctx context.Context,
	actorID string,
	query string,
	page int,
	limit int,
) ([]models.PublicUser, int, error) {
	query = strings.TrimSpace(query)
	if query == "" || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	if limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	users, total, err := s.users.Search(ctx, query, actorID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, storeFailure("search users", err)
	}
	return s.public(users), total, nil
}

// Contacts lists everyone actorID has exchanged messages with, with the online
// flag taken from the live registry.
func (s *UserService) Contacts(ctx context.Context, actorID string) ([]models.PublicUser, error) {
	contacts, err := s.users.ListContacts(ctx, actorID)
	if err != nil {
		return nil, storeFailure("list contacts", err)
	}
	return s.public(contacts), nil
}

func (s *UserService) public(users []models.User) []models.PublicUser {
	result := make([]models.PublicUser, 0, len(users))
	for _, user := range users {
		user.IsOnline = s.presence.IsOnline(user.ID)
		result = append(result, user.Public())
	}
	return result
}
