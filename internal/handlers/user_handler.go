package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/ChatAppBack/internal/models"
)

type userApplicationService interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	Search(ctx context.Context, actorID, query string, page, limit int) ([]models.PublicUser, int, error)
	Contacts(ctx context.Context, actorID string) ([]models.PublicUser, error)
}

type UserHandler struct {
	service userApplicationService
}

func NewUserHandler(service userApplicationService) *UserHandler {
	return &UserHandler{service: service}
}

// SearchUsers matches usernames against ?q=.
func (h *UserHandler) SearchUsers(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	users, total, err := h.service.Search(c.Context(), userID, c.Query("q"), page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"users":      users,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *UserHandler) ListContacts(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contacts, err := h.service.Contacts(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"contacts": contacts})
}

// GetUser returns another user's public profile with the live online flag.
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	if _, err := currentUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	user, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"user": user.Public()})
}
