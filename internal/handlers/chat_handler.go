package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/services"
	chatws "github.com/saeid-a/ChatAppBack/internal/websocket"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, actorID string) ([]models.ConversationSummary, error)
	History(ctx context.Context, actorID, peerID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, senderID, recipientID, body string) (*models.ChatMessage, error)
	MarkSeen(ctx context.Context, viewerID, peerID string) (int, error)
	Unread(ctx context.Context, userID string) (models.UnreadSummary, error)
	UpdateStatus(ctx context.Context, actorID, messageID string, status models.MessageStatus) (*models.ChatMessage, error)
	Presence() []events.OnlineUser
}

type ChatHandler struct {
	service  chatApplicationService
	hub      *chatws.Hub
	resolver services.SessionResolver
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, resolver services.SessionResolver) *ChatHandler {
	return &ChatHandler{
		service:  service,
		hub:      hub,
		resolver: resolver,
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.ListConversations(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// GetMessages returns the full history with one peer, oldest first.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	peerID := strings.TrimSpace(c.Params("peerId"))
	messages, err := h.service.History(c.Context(), userID, peerID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"peer_id":  peerID,
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *ChatHandler) MarkSeen(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	peerID := strings.TrimSpace(c.Params("peerId"))
	count, err := h.service.MarkSeen(c.Context(), userID, peerID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"peer_id": peerID, "count": count})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.Context(), userID, req.RecipientID, req.Body)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	status, err := models.ParseMessageStatus(req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	message, err := h.service.UpdateStatus(c.Context(), userID, c.Params("id"), status)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) GetUnread(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	summary, err := h.service.Unread(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(summary)
}

func (h *ChatHandler) GetPresence(c *fiber.Ctx) error {
	online := h.service.Presence()
	return c.JSON(fiber.Map{"online": online, "count": len(online)})
}

// WebSocketAuth lets connections without a token through so they can
// authenticate in band. A token that is present must be valid.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	tokenString := wsToken(c)
	if tokenString == "" {
		c.Locals("user_id", "")
		return c.Next()
	}

	userID, err := h.resolver.Resolve(c.Context(), tokenString)
	if err != nil {
		if errors.Is(err, services.ErrStoreUnavailable) {
			return mapChatError(c, err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", userID)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	h.hub.Serve(context.Background(), conn, userID)
}

func wsToken(c *fiber.Ctx) string {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString != "" {
		return tokenString
	}

	authHeader := strings.TrimSpace(c.Get("Authorization"))
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func currentUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", services.ErrUnauthenticated
	}
	return userID, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	code := services.ErrorCode(err)
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required", "code": code})
	case errors.Is(err, services.ErrEmptyBody):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message body is empty", "code": code})
	case errors.Is(err, services.ErrInvalidRecipient):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid recipient", "code": code})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request", "code": code})
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden", "code": code})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found", "code": code})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Conflict", "code": code})
	case errors.Is(err, services.ErrStoreUnavailable):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Storage temporarily unavailable", "code": code})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request", "code": code})
	}
}
