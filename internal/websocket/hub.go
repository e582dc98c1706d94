package chatws

import (
	"context"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/presence"
	"github.com/saeid-a/ChatAppBack/internal/services"
	"github.com/sirupsen/logrus"
)

const inboundBufferSize = 16

type chatService interface {
	Connect(ctx context.Context, userID string, session presence.Handle) error
	Disconnect(ctx context.Context, userID string, session presence.Handle)
	Reconcile(ctx context.Context, userID string, session services.ReconcileSession) (int, error)
	KeepAlive(ctx context.Context, userID string)
	SendMessage(ctx context.Context, senderID, recipientID, body string) (*models.ChatMessage, error)
	MarkSeen(ctx context.Context, viewerID, peerID string) (int, error)
	History(ctx context.Context, actorID, peerID string) ([]models.ChatMessage, error)
	Unread(ctx context.Context, userID string) (models.UnreadSummary, error)
	UpdateStatus(ctx context.Context, actorID, messageID string, status models.MessageStatus) (*models.ChatMessage, error)
}

type userService interface {
	Search(ctx context.Context, actorID, query string, page, limit int) ([]models.PublicUser, int, error)
	Contacts(ctx context.Context, actorID string) ([]models.PublicUser, error)
}

// Hub owns every open websocket connection, authenticated or not, so they can
// all be closed on shutdown. Presence is tracked separately by the registry
// behind chatService.
type Hub struct {
	chat     chatService
	users    userService
	resolver services.SessionResolver

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
}

func NewHub(chat chatService, users userService, resolver services.SessionResolver) *Hub {
	return &Hub{
		chat:       chat,
		users:      users,
		resolver:   resolver,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run tracks open clients until ctx is cancelled, then closes them all.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			delete(h.clients, client)
		case <-ctx.Done():
			logrus.WithField("connections", len(h.clients)).Info("closing websocket connections")
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]struct{})
			return
		}
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Serve runs one connection until it closes. userID is empty when the
// connection upgraded without a credential; it may authenticate in band.
func (h *Hub) Serve(parent context.Context, conn wsConn, userID string) {
	client := NewClient(conn)
	if !h.Register(client) {
		client.Close()
		return
	}
	defer func() {
		client.Close()
		h.Unregister(client)
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	inbound := make(chan events.Envelope, inboundBufferSize)
	go client.WritePump()
	go client.ReadPump(inbound, cancel)

	session := newSession(h, client)
	defer session.close()

	if userID != "" {
		if err := session.bind(ctx, userID); err != nil {
			session.fail("", err)
			return
		}
	}

	for envelope := range inbound {
		session.handle(ctx, envelope)
	}
}
