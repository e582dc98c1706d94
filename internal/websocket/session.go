package chatws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/services"
	"github.com/sirupsen/logrus"
)

// session routes one connection's events in arrival order. It is only touched
// by the goroutine running Hub.Serve.
type session struct {
	hub    *Hub
	client *Client
	userID string
}

func newSession(hub *Hub, client *Client) *session {
	return &session{hub: hub, client: client}
}

func (s *session) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"connection_id": s.client.ID(),
		"user_id":       s.userID,
	})
}

func (s *session) bind(ctx context.Context, userID string) error {
	if err := s.hub.chat.Connect(ctx, userID, s.client); err != nil {
		return err
	}
	s.userID = userID
	s.reply(events.Authenticated, events.AuthenticatedPayload{UserID: userID})
	s.log().Info("websocket session authenticated")

	if _, err := s.hub.chat.Reconcile(ctx, userID, s.client); err != nil && !errors.Is(err, context.Canceled) {
		s.log().WithError(err).Warn("reconcile sweep failed")
	}
	return nil
}

func (s *session) close() {
	if s.userID == "" {
		return
	}
	s.hub.chat.Disconnect(context.Background(), s.userID, s.client)
	s.log().Info("websocket session closed")
}

func (s *session) handle(ctx context.Context, envelope events.Envelope) {
	switch envelope.Type {
	case events.Ping:
		if s.userID != "" {
			s.hub.chat.KeepAlive(ctx, s.userID)
		}
		s.reply(events.Pong, struct{}{})
		return
	case events.Authenticate:
		s.authenticate(ctx, envelope)
		return
	}

	if s.userID == "" {
		s.fail(envelope.Type, services.ErrUnauthenticated)
		return
	}

	var err error
	switch envelope.Type {
	case events.SendMessage:
		err = s.sendMessage(ctx, envelope)
	case events.MarkSeen:
		err = s.markSeen(ctx, envelope)
	case events.GetHistory:
		err = s.history(ctx, envelope)
	case events.GetUnread:
		err = s.unread(ctx)
	case events.UpdateStatus:
		err = s.updateStatus(ctx, envelope)
	case events.GetContacts:
		err = s.contacts(ctx)
	case events.SearchUsers:
		err = s.searchUsers(ctx, envelope)
	default:
		s.reply(events.Error, events.ErrorPayload{
			Code:    services.ErrorCode(services.ErrInvalidInput),
			Message: "unsupported event",
			Request: envelope.Type,
		})
		return
	}
	if err != nil {
		s.fail(envelope.Type, err)
	}
}

func (s *session) authenticate(ctx context.Context, envelope events.Envelope) {
	var req events.AuthenticateRequest
	if err := decode(envelope, &req); err != nil {
		s.fail(envelope.Type, err)
		return
	}

	userID, err := s.hub.resolver.Resolve(ctx, req.Token)
	if err != nil {
		s.fail(envelope.Type, err)
		return
	}
	if s.userID != "" {
		if userID != s.userID {
			s.fail(envelope.Type, services.ErrConflict)
			return
		}
		s.reply(events.Authenticated, events.AuthenticatedPayload{UserID: userID})
		return
	}

	if err := s.bind(ctx, userID); err != nil {
		s.fail(envelope.Type, err)
	}
}

func (s *session) sendMessage(ctx context.Context, envelope events.Envelope) error {
	var req events.SendMessageRequest
	if err := decode(envelope, &req); err != nil {
		return err
	}
	message, err := s.hub.chat.SendMessage(ctx, s.userID, req.RecipientID, req.Body)
	if err != nil {
		return err
	}
	s.reply(events.MessageAck, message)
	return nil
}

func (s *session) markSeen(ctx context.Context, envelope events.Envelope) error {
	var req events.PeerRequest
	if err := decode(envelope, &req); err != nil {
		return err
	}
	count, err := s.hub.chat.MarkSeen(ctx, s.userID, req.PeerID)
	if err != nil {
		return err
	}
	s.reply(events.SeenAck, events.SeenAckPayload{PeerID: req.PeerID, Count: count})
	return nil
}

func (s *session) history(ctx context.Context, envelope events.Envelope) error {
	var req events.PeerRequest
	if err := decode(envelope, &req); err != nil {
		return err
	}
	messages, err := s.hub.chat.History(ctx, s.userID, req.PeerID)
	if err != nil {
		return err
	}
	s.reply(events.History, events.HistoryPayload{
		PeerID:   req.PeerID,
		Messages: messages,
		Count:    len(messages),
	})
	return nil
}

func (s *session) unread(ctx context.Context) error {
	summary, err := s.hub.chat.Unread(ctx, s.userID)
	if err != nil {
		return err
	}
	s.reply(events.UnreadSummary, summary)
	return nil
}

func (s *session) updateStatus(ctx context.Context, envelope events.Envelope) error {
	var req events.UpdateStatusRequest
	if err := decode(envelope, &req); err != nil {
		return err
	}
	status, err := models.ParseMessageStatus(req.Status)
	if err != nil {
		return services.ErrInvalidInput
	}
	message, err := s.hub.chat.UpdateStatus(ctx, s.userID, req.MessageID, status)
	if err != nil {
		return err
	}
	s.reply(events.StatusAck, message)
	return nil
}

func (s *session) contacts(ctx context.Context) error {
	contacts, err := s.hub.users.Contacts(ctx, s.userID)
	if err != nil {
		return err
	}
	s.reply(events.Contacts, events.ContactsPayload{Contacts: contacts})
	return nil
}

func (s *session) searchUsers(ctx context.Context, envelope events.Envelope) error {
	var req events.SearchUsersRequest
	if err := decode(envelope, &req); err != nil {
		return err
	}
	users, _, err := s.hub.users.Search(ctx, s.userID, req.Query, 1, services.MaxSearchResults)
	if err != nil {
		return err
	}
	s.reply(events.Users, events.UsersPayload{Users: users, Count: len(users)})
	return nil
}

func (s *session) reply(event string, payload any) {
	if err := s.client.Send(event, payload); err != nil {
		s.log().WithError(err).WithField("event", event).Debug("reply dropped")
	}
}

// fail reports err to this connection only.
func (s *session) fail(request string, err error) {
	entry := s.log().WithError(err).WithField("request", request)
	if services.ErrorCode(err) == "INTERNAL" || services.Retryable(err) {
		entry.Error("websocket request failed")
	} else {
		entry.Debug("websocket request rejected")
	}

	s.reply(events.Error, events.ErrorPayload{
		Code:    services.ErrorCode(err),
		Message: errorMessage(err),
		Request: request,
	})
}

func decode(envelope events.Envelope, target any) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return services.ErrInvalidInput
	}
	return nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return "authentication required"
	case errors.Is(err, services.ErrInvalidRecipient):
		return "recipient not found"
	case errors.Is(err, services.ErrEmptyBody):
		return "message body is empty"
	case errors.Is(err, services.ErrUnauthorized):
		return "not allowed"
	case errors.Is(err, services.ErrStoreUnavailable):
		return "storage temporarily unavailable, retry"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid request"
	case errors.Is(err, services.ErrNotFound):
		return "not found"
	case errors.Is(err, services.ErrConflict):
		return "connection already bound to another user"
	default:
		return "failed to process request"
	}
}
