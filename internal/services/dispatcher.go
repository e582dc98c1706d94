package services

import (
	"context"
	"errors"
	"strings"

	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/sirupsen/logrus"
)

// Dispatcher stores new messages and hands them to the recipient's live
// connection when there is one. Offline recipients pick them up from the
// next reconciliation sweep.
type Dispatcher struct {
	store       *MessageStore
	users       UserDirectory
	connections connectionLookup
	unread      *UnreadAccounting
}

func NewDispatcher(
	store *MessageStore,
	users UserDirectory,
	connections connectionLookup,
	unread *UnreadAccounting,
) *Dispatcher {
	return &Dispatcher{
		store:       store,
		users:       users,
		connections: connections,
		unread:      unread,
	}
}

// SendMessage returns the stored message with its resolved status, which is
// delivered when the recipient was online and sent otherwise.
func (d *Dispatcher) SendMessage(
	ctx context.Context,
	senderID string,
	recipientID string,
	body string,
) (*models.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" || recipientID == senderID {
		return nil, ErrInvalidRecipient
	}
	exists, err := d.users.Exists(ctx, recipientID)
	if err != nil {
		return nil, storeFailure("check recipient", err)
	}
	if !exists {
		return nil, ErrInvalidRecipient
	}

	message, err := d.store.Append(ctx, senderID, recipientID, body)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"message_id":   message.ID,
		"sender_id":    senderID,
		"recipient_id": recipientID,
	})

	if err := d.users.AddContacts(ctx, senderID, recipientID); err != nil {
		log.WithError(err).Warn("contact association failed")
	}

	recipient, online := d.connections.Lookup(recipientID)
	if !online {
		log.Debug("recipient offline, message left pending")
		return message, nil
	}

	delivered, err := d.store.Transition(ctx, message.ID, models.StatusDelivered, recipientID)
	switch {
	case err == nil:
		message = delivered
	case errors.Is(err, ErrInvalidTransition):
		// A sweep on the recipient's new connection got there first.
		message = delivered
	default:
		log.WithError(err).Warn("inline delivery failed, message left pending")
		return message, nil
	}

	if err := recipient.Send(events.MessageCreated, message); err != nil {
		log.WithError(err).Debug("message push to recipient dropped")
	}
	if sender, ok := d.connections.Lookup(senderID); ok {
		if err := sender.Send(events.StatusChanged, events.StatusChangedFor(message, recipientID)); err != nil {
			log.WithError(err).Debug("delivery notice to sender dropped")
		}
	}
	d.unread.PushTo(ctx, recipientID, recipient)

	return message, nil
}
