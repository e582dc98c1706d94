package chatws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/saeid-a/ChatAppBack/internal/events"
	"github.com/sirupsen/logrus"
)

var (
	ErrClientClosed = errors.New("websocket client closed")
	ErrSlowConsumer = errors.New("websocket client send buffer full")
)

const sendBufferSize = 64

// sendWait bounds how long a directed event may wait for buffer space before
// the client is treated as stalled.
const sendWait = 5 * time.Second

type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one websocket connection. It implements presence.Handle, so it can
// be bound in the registry as a user's current connection.
type Client struct {
	id         string
	conn       wsConn
	send       chan []byte
	sendWait   time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	reconciled atomic.Bool
}

func NewClient(conn wsConn) *Client {
	return &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		sendWait: sendWait,
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues an event for the write pump, waiting for buffer space while the
// write pump drains. A client that makes no room within sendWait is closed.
func (c *Client) Send(event string, payload any) error {
	encoded, err := events.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- encoded:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendWait)
	defer timer.Stop()
	select {
	case c.send <- encoded:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-timer.C:
		logrus.WithField("connection_id", c.id).Warn("closing stalled websocket client")
		c.Close()
		return ErrSlowConsumer
	}
}

// TrySend queues an event only if there is room, dropping it otherwise. It is
// used for presence snapshots, where a later snapshot supersedes a lost one.
func (c *Client) TrySend(event string, payload any) error {
	encoded, err := events.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- encoded:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// BeginReconcile reports true the first time it is called.
func (c *Client) BeginReconcile() bool {
	return c.reconciled.CompareAndSwap(false, true)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump decodes frames into inbound until the connection fails. It closes
// inbound and calls stop on the way out.
func (c *Client) ReadPump(inbound chan<- events.Envelope, stop func()) {
	defer func() {
		stop()
		close(inbound)
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope events.Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Type == "" {
			_ = c.Send(events.Error, events.ErrorPayload{
				Code:    "INVALID_INPUT",
				Message: "invalid message payload",
			})
			continue
		}

		select {
		case inbound <- envelope:
		case <-c.done:
			return
		}
	}
}

func (c *Client) WritePump() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
