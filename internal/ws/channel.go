// Package ws maintains the push connection to the backend: at most one live
// websocket per client, typed subscriptions, automatic reconnection while a
// valid credential exists. It owns no business data; it is pure notification
// plumbing.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"govorilka/internal/models"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay = time.Second

	handshakeTimeout   = 10 * time.Second
	subscriptionBuffer = 64
)

var ErrUnknownTopic = errors.New("unknown topic")

// Topic is the fixed enumeration of notification streams.
type Topic string

const (
	TopicUser    Topic = "user"
	TopicChat    Topic = "chat"
	TopicMessage Topic = "message"
)

// topicForType dispatches a notification type to exactly one topic by the
// entity prefix convention.
func topicForType(t string) (Topic, bool) {
	switch t {
	case models.NotifyUserCreate,
		models.NotifyUserUpdate,
		models.NotifyUserDelete,
		models.NotifyUserAvatarUpdate,
		models.NotifyUserStatusChange:
		return TopicUser, true
	case models.NotifyChatCreate,
		models.NotifyChatUpdate,
		models.NotifyChatDelete:
		return TopicChat, true
	case models.NotifyMessageCreate,
		models.NotifyMessageUpdate,
		models.NotifyMessageDelete:
		return TopicMessage, true
	}
	return "", false
}

// Subscription is a handle to one topic stream. Each Subscribe call returns
// a distinct handle, so the same consumer can never be registered twice.
type Subscription struct {
	topic Topic
	ch    chan models.Notification
}

// Notifications returns the stream of notifications for the subscribed
// topic. The channel is closed by Unsubscribe.
func (s *Subscription) Notifications() <-chan models.Notification {
	return s.ch
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

type wsConn interface {
	Close() error
	ReadMessage() (int, []byte, error)
}

type dialFunc func(ctx context.Context, url string, subprotocols []string) (wsConn, error)

// TokenSource provides the credential token carried in the connection
// handshake. An error means no valid, non-expired credential exists.
type TokenSource interface {
	Token() (string, error)
}

// Channel delivers a best-effort, order-preserving stream of change
// notifications to subscribed listeners, re-establishing connectivity
// transparently.
type Channel struct {
	url            string
	tokens         TokenSource
	reconnectDelay time.Duration
	dial           dialFunc

	mu             sync.Mutex
	conn           wsConn
	gen            int
	reconnectTimer *time.Timer
	subs           map[Topic][]*Subscription
}

func NewChannel(url string, tokens TokenSource, reconnectDelay time.Duration) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Channel{
		url:            url,
		tokens:         tokens,
		reconnectDelay: reconnectDelay,
		dial:           gorillaDial,
		subs:           make(map[Topic][]*Subscription),
	}
}

func gorillaDial(ctx context.Context, url string, subprotocols []string) (wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     subprotocols,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Subscribe registers a new handle for one of the fixed topics.
func (c *Channel) Subscribe(topic Topic) (*Subscription, error) {
	switch topic {
	case TopicUser, TopicChat, TopicMessage:
	default:
		return nil, ErrUnknownTopic
	}

	sub := &Subscription{
		topic: topic,
		ch:    make(chan models.Notification, subscriptionBuffer),
	}
	c.mu.Lock()
	c.subs[topic] = append(c.subs[topic], sub)
	c.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a handle and closes its stream. Unsubscribing an
// already removed handle is a no-op.
func (c *Channel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			c.subs[sub.topic] = append(list[:i], list[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Open establishes the push connection. An already open connection is closed
// first: there is at most one live connection per client at any time. Without
// a valid, non-expired credential Open logs and returns without dialing.
func (c *Channel) Open(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.stopReconnectLocked()
	c.mu.Unlock()

	token, err := c.tokens.Token()
	if err != nil || token == "" {
		slog.Info("realtime channel not opened, missing or expired credential")
		return
	}

	conn, err := c.dial(ctx, c.url, []string{"access_token", token})
	if err != nil {
		slog.Error("failed to open realtime connection", "error", err)
		c.scheduleReconnect(ctx, gen)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Superseded by another Open or Close while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	slog.Info("realtime channel connected")
	go c.readLoop(ctx, conn, gen)
}

// Close terminates the active connection, if any, and cancels any pending
// reconnection attempt.
func (c *Channel) Close() {
	c.mu.Lock()
	c.gen++
	c.stopReconnectLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) readLoop(ctx context.Context, conn wsConn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(ctx, gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) handleClose(ctx context.Context, gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// A newer connection owns the channel; this close is stale.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	slog.Info("realtime connection closed", "error", err)
	c.scheduleReconnect(ctx, gen)
}

// scheduleReconnect arms exactly one reconnection attempt after the fixed
// delay, and only while a valid credential exists. Once the credential is
// cleared no further attempt is made.
func (c *Channel) scheduleReconnect(ctx context.Context, gen int) {
	if token, err := c.tokens.Token(); err != nil || token == "" {
		slog.Info("not reconnecting realtime channel, no valid credential")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()

		slog.Info("retrying realtime connection")
		c.Open(ctx)
	})
}

func (c *Channel) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// dispatch parses an inbound frame and fans it out to the matching topic.
// Malformed and unrecognized frames are dropped with a diagnostic; they
// never crash the channel.
func (c *Channel) dispatch(data []byte) {
	var msg models.Notification
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		slog.Warn("dropping malformed realtime frame", "frame", string(data))
		return
	}

	topic, ok := topicForType(msg.Type)
	if !ok {
		slog.Warn("dropping realtime frame with unrecognized type", "type", msg.Type)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
			slog.Warn("subscriber is slow, dropping notification", "topic", string(topic), "type", msg.Type)
		}
	}
}
