// Package natsclient manages the NATS connection shared by the ingress
// and egress adapters, including JetStream and KV access for rule
// reloads and audit records.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client manages a NATS connection with reconnect handling and metrics.
type Client struct {
	url    string
	logger *slog.Logger
	core   *metric.Metrics // nil disables metrics

	maxReconnects int
	reconnectWait time.Duration

	status atomic.Int32

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// Option is a functional option for configuring the Client
type Option func(*Client)

// WithLogger injects a structured logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCoreMetrics wires connection metrics
func WithCoreMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.core = m }
}

// WithMaxReconnects sets the reconnection attempt limit (-1 = infinite)
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the wait between reconnection attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// New creates a client for the given NATS URL. Connect must be called
// before use.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	c.status.Store(int32(StatusConnecting))

	conn, err := nats.Connect(c.url,
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, derr error) {
			c.status.Store(int32(StatusReconnecting))
			if c.core != nil {
				c.core.NATSConnected.Set(0)
			}
			c.logger.Warn("NATS disconnected", "error", derr)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(int32(StatusConnected))
			if c.core != nil {
				c.core.NATSConnected.Set(1)
				c.core.NATSReconnects.Inc()
			}
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(int32(StatusDisconnected))
			if c.core != nil {
				c.core.NATSConnected.Set(0)
			}
		}),
	)
	if err != nil {
		c.status.Store(int32(StatusDisconnected))
		return errors.WrapTransient(err, "natsclient.Client", "Connect", "dial NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.status.Store(int32(StatusDisconnected))
		return errors.WrapTransient(err, "natsclient.Client", "Connect", "create JetStream context")
	}

	c.conn = conn
	c.js = js
	c.status.Store(int32(StatusConnected))
	if c.core != nil {
		c.core.NATSConnected.Set(1)
	}
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())
	return nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends data on a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "natsclient.Client", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient.Client", "Publish",
			fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Subscribe registers a handler for a subject. Subscriptions are
// drained on Close.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "natsclient.Client", "Subscribe", "check connection")
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient.Client", "Subscribe",
			fmt.Sprintf("subscribe to %s", subject))
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Request performs a request-reply exchange on a subject.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "natsclient.Client", "Request", "check connection")
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient.Client", "Request",
			fmt.Sprintf("request on %s", subject))
	}
	return msg.Data, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// KeyValue opens (or creates) a KV bucket.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "natsclient.Client", "KeyValue", "check connection")
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err == jetstream.ErrBucketNotFound {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient.Client", "KeyValue",
			fmt.Sprintf("open bucket %s", bucket))
	}
	return kv, nil
}

// Close drains all subscriptions and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}
	c.status.Store(int32(StatusDisconnected))
}
