// Package wsfeed serves a live websocket feed of chute decisions for
// monitoring dashboards. Delivery is at-most-once: a slow client is
// disconnected rather than allowed to apply backpressure to the engine.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/parcel"
)

const clientBufferSize = 64

// Feed is a websocket broadcast server for decision events.
type Feed struct {
	port   int
	path   string
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	server  *http.Server
	started bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a feed server.
func New(port int, path string, logger *slog.Logger) *Feed {
	if path == "" {
		path = "/feed"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		port:   port,
		path:   path,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Start begins accepting websocket clients.
func (f *Feed) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.ErrAlreadyStarted
	}

	mux := http.NewServeMux()
	mux.HandleFunc(f.path, f.handleConnect)

	f.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", f.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			f.logger.Error("decision feed server exited", "error", err)
		}
	}()

	f.started = true
	f.logger.Info("decision feed listening", "port", f.port, "path", f.path)
	return nil
}

// Stop disconnects all clients and shuts the server down.
func (f *Feed) Stop(timeout time.Duration) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return errors.ErrNotStarted
	}
	f.started = false
	server := f.server
	f.server = nil
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Wrap(server.Shutdown(ctx), "wsfeed.Feed", "Stop", "shutdown")
}

// Broadcast sends a decision to every connected client. Use as an
// OnDecision handler.
func (f *Feed) Broadcast(d parcel.ChuteDecision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.WrapInvalid(err, "wsfeed.Feed", "Broadcast", "encode decision")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop it rather than block the feed
			close(c.send)
			delete(f.clients, c)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	f.logger.Debug("feed client connected", "remote", r.RemoteAddr)
	go f.writeLoop(c)
	go f.readLoop(c)
}

func (f *Feed) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames and detects client disconnects.
func (f *Feed) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			f.drop(c)
			return
		}
	}
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		close(c.send)
		delete(f.clients, c)
	}
}
