package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/destucr/chatroom-backend/internal/store"
	"github.com/gorilla/websocket"
)

var (
	ErrHubStopped   = errors.New("hub stopped")
	ErrClientClosed = errors.New("client closed")
	// ErrDelivery wraps a failed send to one handle. It never reaches a submitter.
	ErrDelivery = errors.New("delivery failed")
)

// PublicError is the reason reported to a submitter. Decode and validation
// errors describe the submitted payload; anything else is replaced by a fixed
// text so backend details stay in the logs.
func PublicError(err error) string {
	switch {
	case errors.Is(err, message.ErrDecode), errors.Is(err, message.ErrValidation):
		return err.Error()
	case errors.Is(err, store.ErrStore):
		return store.ErrStore.Error()
	case errors.Is(err, ErrHubStopped):
		return ErrHubStopped.Error()
	default:
		return "internal error"
	}
}

// Appender persists accepted messages.
type Appender interface {
	Append(ctx context.Context, msg message.Message) error
}

type Config struct {
	// SendTimeout bounds the hand-off of one frame to one handle.
	SendTimeout    time.Duration
	StoreTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		SendTimeout:    5 * time.Second,
		StoreTimeout:   10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 4096,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

type submission struct {
	ctx    context.Context
	msg    message.Message
	result chan error
}

// Hub persists every submitted message and broadcasts it to the clients in
// its registry. Submissions are handled one at a time by Run, so persisted
// order and delivered order are the same for every client.
type Hub struct {
	store    Appender
	registry *Registry
	cfg      Config
	upgrader websocket.Upgrader

	// Inbound messages from clients and the HTTP API.
	submissions chan submission

	// mu orders Attach against Shutdown: no client goroutine starts once
	// stopped is set.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(store Appender, registry *Registry, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(cfg.AllowedOrigins)
	return &Hub{
		store:    store,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origins.allowed(r.Header.Get("Origin"))
			},
		},
		submissions: make(chan submission),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Run() {
	slog.Info("WebSocket Hub started")
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case sub := <-h.submissions:
			sub.result <- h.broadcast(sub.ctx, sub.msg)
		}
	}
}

// Submit decodes raw and publishes it.
func (h *Hub) Submit(ctx context.Context, raw []byte) (message.Message, error) {
	msg, err := message.Decode(raw)
	if err != nil {
		return message.Message{}, err
	}
	return h.Publish(ctx, msg)
}

// Publish persists msg and delivers it to every registered client. It returns
// once the message is persisted and every delivery attempt has finished.
func (h *Hub) Publish(ctx context.Context, msg message.Message) (message.Message, error) {
	if err := message.Validate(msg); err != nil {
		return message.Message{}, err
	}

	sub := submission{ctx: ctx, msg: msg, result: make(chan error, 1)}
	select {
	case h.submissions <- sub:
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	case <-h.ctx.Done():
		return message.Message{}, ErrHubStopped
	}

	// Run always answers a submission it has received.
	if err := <-sub.result; err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

func (h *Hub) broadcast(ctx context.Context, msg message.Message) error {
	frame, err := message.Encode(msg)
	if err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err = h.store.Append(storeCtx, msg)
	cancel()
	if err != nil {
		slog.Error("Failed to persist message", "error", err, "user", msg.User)
		return err
	}

	clients := h.registry.Snapshot()
	clientsToRemove := h.broadcastToClients(clients, frame)
	h.removeFailedClients(clientsToRemove)

	slog.Debug("Message broadcast", "user", msg.User,
		"delivered", len(clients)-len(clientsToRemove), "dropped", len(clientsToRemove))
	return nil
}

// broadcastToClients sends frame to every client concurrently and returns the
// ones whose send failed or timed out.
func (h *Hub) broadcastToClients(clients []Handle, frame []byte) []Handle {
	var (
		wg              sync.WaitGroup
		mu              sync.Mutex
		clientsToRemove []Handle
	)

	for _, client := range clients {
		wg.Add(1)
		go func(client Handle) {
			defer wg.Done()
			if err := h.safeSend(client, frame); err != nil {
				slog.Warn("Dropping client", "client_id", client.ID(), "error", err)
				mu.Lock()
				clientsToRemove = append(clientsToRemove, client)
				mu.Unlock()
			}
		}(client)
	}
	wg.Wait()

	return clientsToRemove
}

func (h *Hub) safeSend(client Handle, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrDelivery, r)
		}
	}()

	// Detached from the submitter: its cancellation is not a delivery failure.
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SendTimeout)
	defer cancel()

	if err := client.Send(ctx, frame); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func (h *Hub) removeFailedClients(clientsToRemove []Handle) {
	for _, client := range clientsToRemove {
		if h.registry.Deregister(client) {
			slog.Info("Client unregistered", "client_id", client.ID(), "total_clients", h.registry.Len())
		}
		if err := client.Close(); err != nil {
			slog.Debug("Error closing dropped client", "client_id", client.ID(), "error", err)
		}
	}
}

// Attach registers c and starts its pumps. It fails with ErrHubStopped once
// Shutdown has begun.
func (h *Hub) Attach(c *Client) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}
	c.setState(StateOpen)
	h.registry.Register(c)
	h.wg.Add(2)
	h.mu.Unlock()

	slog.Info("Client registered", "client_id", c.ID(), "addr", c.addr, "total_clients", h.registry.Len())
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
	return nil
}

// detach is the session side of deregistration.
func (h *Hub) detach(c *Client) {
	if h.registry.Deregister(c) {
		slog.Info("Client unregistered", "client_id", c.ID(), "total_clients", h.registry.Len())
	}
}

func (h *Hub) closeClients() {
	clients := h.registry.Snapshot()
	for _, client := range clients {
		_ = client.Close()
	}
	slog.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops Run, closes every client and waits for the client goroutines
// until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("Initiating hub shutdown")
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	h.closeClients()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-h.done:
	case <-deadline.C:
		slog.Warn("Hub shutdown timeout reached, Run did not return")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Hub shutdown completed")
		return nil
	case <-deadline.C:
		slog.Warn("Hub shutdown timeout reached, some client goroutines may still be running")
		return context.DeadlineExceeded
	}
}
