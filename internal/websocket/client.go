package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// State is the lifecycle of one client session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id   string
	addr string
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames, drained by writePump. Never closed.
	send chan []byte

	// ctx is cancelled by Close and acts as the liveness flag.
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	writerDone chan struct{}
	closed     chan struct{}
	state      atomic.Int32
}

func NewClient(hub *Hub, conn *websocket.Conn, addr string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:         uuid.NewString(),
		addr:       addr,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.cfg.SendBuffer),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	c.setState(StateConnecting)
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues frame for the writer. A full buffer blocks until ctx is done.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flags the client dead. The writer then sends a close frame and shuts
// the connection, which ends the reader.
func (c *Client) Close() error {
	c.closeOnce.Do(c.cancel)
	return nil
}

// Done is closed once the session reached StateClosed.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) readPump() {
	defer c.finish()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("Error setting read deadline", "client_id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if _, err := c.hub.Submit(c.ctx, raw); err != nil {
			c.reject(err)
		}
	}
}

// reject reports a refused submission to this client only.
func (c *Client) reject(err error) {
	switch {
	case errors.Is(err, message.ErrDecode), errors.Is(err, message.ErrValidation):
		slog.Info("Rejected message", "client_id", c.id, "error", err)
	case errors.Is(err, context.Canceled):
		// The session itself is closing.
		return
	default:
		slog.Error("Failed to submit message", "client_id", c.id, "error", err)
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.hub.cfg.SendTimeout)
	defer cancel()
	if sendErr := c.Send(ctx, message.ErrorFrame(PublicError(err))); sendErr != nil {
		slog.Debug("Could not report rejection", "client_id", c.id, "error", sendErr)
	}
}

// finish runs the Closing state and ends in Closed.
func (c *Client) finish() {
	c.setState(StateClosing)
	c.hub.detach(c)
	_ = c.Close()
	<-c.writerDone
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Debug("Error closing connection", "client_id", c.id, "error", err)
	}
	c.setState(StateClosed)
	close(c.closed)
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("Message exceeded maximum size", "client_id", c.id, "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.Debug("Client disconnected", "client_id", c.id, "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Debug("Client connection closed", "client_id", c.id, "error", err)
	default:
		slog.Warn("WebSocket read error", "client_id", c.id, "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					slog.Warn("Error writing message", "client_id", c.id, "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if hub.ctx.Err() != nil {
		http.Error(w, ErrHubStopped.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err, "addr", r.RemoteAddr)
		return
	}

	if err := hub.Attach(NewClient(hub, conn, r.RemoteAddr)); err != nil {
		// Shutdown began after the upgrade.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}
