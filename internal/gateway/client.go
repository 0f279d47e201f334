package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// Client is one WebSocket subscriber to the snapshot feed.
type Client struct {
	id        string
	conn      *websocket.Conn
	server    *Server
	rateKey   string // rate limiter key captured at upgrade
	send      chan []byte
	coalescer *bus.Coalescer

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, server *Server, rateKey string) *Client {
	c := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		server:  server,
		rateKey: rateKey,
		send:    make(chan []byte, 256),
	}
	c.coalescer = bus.NewCoalescer(server.coalesceWindow, c.deliver)
	c.coalescer.Immediate = isTerminalEvent
	return c
}

// Run subscribes the client to the bus and runs the read and write pumps
// until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.server.bus.Subscribe(c.id, c.coalescer.Push)
	defer func() {
		c.server.bus.Unsubscribe(c.id)
		c.coalescer.Stop()
		c.Close()
	}()

	// Current state first, so late joiners render immediately.
	snap, _ := c.server.runner.Current()
	c.SendEvent(protocol.EventFrame{
		Type:    protocol.FrameTypeEvent,
		Event:   protocol.EventSnapshot,
		Payload: snap,
		RunID:   snap.RunID,
	})

	go c.writePump()
	c.readPump(ctx)
}

// maxWSMessageSize is the maximum allowed inbound WebSocket message size.
// Requests are small control frames.
const maxWSMessageSize = 64 * 1024

// readPump reads request frames from the WebSocket connection.
func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("gateway.ws_read_error", "client", c.id, "error", err)
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.handleFrame(ctx, data)
	}
}

// writePump writes frames and pings to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame parses and dispatches a single inbound frame.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	frameType, err := protocol.ParseFrameType(data)
	if err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "invalid frame: "+err.Error())
		return
	}
	if frameType != protocol.FrameTypeRequest {
		c.sendError("", protocol.ErrInvalidRequest, "unexpected frame type: "+frameType)
		return
	}

	var req protocol.RequestFrame
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", protocol.ErrInvalidRequest, "malformed request: "+err.Error())
		return
	}
	c.server.router.Handle(ctx, c, &req)
}

// deliver converts a bus event into an event frame.
func (c *Client) deliver(e bus.Event) {
	c.SendEvent(protocol.EventFrame{
		Type:    protocol.FrameTypeEvent,
		Event:   e.Name,
		Payload: e.Payload,
		Seq:     e.Seq,
		RunID:   e.RunID,
	})
}

// SendResponse sends a response frame to this client.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("gateway.marshal_response_failed", "error", err)
		return
	}
	c.enqueue(data)
}

// SendEvent sends an event frame to this client.
func (c *Client) SendEvent(event protocol.EventFrame) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("gateway.marshal_event_failed", "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("gateway.ws_send_buffer_full", "client", c.id)
	}
}

func (c *Client) sendError(id, code, message string) {
	c.SendResponse(protocol.NewErrorResponse(id, code, message))
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Close stops delivery and shuts down the write pump. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func isTerminalEvent(e bus.Event) bool {
	return e.Name == protocol.EventCompleted || e.Name == protocol.EventFailed
}
