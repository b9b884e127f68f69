// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle hand-off for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client represents a WebSocket client connection in the chat system.
// It carries the transport-assigned connection id, the outbound frame queue,
// and the peer address used as the default device label.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a new Client for an upgraded connection. The send
// channel is sized by the hub so slow writers do not stall routing; a client
// that fills it is evicted.
func NewClient(conn *websocket.Conn, hub *Hub, id, addr string, maxMessageSize int64) *Client {
	if conn != nil && maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}

	buffer := sendBufferSize
	if hub != nil && hub.sendBuffer > 0 {
		buffer = hub.sendBuffer
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, buffer),
		hub:            hub,
		addr:           addr,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the connection id assigned by the transport.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Warn("Error setting initial read deadline", "connID", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.logger.Warn("Error setting read deadline in pong handler", "connID", c.id, "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}
	logger := c.hub.logger.With("connID", c.id, "addr", c.addr)

	if errors.Is(err, websocket.ErrReadLimit) {
		logger.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		logger.Debug("Client disconnected", "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		logger.Debug("Client connection closed", "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		logger.Warn("Unexpected WebSocket error", "error", err)
		return true
	}

	logger.Warn("WebSocket read error", "error", err)
	return true
}

// processMessage decodes a raw frame and hands it to the lifecycle. It
// returns false if the frame could not be decoded.
func (c *Client) processMessage(rawMessage []byte) bool {
	var frame InboundFrame
	if err := json.Unmarshal(rawMessage, &frame); err != nil {
		c.hub.logger.Warn("Invalid frame", "connID", c.id, "error", err)
		return false
	}

	c.hub.lifecycle.Handle(c.id, frame)
	return true
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			break
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Warn("Error closing connection", "connID", c.id, "error", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.logger.Warn("Error setting write deadline", "connID", c.id, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Warn("Error writing close message", "connID", c.id, "error", err)
		}
	}
	return false
}

// writeTextMessage writes a single frame. Each outbound event gets its own
// WebSocket message so clients can decode frames independently.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.logger.Warn("Error writing message", "connID", c.id, "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.logger.Warn("Error setting write deadline for ping", "connID", c.id, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.hub.logger.Warn("Error writing ping message", "connID", c.id, "error", err)
		return false
	}
	return true
}
