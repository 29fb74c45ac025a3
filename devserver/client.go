package devserver

import (
	"encoding/json"
	stlog "log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irishsmurf/go-mmo-client/protocol"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 1024                // Client commands are tiny.
	sendBuffer     = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *stlog.Logger // written by the hub goroutine only
}

// readPump pumps commands from the websocket connection to the hub.
func (c *Client) readPump(logger *stlog.Logger) {
	defer func() {
		submit(c.hub, c.hub.unregister, c)
		c.conn.Close()
		logger.Info("Client readPump finished")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			logger.Warn("Received non-text message", "type", messageType)
			continue
		}
		var cmd protocol.Command
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Action == "" {
			logger.Warn("Dropping malformed client message", "error", err)
			continue
		}
		if !submit(c.hub, c.hub.commands, clientCommand{client: c, cmd: cmd}) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump(logger *stlog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logger.Info("Client writePump finished")
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Error("WebSocket ping error", "error", err)
				return
			}
		}
	}
}

// sendJSON marshals msg and queues it. Called from the hub goroutine.
func (c *Client) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", "error", err)
		return
	}
	c.queue(data)
}

// queue never blocks the hub; a client that cannot keep up loses frames.
func (c *Client) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}
