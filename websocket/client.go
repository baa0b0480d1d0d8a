package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound messages buffered per client before it is considered slow
	sendBuffer = 256

	// Time allowed for a subscription check
	authorizeTimeout = 5 * time.Second
)

// Client represents a connected websocket client
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		c.handleIncoming(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame so clients can decode frames directly
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleIncoming processes one client request
func (c *Client) handleIncoming(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		c.reply(TypeError, ErrorPayload{Message: "malformed message"})
		return
	}

	var payload TopicPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.reply(TypeError, ErrorPayload{Message: "malformed payload"})
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		if _, _, err := ParseTopic(payload.Topic); err != nil {
			c.reply(TypeError, ErrorPayload{Topic: payload.Topic, Message: err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
		err := c.hub.authorize(ctx, c.userID, payload.Topic)
		cancel()
		if err != nil {
			log.Printf("User %d denied subscription to %s: %v", c.userID, payload.Topic, err)
			c.reply(TypeError, ErrorPayload{Topic: payload.Topic, Message: "subscription denied"})
			return
		}
		c.hub.subscribe(c, payload.Topic)
		c.reply(TypeSubscribed, payload)
	case TypeUnsubscribe:
		c.hub.unsubscribe(c, payload.Topic)
		c.reply(TypeUnsubscribed, payload)
	default:
		c.reply(TypeError, ErrorPayload{Message: "unknown message type " + msg.Type})
	}
}

// reply queues a message for this client only
func (c *Client) reply(msgType string, payload any) {
	msg, err := Encode(msgType, payload)
	if err != nil {
		log.Printf("error marshaling reply: %v", err)
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("dropping reply to slow client %s", c.id)
	}
}
