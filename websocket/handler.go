package websocket

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// HandleConnection upgrades an authenticated request to a websocket. It
// expects the auth middleware to have stored the caller under userIDKey.
func (h *Hub) HandleConnection(userIDKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := c.Get(userIDKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			return
		}

		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("error upgrading connection: %v", err)
			return
		}

		client := &Client{
			id:     uuid.NewString(),
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			userID: userID.(uint),
		}

		if !h.join(client) {
			conn.Close()
			return
		}

		go client.readPump()
		go client.writePump()
	}
}
