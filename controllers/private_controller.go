package controllers

import (
	"net/http"
	"strings"

	"github.com/CUknot/runtogether/models"
	"github.com/CUknot/runtogether/websocket"
	"github.com/gin-gonic/gin"
)

type SendPrivateMessageInput struct {
	Body string `json:"body" binding:"required,max=4000" example:"Up for a run tomorrow?"`
}

// GetConversations godoc
// @Summary List private conversations
// @Description Returns one entry per counterpart with the most recent message, newest first
// @Tags private-messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of conversations"
// @Router /api/messages [get]
func (h *Handler) GetConversations(c *gin.Context) {
	conversations, err := h.store.Conversations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetThread godoc
// @Summary Get a page of a private conversation
// @Tags private-messages
// @Produce json
// @Security BearerAuth
// @Param userId path int true "Counterpart user ID"
// @Param before query int false "Only messages with a smaller id"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{} "List of messages"
// @Router /api/messages/{userId} [get]
func (h *Handler) GetThread(c *gin.Context) {
	other, ok := pathID(c, "userId")
	if !ok {
		return
	}
	before, limit, ok := pageQuery(c)
	if !ok {
		return
	}

	messages, err := h.store.Thread(c.Request.Context(), currentUser(c), other, before, limit)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "has_more": len(messages) == limit})
}

// SendPrivateMessage godoc
// @Summary Send a private message
// @Tags private-messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "Recipient user ID"
// @Param message body SendPrivateMessageInput true "Message"
// @Success 201 {object} map[string]interface{} "Message sent successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Recipient not found"
// @Router /api/messages/{userId} [post]
func (h *Handler) SendPrivateMessage(c *gin.Context) {
	recipient, ok := pathID(c, "userId")
	if !ok {
		return
	}
	sender := currentUser(c)
	if recipient == sender {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
		return
	}

	var input SendPrivateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	msg, err := h.store.SendPrivate(c.Request.Context(), sender, recipient, body)
	if err != nil {
		respondError(c, err, "Recipient not found")
		return
	}

	h.publishPrivateMessage(msg)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent successfully",
		"data":    msg,
	})
}

// GetPrivateMessage godoc
// @Summary Get one private message
// @Tags private-messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} map[string]interface{} "Message"
// @Failure 404 {object} map[string]string "Message not found"
// @Router /api/private-messages/{id} [get]
func (h *Handler) GetPrivateMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.store.PrivateMessage(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, err, "Message not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msg})
}

// publishPrivateMessage notifies both participants.
func (h *Handler) publishPrivateMessage(msg *models.PrivateMessage) {
	for _, userID := range []uint{msg.SenderID, msg.RecipientID} {
		h.publisher.PublishInsert(websocket.Insert{
			Topic:       websocket.UserTopic(userID),
			Table:       websocket.TablePrivateMessages,
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			RecipientID: msg.RecipientID,
		})
	}
}
