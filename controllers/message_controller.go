package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type CreateMessageInput struct {
	Message string `json:"message" binding:"required,max=4000" example:"See you at the gate!"`
}

type MarkReadInput struct {
	LastReadMessageID uint `json:"last_read_message_id" binding:"required" example:"42"`
}

// GetEventMessages godoc
// @Summary Get a page of an event's chat
// @Description Returns up to limit messages newest first; pass before to page back through history
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Param before query int false "Only messages with a smaller id"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{} "List of messages"
// @Failure 400 {object} map[string]string "Invalid event ID"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /api/events/{id}/messages [get]
func (h *Handler) GetEventMessages(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	before, limit, ok := pageQuery(c)
	if !ok {
		return
	}
	if !h.requireParticipant(c, eventID) {
		return
	}

	messages, err := h.store.EventMessages(c.Request.Context(), eventID, before, limit)
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages, "has_more": len(messages) == limit})
}

// GetEventMessage godoc
// @Summary Get one chat message
// @Description Returns a single message with its author, used to resolve realtime notifications
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Param messageId path int true "Message ID"
// @Success 200 {object} map[string]interface{} "Message"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Message not found"
// @Router /api/events/{id}/messages/{messageId} [get]
func (h *Handler) GetEventMessage(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	if !h.requireParticipant(c, eventID) {
		return
	}

	msg, err := h.store.EventMessage(c.Request.Context(), eventID, messageID)
	if err != nil {
		respondError(c, err, "Message not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": msg})
}

// CreateEventMessage godoc
// @Summary Post a chat message
// @Description Stores a message in the event chat and notifies subscribers
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Param message body CreateMessageInput true "Message Creation"
// @Success 201 {object} map[string]interface{} "Message sent successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /api/events/{id}/messages [post]
func (h *Handler) CreateEventMessage(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(input.Message)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}
	if !h.requireParticipant(c, eventID) {
		return
	}

	msg, err := h.store.CreateEventMessage(c.Request.Context(), eventID, currentUser(c), text)
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	h.publishEventMessage(msg)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent successfully",
		"data":    msg,
	})
}

// GetReadStatus godoc
// @Summary Get the caller's read marker for an event chat
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Read status"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /api/events/{id}/read [get]
func (h *Handler) GetReadStatus(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.requireParticipant(c, eventID) {
		return
	}

	status, err := h.store.ReadStatus(c.Request.Context(), eventID, currentUser(c))
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_status": status})
}

// MarkRead godoc
// @Summary Update the caller's read marker for an event chat
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Param marker body MarkReadInput true "Last read message"
// @Success 200 {object} map[string]interface{} "Read status"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /api/events/{id}/read [put]
func (h *Handler) MarkRead(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input MarkReadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.requireParticipant(c, eventID) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.EventMessage(ctx, eventID, input.LastReadMessageID); err != nil {
		respondError(c, err, "Message not found")
		return
	}

	status, err := h.store.MarkRead(ctx, eventID, currentUser(c), input.LastReadMessageID)
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_status": status})
}

// GetChats godoc
// @Summary List the caller's event chats
// @Description Returns joined events with their latest message and unread count
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of chats"
// @Router /api/chats [get]
func (h *Handler) GetChats(c *gin.Context) {
	chats, err := h.store.Chats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}
