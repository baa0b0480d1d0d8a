package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CUknot/runtogether/models"
	"github.com/CUknot/runtogether/websocket"
	"github.com/gin-gonic/gin"
)

type CreateEventInput struct {
	Title           string     `json:"title" binding:"required,min=2,max=255" example:"Sunday long run"`
	Description     string     `json:"description" binding:"required,min=10" example:"Easy 15k along the river"`
	Date            *time.Time `json:"date" example:"2026-11-01T08:00:00Z"`
	Location        *string    `json:"location" binding:"omitempty,min=2,max=255" example:"Riverside park"`
	Distance        float64    `json:"distance" binding:"gte=0" example:"15"`
	Difficulty      string     `json:"difficulty" binding:"max=32" example:"intermediate"`
	IsPrivate       bool       `json:"is_private"`
	MaxParticipants int        `json:"max_participants" binding:"gte=0" example:"12"`
	WelcomeMessage  string     `json:"welcome_message" binding:"max=2000" example:"Welcome! Meet at the main gate."`
}

// GetEvents godoc
// @Summary List events
// @Description Returns every event ordered by date with the caller's membership status
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search by title or location"
// @Param joined query bool false "Only events the caller participates in"
// @Success 200 {object} map[string]interface{} "List of events"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/events [get]
func (h *Handler) GetEvents(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		events []models.Event
		err    error
	)
	if joined, _ := strconv.ParseBool(c.Query("joined")); joined {
		events, err = h.store.JoinedEvents(ctx, currentUser(c), c.Query("q"))
	} else {
		events, err = h.store.ListEvents(ctx, c.Query("q"))
	}
	if err != nil {
		respondError(c, err, "")
		return
	}

	withStatus, err := h.store.WithStatus(ctx, currentUser(c), events)
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": withStatus})
}

// CreateEvent godoc
// @Summary Create an event
// @Description Creates an event with the caller as creator and first participant
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventInput true "Event Creation"
// @Success 201 {object} map[string]interface{} "Event created successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/events [post]
func (h *Handler) CreateEvent(c *gin.Context) {
	userID := currentUser(c)

	var input CreateEventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event := models.Event{
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Date:            input.Date,
		Location:        input.Location,
		Distance:        input.Distance,
		Difficulty:      input.Difficulty,
		CreatedBy:       userID,
		IsPrivate:       input.IsPrivate,
		MaxParticipants: input.MaxParticipants,
	}

	welcome, err := h.store.CreateEvent(c.Request.Context(), &event, input.WelcomeMessage)
	if err != nil {
		respondError(c, err, "")
		return
	}
	if welcome != nil {
		h.publishEventMessage(welcome)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Event created successfully",
		"event":   event,
	})
}

// GetEvent godoc
// @Summary Get an event
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Event details"
// @Failure 400 {object} map[string]string "Invalid event ID"
// @Failure 404 {object} map[string]string "Event not found"
// @Router /api/events/{id} [get]
func (h *Handler) GetEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	event, err := h.store.Event(ctx, eventID)
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	withStatus, err := h.store.WithStatus(ctx, currentUser(c), []models.Event{*event})
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": withStatus[0]})
}

// GetParticipants godoc
// @Summary List event participants
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Participant profiles"
// @Failure 404 {object} map[string]string "Event not found"
// @Router /api/events/{id}/participants [get]
func (h *Handler) GetParticipants(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.store.Event(ctx, eventID); err != nil {
		respondError(c, err, "Event not found")
		return
	}

	participants, err := h.store.Participants(ctx, eventID)
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// JoinEvent godoc
// @Summary Join an event
// @Description Joins a public event directly or files a request for a private one
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Joined or request filed"
// @Failure 404 {object} map[string]string "Event not found"
// @Failure 409 {object} map[string]string "Already joined, already requested or event full"
// @Router /api/events/{id}/join [post]
func (h *Handler) JoinEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.store.Join(c.Request.Context(), eventID, currentUser(c))
	if err != nil {
		respondError(c, err, "Event not found")
		return
	}

	message := "Joined event successfully"
	if result.Status == models.RequestPending {
		message = "Join request sent"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "status": result.Status, "request": result.Request})
}

func (h *Handler) publishEventMessage(msg *models.EventChatMessage) {
	h.publisher.PublishInsert(websocket.Insert{
		Topic:    websocket.EventTopic(msg.EventID),
		Table:    websocket.TableEventChats,
		ID:       msg.ID,
		EventID:  msg.EventID,
		SenderID: msg.UserID,
	})
}
