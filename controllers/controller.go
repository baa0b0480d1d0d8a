package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/CUknot/runtogether/middleware"
	"github.com/CUknot/runtogether/store"
	"github.com/CUknot/runtogether/websocket"
	"github.com/gin-gonic/gin"
)

// Publisher fans inserts out to realtime subscribers.
type Publisher interface {
	PublishInsert(ins websocket.Insert)
}

// Handler serves the RunTogether API.
type Handler struct {
	store     *store.Store
	publisher Publisher
	jwtSecret string
	jwtTTL    time.Duration
	now       func() time.Time
}

func New(s *store.Store, publisher Publisher, jwtSecret string, jwtTTL time.Duration) *Handler {
	return &Handler{
		store:     s,
		publisher: publisher,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the handlers. protected must already run JWTAuth.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)

	protected.GET("/profile", h.GetProfile)
	protected.PUT("/profile", h.UpdateProfile)
	protected.GET("/profiles/:id", h.GetUserProfile)
	protected.GET("/dashboard", h.GetDashboard)

	protected.GET("/events", h.GetEvents)
	protected.POST("/events", h.CreateEvent)
	protected.GET("/events/:id", h.GetEvent)
	protected.GET("/events/:id/participants", h.GetParticipants)
	protected.POST("/events/:id/join", h.JoinEvent)
	protected.GET("/events/:id/messages", h.GetEventMessages)
	protected.POST("/events/:id/messages", h.CreateEventMessage)
	protected.GET("/events/:id/messages/:messageId", h.GetEventMessage)
	protected.GET("/events/:id/read", h.GetReadStatus)
	protected.PUT("/events/:id/read", h.MarkRead)

	protected.GET("/chats", h.GetChats)

	protected.GET("/messages", h.GetConversations)
	protected.GET("/messages/:userId", h.GetThread)
	protected.POST("/messages/:userId", h.SendPrivateMessage)
	protected.GET("/private-messages/:id", h.GetPrivateMessage)

	protected.GET("/requests", h.GetPendingRequests)
	protected.POST("/requests/:id/respond", h.RespondToRequest)

	protected.GET("/posts", h.GetPosts)
	protected.POST("/posts", h.CreatePost)
}

// AuthorizeTopic allows event topics to participants and user topics to
// their owner.
func (h *Handler) AuthorizeTopic(ctx context.Context, userID uint, topic string) error {
	kind, id, err := websocket.ParseTopic(topic)
	if err != nil {
		return err
	}
	switch kind {
	case websocket.KindUser:
		if id != userID {
			return store.ErrForbidden
		}
		return nil
	default:
		ok, err := h.store.IsParticipant(ctx, id, userID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrForbidden
		}
		return nil
	}
}

func currentUser(c *gin.Context) uint {
	return c.MustGet(middleware.UserIDKey).(uint)
}

// pathID parses a numeric path parameter, replying 400 when it is invalid.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

// pageQuery reads the before cursor and page size of a history request.
func pageQuery(c *gin.Context) (before uint, limit int, ok bool) {
	if raw := c.Query("before"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before cursor"})
			return 0, 0, false
		}
		before = uint(n)
	}
	limit = store.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return 0, 0, false
		}
		limit = store.ClampLimit(n)
	}
	return before, limit, true
}

// respondError maps store errors onto HTTP responses.
func respondError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to do this"})
	case errors.Is(err, store.ErrEventFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Event is full"})
	case errors.Is(err, store.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "Request already processed"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Already exists"})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// requireParticipant replies 403 unless the caller belongs to the event.
func (h *Handler) requireParticipant(c *gin.Context, eventID uint) bool {
	ok, err := h.store.IsParticipant(c.Request.Context(), eventID, currentUser(c))
	if err != nil {
		respondError(c, err, "Event not found")
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have access to this event"})
		return false
	}
	return true
}
