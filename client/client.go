// Package client talks to the RunTogether API over HTTP and websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CUknot/runtogether/models"
)

var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is safe for concurrent use once signed in.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	token  string
	userID uint
}

// New returns a client for the server at baseURL. A nil httpClient uses a
// client with a 15 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetSession installs a token obtained elsewhere.
func (c *Client) SetSession(token string, userID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.userID = token, userID
}

func (c *Client) UserID() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) session() (string, uint) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.userID
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, _ := c.session(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func pageValues(before uint, limit int) url.Values {
	q := url.Values{}
	if before > 0 {
		q.Set("before", strconv.FormatUint(uint64(before), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// Session is the result of signing up or in.
type Session struct {
	Token  string
	UserID uint
	Email  string
	// Next is the route the user should see first.
	Next string
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    uint   `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Next string `json:"next"`
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	c.SetSession(resp.Token, resp.User.ID)
	return &Session{Token: resp.Token, UserID: resp.User.ID, Email: resp.User.Email, Next: resp.Next}, nil
}

func (c *Client) Register(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/api/register", map[string]string{
		"email":            email,
		"password":         password,
		"confirm_password": password,
	})
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/api/login", map[string]string{"email": email, "password": password})
}

// ProfileState is a profile with its completeness.
type ProfileState struct {
	Profile  models.Profile `json:"profile"`
	Complete bool           `json:"complete"`
	Next     string         `json:"next"`
}

func (c *Client) Profile(ctx context.Context) (*ProfileState, error) {
	var out ProfileState
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p models.Profile) (*ProfileState, error) {
	var out ProfileState
	if err := c.do(ctx, http.MethodPut, "/api/profile", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserProfile returns another user's profile.
func (c *Client) UserProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	var out struct {
		Profile models.Profile `json:"profile"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/profiles/%d", userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Profile, nil
}

// Event is an event with the caller's membership status.
type Event struct {
	models.Event
	Status string `json:"status"`
}

// NewEvent describes an event to create.
type NewEvent struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Date            *time.Time `json:"date,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Distance        float64    `json:"distance"`
	Difficulty      string     `json:"difficulty,omitempty"`
	IsPrivate       bool       `json:"is_private"`
	MaxParticipants int        `json:"max_participants"`
	WelcomeMessage  string     `json:"welcome_message,omitempty"`
}

func (c *Client) Events(ctx context.Context, search string) ([]Event, error) {
	return c.listEvents(ctx, search, false)
}

// JoinedEvents lists the events the signed-in user participates in.
func (c *Client) JoinedEvents(ctx context.Context, search string) ([]Event, error) {
	return c.listEvents(ctx, search, true)
}

func (c *Client) listEvents(ctx context.Context, search string, joined bool) ([]Event, error) {
	q := url.Values{}
	if search != "" {
		q.Set("q", search)
	}
	if joined {
		q.Set("joined", "1")
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/events", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) Event(ctx context.Context, id uint) (*Event, error) {
	var out struct {
		Event Event `json:"event"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/events/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Event, nil
}

func (c *Client) CreateEvent(ctx context.Context, e NewEvent) (*models.Event, error) {
	var out struct {
		Event models.Event `json:"event"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/events", nil, e, &out); err != nil {
		return nil, err
	}
	return &out.Event, nil
}

// Join joins the event or requests to; it returns the resulting status.
func (c *Client) Join(ctx context.Context, eventID uint) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/events/%d/join", eventID), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) Participants(ctx context.Context, eventID uint) ([]models.Profile, error) {
	var out struct {
		Participants []models.Profile `json:"participants"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/events/%d/participants", eventID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

// EventMessages returns a page of chat history, newest first.
func (c *Client) EventMessages(ctx context.Context, eventID, before uint, limit int) ([]models.EventChatMessage, bool, error) {
	var out struct {
		Messages []models.EventChatMessage `json:"messages"`
		HasMore  bool                      `json:"has_more"`
	}
	path := fmt.Sprintf("/api/events/%d/messages", eventID)
	if err := c.do(ctx, http.MethodGet, path, pageValues(before, limit), nil, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.HasMore, nil
}

func (c *Client) EventMessage(ctx context.Context, eventID, id uint) (*models.EventChatMessage, error) {
	var out struct {
		Data models.EventChatMessage `json:"data"`
	}
	path := fmt.Sprintf("/api/events/%d/messages/%d", eventID, id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) PostEventMessage(ctx context.Context, eventID uint, text string) (*models.EventChatMessage, error) {
	var out struct {
		Data models.EventChatMessage `json:"data"`
	}
	path := fmt.Sprintf("/api/events/%d/messages", eventID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"message": text}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) MarkRead(ctx context.Context, eventID, messageID uint) error {
	path := fmt.Sprintf("/api/events/%d/read", eventID)
	return c.do(ctx, http.MethodPut, path, nil, map[string]uint{"last_read_message_id": messageID}, nil)
}

// Chat is one entry of the chats list.
type Chat struct {
	Event       models.Event             `json:"event"`
	LastMessage *models.EventChatMessage `json:"last_message"`
	UnreadCount int64                    `json:"unread_count"`
}

func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// Thread returns a page of the private thread with other, newest first.
func (c *Client) Thread(ctx context.Context, other, before uint, limit int) ([]models.PrivateMessage, bool, error) {
	var out struct {
		Messages []models.PrivateMessage `json:"messages"`
		HasMore  bool                    `json:"has_more"`
	}
	path := fmt.Sprintf("/api/messages/%d", other)
	if err := c.do(ctx, http.MethodGet, path, pageValues(before, limit), nil, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.HasMore, nil
}

func (c *Client) PrivateMessage(ctx context.Context, id uint) (*models.PrivateMessage, error) {
	var out struct {
		Data models.PrivateMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/private-messages/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) SendPrivate(ctx context.Context, to uint, body string) (*models.PrivateMessage, error) {
	var out struct {
		Data models.PrivateMessage `json:"data"`
	}
	path := fmt.Sprintf("/api/messages/%d", to)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) PendingRequests(ctx context.Context) ([]models.EventRequest, error) {
	var out struct {
		Requests []models.EventRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/requests", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// Respond accepts or rejects a join request on one of the caller's events.
func (c *Client) Respond(ctx context.Context, requestID uint, accept bool) (*models.EventRequest, error) {
	action := "reject"
	if accept {
		action = "accept"
	}
	var out struct {
		Request models.EventRequest `json:"request"`
	}
	path := fmt.Sprintf("/api/requests/%d/respond", requestID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"action": action}, &out); err != nil {
		return nil, err
	}
	return &out.Request, nil
}

// Posts returns a page of forum posts, newest first.
func (c *Client) Posts(ctx context.Context, before uint, limit int) ([]models.Post, bool, error) {
	var out struct {
		Posts   []models.Post `json:"posts"`
		HasMore bool          `json:"has_more"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/posts", pageValues(before, limit), nil, &out); err != nil {
		return nil, false, err
	}
	return out.Posts, out.HasMore, nil
}

func (c *Client) CreatePost(ctx context.Context, content string) (*models.Post, error) {
	var out struct {
		Post models.Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/posts", nil, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}
