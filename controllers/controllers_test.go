package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/CUknot/runtogether/database"
	"github.com/CUknot/runtogether/middleware"
	"github.com/CUknot/runtogether/models"
	"github.com/CUknot/runtogether/store"
	"github.com/CUknot/runtogether/websocket"
	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

type recordingPublisher struct {
	mu      sync.Mutex
	inserts []websocket.Insert
}

func (p *recordingPublisher) PublishInsert(ins websocket.Insert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserts = append(p.inserts, ins)
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.inserts))
	for _, ins := range p.inserts {
		out = append(out, ins.Topic)
	}
	return out
}

type testServer struct {
	t         *testing.T
	router    *gin.Engine
	handler   *Handler
	store     *store.Store
	publisher *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(database.OpenTest(t))
	pub := &recordingPublisher{}
	h := New(s, pub, testSecret, time.Hour)

	router := gin.New()
	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(testSecret))
	h.RegisterRoutes(api, protected)

	return &testServer{t: t, router: router, handler: h, store: s, publisher: pub}
}

// do sends a JSON request and decodes the JSON response into a map.
func (ts *testServer) do(method, path, token string, body any) (int, map[string]any) {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			ts.t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

// register creates an account and returns its token and id.
func (ts *testServer) register(name string) (string, uint) {
	ts.t.Helper()
	code, resp := ts.do(http.MethodPost, "/api/register", "", gin.H{
		"email":    name + "@example.com",
		"password": "secret123",
	})
	if code != http.StatusCreated {
		ts.t.Fatalf("register %s: %d %v", name, code, resp)
	}
	user := resp["user"].(map[string]any)
	return resp["token"].(string), uint(user["id"].(float64))
}

func (ts *testServer) createEvent(token string, body gin.H) uint {
	ts.t.Helper()
	code, resp := ts.do(http.MethodPost, "/api/events", token, body)
	if code != http.StatusCreated {
		ts.t.Fatalf("create event: %d %v", code, resp)
	}
	return uint(resp["event"].(map[string]any)["id"].(float64))
}

func TestRegisterLoginAndProfileGate(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(http.MethodPost, "/api/register", "", gin.H{
		"email": "ana@example.com", "password": "secret123", "confirm_password": "secret123",
	})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, resp)
	}
	if resp["next"] != models.NextProfile {
		t.Fatalf("new users should be sent to the profile, got %v", resp["next"])
	}
	token := resp["token"].(string)

	code, resp = ts.do(http.MethodPost, "/api/register", "", gin.H{"email": "ANA@example.com", "password": "secret123"})
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d %v", code, resp)
	}

	code, _ = ts.do(http.MethodPost, "/api/register", "", gin.H{
		"email": "cat@example.com", "password": "secret123", "confirm_password": "other",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched passwords, got %d", code)
	}

	code, _ = ts.do(http.MethodPost, "/api/login", "", gin.H{"email": "ana@example.com", "password": "wrong-pass"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", code)
	}

	code, resp = ts.do(http.MethodPut, "/api/profile", token, gin.H{"running_frequency": "sometimes"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown frequency, got %d %v", code, resp)
	}

	code, resp = ts.do(http.MethodPut, "/api/profile", token, gin.H{
		"username": "ana", "name": "Ana", "age": 31, "running_frequency": models.FrequencyOnceWeek,
	})
	if code != http.StatusOK || resp["complete"] != true {
		t.Fatalf("update profile: %d %v", code, resp)
	}

	code, resp = ts.do(http.MethodPost, "/api/login", "", gin.H{"email": "ana@example.com", "password": "secret123"})
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, resp)
	}
	if resp["next"] != models.NextDashboard {
		t.Fatalf("complete profiles should go to the dashboard, got %v", resp["next"])
	}

	code, resp = ts.do(http.MethodGet, "/api/profile", resp["token"].(string), nil)
	if code != http.StatusOK || resp["complete"] != true {
		t.Fatalf("get profile: %d %v", code, resp)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/events", "/api/profile", "/api/chats", "/api/messages"} {
		if code, _ := ts.do(http.MethodGet, path, "", nil); code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, code)
		}
	}
}

func TestCreateEventValidation(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("ana")

	cases := []gin.H{
		{"title": "A", "description": "long enough text"},
		{"title": "Run", "description": "short"},
		{"title": "Run", "description": "long enough text", "max_participants": -1},
		{"title": "Run", "description": "long enough text", "location": "X"},
	}
	for i, body := range cases {
		if code, resp := ts.do(http.MethodPost, "/api/events", token, body); code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d %v", i, code, resp)
		}
	}
}

func TestCreateEventPublishesWelcome(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("ana")

	eventID := ts.createEvent(token, gin.H{
		"title": "Sunday long run", "description": "Easy 15k along the river", "welcome_message": "Welcome aboard",
	})

	want := websocket.EventTopic(eventID)
	if topics := ts.publisher.topics(); len(topics) != 1 || topics[0] != want {
		t.Fatalf("expected one insert on %s, got %v", want, topics)
	}

	code, resp := ts.do(http.MethodGet, fmt.Sprintf("/api/events/%d", eventID), token, nil)
	if code != http.StatusOK {
		t.Fatalf("get event: %d %v", code, resp)
	}
	if status := resp["event"].(map[string]any)["status"]; status != models.StatusCreator {
		t.Fatalf("expected creator status, got %v", status)
	}
}

func TestPrivateEventRequestFlow(t *testing.T) {
	ts := newTestServer(t)
	creator, _ := ts.register("ana")
	runner, _ := ts.register("bob")

	eventID := ts.createEvent(creator, gin.H{
		"title": "Club tempo", "description": "Members only tempo run", "is_private": true,
	})
	joinPath := fmt.Sprintf("/api/events/%d/join", eventID)

	code, resp := ts.do(http.MethodPost, joinPath, runner, nil)
	if code != http.StatusOK || resp["status"] != models.RequestPending {
		t.Fatalf("join private: %d %v", code, resp)
	}
	if code, _ := ts.do(http.MethodPost, joinPath, runner, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate request, got %d", code)
	}
	if code, _ := ts.do(http.MethodPost, joinPath, creator, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for the creator, got %d", code)
	}

	messagesPath := fmt.Sprintf("/api/events/%d/messages", eventID)
	if code, _ := ts.do(http.MethodPost, messagesPath, runner, gin.H{"message": "let me in"}); code != http.StatusForbidden {
		t.Fatalf("expected 403 before acceptance, got %d", code)
	}

	code, resp = ts.do(http.MethodGet, "/api/requests", creator, nil)
	if code != http.StatusOK {
		t.Fatalf("pending requests: %d %v", code, resp)
	}
	requests := resp["requests"].([]any)
	if len(requests) != 1 {
		t.Fatalf("expected one pending request, got %v", requests)
	}
	requestID := uint(requests[0].(map[string]any)["id"].(float64))
	respondPath := fmt.Sprintf("/api/requests/%d/respond", requestID)

	if code, _ := ts.do(http.MethodPost, respondPath, runner, gin.H{"action": "accept"}); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator, got %d", code)
	}
	if code, _ := ts.do(http.MethodPost, respondPath, creator, gin.H{"action": "maybe"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", code)
	}

	code, resp = ts.do(http.MethodPost, respondPath, creator, gin.H{"action": "accept"})
	if code != http.StatusOK {
		t.Fatalf("accept: %d %v", code, resp)
	}
	if status := resp["request"].(map[string]any)["status"]; status != models.RequestAccepted {
		t.Fatalf("expected accepted, got %v", status)
	}
	if code, _ := ts.do(http.MethodPost, respondPath, creator, gin.H{"action": "reject"}); code != http.StatusConflict {
		t.Fatalf("expected 409 on second response, got %d", code)
	}

	code, resp = ts.do(http.MethodPost, messagesPath, runner, gin.H{"message": "  thanks!  "})
	if code != http.StatusCreated {
		t.Fatalf("post message: %d %v", code, resp)
	}
	if text := resp["data"].(map[string]any)["message"]; text != "thanks!" {
		t.Fatalf("expected trimmed message, got %v", text)
	}

	code, resp = ts.do(http.MethodGet, fmt.Sprintf("/api/events/%d/participants", eventID), creator, nil)
	if code != http.StatusOK || len(resp["participants"].([]any)) != 2 {
		t.Fatalf("participants: %d %v", code, resp)
	}
}

func TestPublicEventCapacity(t *testing.T) {
	ts := newTestServer(t)
	creator, _ := ts.register("ana")
	bob, _ := ts.register("bob")
	cat, _ := ts.register("cat")

	eventID := ts.createEvent(creator, gin.H{
		"title": "Track night", "description": "400m repeats on the track", "max_participants": 2,
	})
	joinPath := fmt.Sprintf("/api/events/%d/join", eventID)

	if code, resp := ts.do(http.MethodPost, joinPath, bob, nil); code != http.StatusOK || resp["status"] != models.StatusParticipant {
		t.Fatalf("join: %d %v", code, resp)
	}
	code, resp := ts.do(http.MethodPost, joinPath, cat, nil)
	if code != http.StatusConflict || resp["error"] != "Event is full" {
		t.Fatalf("expected full event, got %d %v", code, resp)
	}
	if code, _ := ts.do(http.MethodPost, "/api/events/999/join", cat, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown event, got %d", code)
	}
	if code, _ := ts.do(http.MethodPost, "/api/events/abc/join", cat, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}
}

func TestEventMessagesPagination(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("ana")
	eventID := ts.createEvent(token, gin.H{"title": "Hill repeats", "description": "Six hill repeats"})
	path := fmt.Sprintf("/api/events/%d/messages", eventID)

	for i := 1; i <= 25; i++ {
		if code, resp := ts.do(http.MethodPost, path, token, gin.H{"message": fmt.Sprintf("msg %d", i)}); code != http.StatusCreated {
			t.Fatalf("post %d: %d %v", i, code, resp)
		}
	}
	if code, _ := ts.do(http.MethodPost, path, token, gin.H{"message": "   "}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", code)
	}

	code, resp := ts.do(http.MethodGet, path, token, nil)
	if code != http.StatusOK {
		t.Fatalf("first page: %d %v", code, resp)
	}
	page := resp["messages"].([]any)
	if len(page) != 20 || resp["has_more"] != true {
		t.Fatalf("expected a full page with more, got %d has_more=%v", len(page), resp["has_more"])
	}
	oldest := page[len(page)-1].(map[string]any)
	cursor := uint(oldest["id"].(float64))

	code, resp = ts.do(http.MethodGet, fmt.Sprintf("%s?before=%d", path, cursor), token, nil)
	if code != http.StatusOK {
		t.Fatalf("older page: %d %v", code, resp)
	}
	if page := resp["messages"].([]any); len(page) != 5 || resp["has_more"] != false {
		t.Fatalf("expected the last 5 messages, got %d has_more=%v", len(page), resp["has_more"])
	}

	if code, _ := ts.do(http.MethodGet, path+"?before=x", token, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", code)
	}

	code, resp = ts.do(http.MethodGet, fmt.Sprintf("%s/%d", path, cursor), token, nil)
	if code != http.StatusOK || resp["data"].(map[string]any)["message"] != "msg 6" {
		t.Fatalf("single message: %d %v", code, resp)
	}
}

func TestReadMarkerAndChats(t *testing.T) {
	ts := newTestServer(t)
	creator, _ := ts.register("ana")
	runner, _ := ts.register("bob")
	eventID := ts.createEvent(creator, gin.H{"title": "Recovery jog", "description": "Slow and easy recovery"})
	ts.do(http.MethodPost, fmt.Sprintf("/api/events/%d/join", eventID), runner, nil)

	var lastID uint
	for i := 0; i < 3; i++ {
		_, resp := ts.do(http.MethodPost, fmt.Sprintf("/api/events/%d/messages", eventID), creator, gin.H{"message": "hi"})
		lastID = uint(resp["data"].(map[string]any)["id"].(float64))
	}

	_, resp := ts.do(http.MethodGet, "/api/chats", runner, nil)
	chats := resp["chats"].([]any)
	if len(chats) != 1 || chats[0].(map[string]any)["unread_count"].(float64) != 3 {
		t.Fatalf("expected 3 unread, got %v", chats)
	}

	readPath := fmt.Sprintf("/api/events/%d/read", eventID)
	if code, _ := ts.do(http.MethodPut, readPath, runner, gin.H{"last_read_message_id": 9999}); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", code)
	}
	if code, resp := ts.do(http.MethodPut, readPath, runner, gin.H{"last_read_message_id": lastID}); code != http.StatusOK {
		t.Fatalf("mark read: %d %v", code, resp)
	}

	_, resp = ts.do(http.MethodGet, readPath, runner, nil)
	if got := uint(resp["read_status"].(map[string]any)["last_read_message_id"].(float64)); got != lastID {
		t.Fatalf("expected marker %d, got %d", lastID, got)
	}
	_, resp = ts.do(http.MethodGet, "/api/chats", runner, nil)
	if unread := resp["chats"].([]any)[0].(map[string]any)["unread_count"].(float64); unread != 0 {
		t.Fatalf("expected 0 unread after marking, got %v", unread)
	}
}

func TestPrivateMessages(t *testing.T) {
	ts := newTestServer(t)
	ana, anaID := ts.register("ana")
	bob, bobID := ts.register("bob")
	cat, _ := ts.register("cat")

	if code, _ := ts.do(http.MethodPost, fmt.Sprintf("/api/messages/%d", anaID), ana, gin.H{"body": "hi me"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for messaging yourself, got %d", code)
	}
	if code, _ := ts.do(http.MethodPost, "/api/messages/999", ana, gin.H{"body": "hello?"}); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown recipient, got %d", code)
	}

	code, resp := ts.do(http.MethodPost, fmt.Sprintf("/api/messages/%d", bobID), ana, gin.H{"body": "run tomorrow?"})
	if code != http.StatusCreated {
		t.Fatalf("send: %d %v", code, resp)
	}
	msgID := uint(resp["data"].(map[string]any)["id"].(float64))

	topics := ts.publisher.topics()
	if len(topics) != 2 || topics[0] != websocket.UserTopic(anaID) || topics[1] != websocket.UserTopic(bobID) {
		t.Fatalf("expected inserts for both users, got %v", topics)
	}

	code, resp = ts.do(http.MethodGet, fmt.Sprintf("/api/messages/%d", anaID), bob, nil)
	if code != http.StatusOK || len(resp["messages"].([]any)) != 1 {
		t.Fatalf("thread: %d %v", code, resp)
	}

	code, resp = ts.do(http.MethodGet, "/api/messages", bob, nil)
	if code != http.StatusOK || len(resp["conversations"].([]any)) != 1 {
		t.Fatalf("conversations: %d %v", code, resp)
	}

	if code, _ := ts.do(http.MethodGet, fmt.Sprintf("/api/private-messages/%d", msgID), bob, nil); code != http.StatusOK {
		t.Fatalf("expected recipient to read the message, got %d", code)
	}
	if code, _ := ts.do(http.MethodGet, fmt.Sprintf("/api/private-messages/%d", msgID), cat, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", code)
	}
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t)
	ana, _ := ts.register("ana")
	bob, _ := ts.register("bob")
	eventID := ts.createEvent(ana, gin.H{"title": "Trail run", "description": "Muddy trail loop", "is_private": true})
	ts.do(http.MethodPost, fmt.Sprintf("/api/events/%d/join", eventID), bob, nil)

	code, resp := ts.do(http.MethodGet, "/api/dashboard", ana, nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d %v", code, resp)
	}
	dashboard := resp["dashboard"].(map[string]any)
	if len(dashboard["created"].([]any)) != 1 || dashboard["pending_requests"].(float64) != 1 {
		t.Fatalf("unexpected dashboard: %v", dashboard)
	}
}

func TestAuthorizeTopic(t *testing.T) {
	ts := newTestServer(t)
	ana, anaID := ts.register("ana")
	_, bobID := ts.register("bob")
	eventID := ts.createEvent(ana, gin.H{"title": "Morning run", "description": "Before-work five k"})
	ctx := context.Background()

	if err := ts.handler.AuthorizeTopic(ctx, anaID, websocket.EventTopic(eventID)); err != nil {
		t.Fatalf("creator should subscribe to the event: %v", err)
	}
	if err := ts.handler.AuthorizeTopic(ctx, bobID, websocket.EventTopic(eventID)); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("outsider must be refused, got %v", err)
	}
	if err := ts.handler.AuthorizeTopic(ctx, bobID, websocket.UserTopic(bobID)); err != nil {
		t.Fatalf("own user topic should be allowed: %v", err)
	}
	if err := ts.handler.AuthorizeTopic(ctx, bobID, websocket.UserTopic(anaID)); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("foreign user topic must be refused, got %v", err)
	}
	if err := ts.handler.AuthorizeTopic(ctx, bobID, "weather:1"); err == nil {
		t.Fatal("unknown topic kinds must be refused")
	}
}

func TestForumPosts(t *testing.T) {
	ts := newTestServer(t)
	ana, anaID := ts.register("ana")
	bob, _ := ts.register("bob")

	if code, _ := ts.do(http.MethodPost, "/api/posts", ana, gin.H{"content": "   "}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blank post, got %d", code)
	}

	code, resp := ts.do(http.MethodPost, "/api/posts", ana, gin.H{"content": "  Anyone for intervals?  "})
	if code != http.StatusCreated {
		t.Fatalf("create post: %d %v", code, resp)
	}
	post := resp["post"].(map[string]any)
	if post["content"] != "Anyone for intervals?" || post["profile"] == nil {
		t.Fatalf("unexpected post %v", post)
	}
	ts.do(http.MethodPost, "/api/posts", bob, gin.H{"content": "Count me in"})

	code, resp = ts.do(http.MethodGet, "/api/posts", bob, nil)
	if code != http.StatusOK {
		t.Fatalf("posts: %d %v", code, resp)
	}
	posts := resp["posts"].([]any)
	if len(posts) != 2 || resp["has_more"] != false {
		t.Fatalf("expected both posts without more, got %v", resp)
	}
	last := posts[1].(map[string]any)
	if last["content"] != "Anyone for intervals?" || last["profile"].(map[string]any)["id"].(float64) != float64(anaID) {
		t.Fatalf("expected ana's post last with her profile, got %v", last)
	}
}

func TestJoinedEventsFilter(t *testing.T) {
	ts := newTestServer(t)
	ana, _ := ts.register("ana")
	bob, _ := ts.register("bob")
	tempo := ts.createEvent(ana, gin.H{"title": "Tempo Tuesday", "description": "Threshold work on the track"})
	ts.createEvent(ana, gin.H{"title": "Tempo Thursday", "description": "More threshold work"})
	ts.do(http.MethodPost, fmt.Sprintf("/api/events/%d/join", tempo), bob, nil)

	code, resp := ts.do(http.MethodGet, "/api/events?joined=1&q=tempo", bob, nil)
	if code != http.StatusOK {
		t.Fatalf("joined events: %d %v", code, resp)
	}
	events := resp["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("expected only the joined event, got %v", events)
	}
	event := events[0].(map[string]any)
	if uint(event["id"].(float64)) != tempo || event["status"] != models.StatusParticipant {
		t.Fatalf("unexpected event %v", event)
	}

	code, resp = ts.do(http.MethodGet, "/api/events?q=tempo", bob, nil)
	if code != http.StatusOK || len(resp["events"].([]any)) != 2 {
		t.Fatalf("all events: %d %v", code, resp)
	}
}
