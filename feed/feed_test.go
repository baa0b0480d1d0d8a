package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	rows      map[uint]Message
	nextID    uint
	author    uint
	pageCalls int
	oneCalls  int
	postCalls int
}

func newFakeSource(n int, author uint) *fakeSource {
	s := &fakeSource{rows: make(map[uint]Message), author: author}
	for i := 0; i < n; i++ {
		s.add(7, fmt.Sprintf("msg %d", i+1))
	}
	return s
}

// add stores a message written by another client.
func (s *fakeSource) add(author uint, body string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := Message{
		ID:         s.nextID,
		AuthorID:   author,
		AuthorName: fmt.Sprintf("Runner %d", author),
		Body:       body,
		CreatedAt:  base.Add(time.Duration(s.nextID) * time.Minute),
	}
	s.rows[m.ID] = m
	return m
}

func (s *fakeSource) FetchPage(_ context.Context, before uint, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	var out []Message
	for id := s.nextID; id >= 1 && len(out) < limit; id-- {
		if before > 0 && id >= before {
			continue
		}
		if m, ok := s.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchOne(_ context.Context, id uint) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oneCalls++
	m, ok := s.rows[id]
	if !ok {
		return Message{}, errors.New("not found")
	}
	return m, nil
}

func (s *fakeSource) Post(_ context.Context, body string) (Message, error) {
	s.mu.Lock()
	s.postCalls++
	s.mu.Unlock()
	return s.add(s.author, body), nil
}

func (s *fakeSource) calls() (page, one, post int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCalls, s.oneCalls, s.postCalls
}

type fakeSub struct {
	ch     chan Notification
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Notifications() <-chan Notification { return s.ch }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{ch: make(chan Notification, 32)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeSubscriber) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func newTestFeed(t *testing.T, src *fakeSource, sub *fakeSubscriber, user uint) *Feed {
	t.Helper()
	f := New(Config{
		Source:     src,
		Subscriber: sub,
		Topic:      "event:1",
		UserID:     user,
		Logger:     log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { f.Close() })
	return f
}

func ids(msgs []Message) []uint {
	out := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitialLoadAndLoadOlder(t *testing.T) {
	src := newFakeSource(25, 1)
	f := newTestFeed(t, src, &fakeSubscriber{}, 1)
	ctx := context.Background()

	if err := f.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	msgs := f.Messages()
	if len(msgs) != 20 || msgs[0].ID != 6 || msgs[19].ID != 25 {
		t.Fatalf("expected ids 6..25 oldest first, got %v", ids(msgs))
	}
	if !f.HasMore() {
		t.Fatal("a full first page should report more history")
	}

	if err := f.LoadOlder(ctx); err != nil {
		t.Fatalf("load older: %v", err)
	}
	msgs = f.Messages()
	if len(msgs) != 25 || msgs[0].ID != 1 {
		t.Fatalf("expected all 25 messages, got %v", ids(msgs))
	}
	if f.HasMore() {
		t.Fatal("a short page must end the history")
	}

	if err := f.LoadOlder(ctx); err != nil {
		t.Fatalf("load older: %v", err)
	}
	if page, _, _ := src.calls(); page != 2 {
		t.Fatalf("expected no request once history is exhausted, got %d page fetches", page)
	}
}

func TestPaginationCoversEveryMessageOnce(t *testing.T) {
	src := newFakeSource(65, 1)
	f := newTestFeed(t, src, &fakeSubscriber{}, 1)
	ctx := context.Background()

	if err := f.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	oldest := f.Messages()[0].ID
	for f.HasMore() {
		if err := f.LoadOlder(ctx); err != nil {
			t.Fatalf("load older: %v", err)
		}
		next := f.Messages()[0].ID
		if next > oldest {
			t.Fatalf("oldest id grew from %d to %d", oldest, next)
		}
		oldest = next
	}

	got := ids(f.Messages())
	want := make([]uint, 0, 65)
	for i := uint(1); i <= 65; i++ {
		want = append(want, i)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("expected every id exactly once in order, got %v", got)
	}
}

func TestLiveInsertAppendedOnce(t *testing.T) {
	src := newFakeSource(3, 1)
	sub := &fakeSubscriber{}
	f := newTestFeed(t, src, sub, 1)

	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	pagesBefore, _, _ := src.calls()

	m := src.add(2, "on my way")
	live := sub.last()
	live.ch <- Notification{Topic: "event:1", ID: m.ID}
	live.ch <- Notification{Topic: "event:1", ID: m.ID}
	for _, held := range []uint{1, 2, 3} {
		live.ch <- Notification{Topic: "event:1", ID: held}
	}
	sentinel := src.add(2, "last one")
	live.ch <- Notification{Topic: "event:1", ID: sentinel.ID}

	waitFor(t, "sentinel message", func() bool { return len(f.Messages()) == 5 })

	got := ids(f.Messages())
	if !slices.Equal(got, []uint{1, 2, 3, m.ID, sentinel.ID}) {
		t.Fatalf("unexpected list %v", got)
	}
	pages, ones, _ := src.calls()
	if ones != 2 {
		t.Fatalf("expected one fetch per new id, got %d", ones)
	}
	if pages != pagesBefore {
		t.Fatalf("live inserts must not refetch pages, got %d extra", pages-pagesBefore)
	}
}

func TestLiveInsertsKeepOrder(t *testing.T) {
	src := newFakeSource(2, 1)
	sub := &fakeSubscriber{}
	f := newTestFeed(t, src, sub, 1)
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	a := src.add(2, "first")
	b := src.add(3, "second")
	live := sub.last()
	live.ch <- Notification{ID: b.ID}
	live.ch <- Notification{ID: a.ID}

	waitFor(t, "both inserts", func() bool { return len(f.Messages()) == 4 })
	msgs := f.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("list out of order: %v", ids(msgs))
		}
	}
}

func TestSendMergesAcknowledgedRow(t *testing.T) {
	src := newFakeSource(1, 1)
	sub := &fakeSubscriber{}
	f := newTestFeed(t, src, sub, 1)
	ctx := context.Background()
	if err := f.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	sent, err := f.Send(ctx, "  see you there  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Body != "see you there" {
		t.Fatalf("expected trimmed body, got %q", sent.Body)
	}
	if n := len(f.Messages()); n != 2 {
		t.Fatalf("expected the sent row in the list, got %d messages", n)
	}
	if !f.ShouldScroll(false) {
		t.Fatal("own newest message should scroll the view")
	}

	// Echo of the sent row followed by a sentinel from someone else.
	live := sub.last()
	live.ch <- Notification{ID: sent.ID}
	other := src.add(2, "great")
	live.ch <- Notification{ID: other.ID}
	waitFor(t, "sentinel", func() bool { return len(f.Messages()) == 3 })

	if _, ones, _ := src.calls(); ones != 1 {
		t.Fatalf("echo of own message must not be refetched, got %d fetches", ones)
	}
	if f.ShouldScroll(false) {
		t.Fatal("someone else's message should not move a reader away from history")
	}
	if !f.ShouldScroll(true) {
		t.Fatal("a view at the bottom should follow new messages")
	}
}

func TestFailedRefetchIsDropped(t *testing.T) {
	src := newFakeSource(2, 1)
	sub := &fakeSubscriber{}
	var logs strings.Builder
	f := New(Config{
		Source:     src,
		Subscriber: sub,
		Topic:      "event:1",
		UserID:     1,
		Logger:     log.New(&logs, "", 0),
	})
	t.Cleanup(func() { f.Close() })
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	live := sub.last()
	live.ch <- Notification{ID: 999}
	next := src.add(2, "still here")
	live.ch <- Notification{ID: next.ID}
	waitFor(t, "insert after the failed fetch", func() bool { return len(f.Messages()) == 3 })

	if got := ids(f.Messages()); !slices.Equal(got, []uint{1, 2, next.ID}) {
		t.Fatalf("unexpected list %v", got)
	}
	if !strings.Contains(logs.String(), "fetch message 999") {
		t.Fatalf("expected the failed fetch to be logged, got %q", logs.String())
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	src := newFakeSource(1, 1)
	sub := &fakeSubscriber{}
	f := newTestFeed(t, src, sub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	live := sub.last()
	cancel()
	waitFor(t, "subscription close", live.isClosed)

	if err := f.Close(); err != nil {
		t.Fatalf("close after cancel: %v", err)
	}
	if n := sub.open(); n != 0 {
		t.Fatalf("expected no live subscription, got %d", n)
	}
}

func TestSendValidation(t *testing.T) {
	src := newFakeSource(0, 1)
	ctx := context.Background()

	f := newTestFeed(t, src, &fakeSubscriber{}, 1)
	if _, err := f.Send(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	anon := newTestFeed(t, src, &fakeSubscriber{}, 0)
	if _, err := anon.Send(ctx, "hello"); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
	if _, _, posts := src.calls(); posts != 0 {
		t.Fatalf("invalid sends must not reach the server, got %d posts", posts)
	}
}

func TestReopenKeepsSingleSubscription(t *testing.T) {
	src := newFakeSource(3, 1)
	sub := &fakeSubscriber{}
	f := newTestFeed(t, src, sub, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.Open(ctx); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if n := sub.open(); n != 1 {
			t.Fatalf("expected one live subscription after open %d, got %d", i, n)
		}
	}
	if n := len(f.Messages()); n != 3 {
		t.Fatalf("reopen should reload the list, got %d messages", n)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := sub.open(); n != 0 {
		t.Fatalf("expected no live subscription after close, got %d", n)
	}
}

func TestCounterpartFilter(t *testing.T) {
	src := newFakeSource(0, 1)
	sub := &fakeSubscriber{}
	f := New(Config{
		Source:     src,
		Subscriber: sub,
		Topic:      "user:1",
		UserID:     1,
		Filter:     Counterpart(2),
		Logger:     log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { f.Close() })
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	stranger := src.add(3, "wrong thread")
	friend := src.add(2, "right thread")
	live := sub.last()
	live.ch <- Notification{ID: stranger.ID, SenderID: 3, RecipientID: 1}
	live.ch <- Notification{ID: friend.ID, SenderID: 2, RecipientID: 1}

	waitFor(t, "counterpart message", func() bool { return len(f.Messages()) == 1 })
	if got := f.Messages()[0].ID; got != friend.ID {
		t.Fatalf("expected only the counterpart's message, got %d", got)
	}
	if _, ones, _ := src.calls(); ones != 1 {
		t.Fatalf("filtered notifications must not be fetched, got %d fetches", ones)
	}
}

func TestUpdatesSignal(t *testing.T) {
	src := newFakeSource(2, 1)
	f := newTestFeed(t, src, &fakeSubscriber{}, 1)
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-f.Updates():
	case <-time.After(time.Second):
		t.Fatal("expected an update after the initial load")
	}
}

func TestAnonymousAuthor(t *testing.T) {
	src := newFakeSource(0, 1)
	src.rows[1] = Message{ID: 1, AuthorID: 9, AvatarURL: "https://cdn.example.com/a.png", Body: "hi", CreatedAt: base}
	src.nextID = 1
	f := newTestFeed(t, src, &fakeSubscriber{}, 1)
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	m := f.Messages()[0]
	if m.AuthorName != AnonymousName || m.AvatarURL != "" {
		t.Fatalf("expected placeholder author, got %+v", m)
	}
	if m.Initials() != "AR" {
		t.Fatalf("expected AR initials, got %q", m.Initials())
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Ana", "A"},
		{"ana maría lópez", "AM"},
		{"  ", "?"},
		{"@runner 42k", "4"},
	}
	for _, tt := range tests {
		if got := (Message{AuthorName: tt.name}).Initials(); got != tt.want {
			t.Errorf("Initials(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
