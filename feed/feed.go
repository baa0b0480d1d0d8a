// Package feed keeps a chronological message list for one chat thread in
// sync with the server. It loads history a page at a time, merges live
// insert notifications without duplicates and tells views when to re-render.
package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	// PageSize is the number of messages fetched per page.
	PageSize = 20
	// AnonymousName replaces a missing author name.
	AnonymousName = "Anonymous runner"
)

var (
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrNoUser       = errors.New("no signed-in user")
)

// Message is one chat entry as displayed.
type Message struct {
	ID         uint
	AuthorID   uint
	AuthorName string
	AvatarURL  string
	Body       string
	CreatedAt  time.Time
}

// Initials is the avatar fallback text for the author.
func (m Message) Initials() string {
	var out []rune
	for _, word := range strings.Fields(m.AuthorName) {
		r := []rune(word)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

func (m Message) normalized() Message {
	if strings.TrimSpace(m.AuthorName) == "" {
		m.AuthorName = AnonymousName
		m.AvatarURL = ""
	}
	return m
}

// Source reads and writes the messages of one thread.
type Source interface {
	// FetchPage returns up to limit messages newest first. A non-zero
	// before restricts the page to ids below it.
	FetchPage(ctx context.Context, before uint, limit int) ([]Message, error)
	FetchOne(ctx context.Context, id uint) (Message, error)
	Post(ctx context.Context, body string) (Message, error)
}

// Notification announces a newly inserted message.
type Notification struct {
	Topic       string
	ID          uint
	SenderID    uint
	RecipientID uint
}

// Subscription is a live stream of notifications for one topic. Close may be
// called more than once.
type Subscription interface {
	Notifications() <-chan Notification
	Close() error
}

// Subscriber opens subscriptions. Subscribe returns once the server has
// acknowledged the topic.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Config wires a Feed.
type Config struct {
	Source     Source
	Subscriber Subscriber
	Topic      string
	// UserID is the signed-in user. Send fails without one.
	UserID uint
	// Filter drops notifications that do not belong to the thread. Nil
	// keeps all of them.
	Filter   func(Notification) bool
	PageSize int
	Logger   *log.Logger
}

// Counterpart keeps notifications exchanged with the given user.
func Counterpart(userID uint) func(Notification) bool {
	return func(n Notification) bool {
		return n.SenderID == userID || n.RecipientID == userID
	}
}

// Feed is safe for concurrent use.
type Feed struct {
	cfg     Config
	updates chan struct{}

	// lifecycle serializes Open and Close.
	lifecycle sync.Mutex

	mu       sync.Mutex
	messages []Message
	ids      map[uint]struct{}
	hasMore  bool
	gen      uint64
	sub      Subscription
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config) *Feed {
	if cfg.PageSize <= 0 {
		cfg.PageSize = PageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Feed{
		cfg:     cfg,
		updates: make(chan struct{}, 1),
		ids:     make(map[uint]struct{}),
	}
}

// Open loads the newest page and then subscribes to the thread topic. Any
// previous subscription is closed first. The feed stays live until Close
// is called or ctx is done.
func (f *Feed) Open(ctx context.Context) error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if err := f.stop(); err != nil {
		f.cfg.Logger.Printf("feed %s: close previous subscription: %v", f.cfg.Topic, err)
	}

	f.mu.Lock()
	gen := f.gen
	f.messages = nil
	f.ids = make(map[uint]struct{})
	f.hasMore = false
	f.mu.Unlock()

	page, err := f.cfg.Source.FetchPage(ctx, 0, f.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	f.mergePage(gen, page)

	sub, err := f.cfg.Subscriber.Subscribe(ctx, f.cfg.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.cfg.Topic, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.mu.Lock()
	f.sub, f.cancel, f.done = sub, cancel, done
	f.mu.Unlock()

	go f.run(runCtx, gen, sub, done)
	return nil
}

// Close ends the live subscription. Results of fetches still in flight are
// discarded.
func (f *Feed) Close() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.stop()
}

func (f *Feed) stop() error {
	f.mu.Lock()
	sub, cancel, done := f.sub, f.cancel, f.done
	f.sub, f.cancel, f.done = nil, nil, nil
	f.gen++
	f.mu.Unlock()

	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	<-done
	return err
}

func (f *Feed) run(ctx context.Context, gen uint64, sub Subscription, done chan struct{}) {
	defer close(done)
	notifications := sub.Notifications()
	for {
		select {
		case <-ctx.Done():
			// Nobody drains notifications after this, so the subscriber
			// must stop delivering them.
			if err := sub.Close(); err != nil {
				f.cfg.Logger.Printf("feed %s: close subscription: %v", f.cfg.Topic, err)
			}
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if f.cfg.Filter != nil && !f.cfg.Filter(n) {
				continue
			}
			if f.holds(n.ID) {
				continue
			}
			msg, err := f.cfg.Source.FetchOne(ctx, n.ID)
			if err != nil {
				if ctx.Err() == nil {
					f.cfg.Logger.Printf("feed %s: fetch message %d: %v", f.cfg.Topic, n.ID, err)
				}
				continue
			}
			f.merge(gen, msg)
		}
	}
}

// LoadOlder prepends the page before the oldest held message. It makes no
// request once HasMore is false.
func (f *Feed) LoadOlder(ctx context.Context) error {
	f.mu.Lock()
	if !f.hasMore || len(f.messages) == 0 {
		f.mu.Unlock()
		return nil
	}
	gen := f.gen
	oldest := f.messages[0].ID
	for _, m := range f.messages {
		oldest = min(oldest, m.ID)
	}
	f.mu.Unlock()

	page, err := f.cfg.Source.FetchPage(ctx, oldest, f.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("load older messages: %w", err)
	}
	f.mergePage(gen, page)
	return nil
}

// Send posts text as the signed-in user and merges the stored row, so the
// realtime echo of it is ignored.
func (f *Feed) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if f.cfg.UserID == 0 {
		return Message{}, ErrNoUser
	}

	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()

	msg, err := f.cfg.Source.Post(ctx, text)
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	f.merge(gen, msg)
	return msg.normalized(), nil
}

// Messages returns a copy of the list, oldest first.
func (f *Feed) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.messages)
}

// HasMore reports whether the last page fetch was full.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// ShouldScroll reports whether a view should jump to the newest message
// after an update.
func (f *Feed) ShouldScroll(atBottom bool) bool {
	if atBottom {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.messages)
	return n > 0 && f.cfg.UserID != 0 && f.messages[n-1].AuthorID == f.cfg.UserID
}

// Updates signals after every change to the list. Signals coalesce while
// nobody is reading.
func (f *Feed) Updates() <-chan struct{} {
	return f.updates
}

func (f *Feed) holds(id uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

func (f *Feed) mergePage(gen uint64, page []Message) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.hasMore = len(page) == f.cfg.PageSize
	f.insertLocked(page...)
	f.mu.Unlock()
	f.notify()
}

func (f *Feed) merge(gen uint64, msg Message) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	added := f.insertLocked(msg)
	f.mu.Unlock()
	if added {
		f.notify()
	}
}

func (f *Feed) insertLocked(msgs ...Message) bool {
	added := false
	for _, m := range msgs {
		if _, ok := f.ids[m.ID]; ok {
			continue
		}
		f.ids[m.ID] = struct{}{}
		f.messages = append(f.messages, m.normalized())
		added = true
	}
	if added {
		slices.SortFunc(f.messages, compareMessages)
	}
	return added
}

func compareMessages(a, b Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (f *Feed) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}
