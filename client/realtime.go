package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/CUknot/runtogether/feed"
	rt "github.com/CUknot/runtogether/websocket"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrConnClosed = errors.New("realtime connection closed")

// Conn is a realtime connection. It implements feed.Subscriber.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*subscription
	active  map[string][]*subscription
	closed  bool
	err     error

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// Dial opens the realtime connection for the signed-in user.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	token, _ := c.session()
	if token == "" {
		return nil, ErrNotSignedIn
	}

	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {token}}.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("websocket dial: %v", err)}
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn := &Conn{
		ws:      ws,
		logger:  log.Default(),
		pending: make(map[string]*subscription),
		active:  make(map[string][]*subscription),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

// Close tears the connection down and ends every subscription on it.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

// Done is closed once the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection stopped.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe asks the server for topic and waits for its acknowledgement.
func (c *Conn) Subscribe(ctx context.Context, topic string) (feed.Subscription, error) {
	sub := &subscription{
		conn:  c,
		topic: topic,
		ch:    make(chan feed.Notification, 64),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	if _, busy := c.pending[topic]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscription to %s already pending", topic)
	}
	c.pending[topic] = sub
	c.mu.Unlock()

	if err := c.send(rt.TypeSubscribe, rt.TopicPayload{Topic: topic}); err != nil {
		c.dropPending(sub)
		return nil, err
	}

	select {
	case <-sub.ready:
		if sub.err != nil {
			return nil, sub.err
		}
		return sub, nil
	case <-ctx.Done():
		c.dropPending(sub)
		return nil, ctx.Err()
	}
}

func (c *Conn) dropPending(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[sub.topic] == sub {
		delete(c.pending, sub.topic)
	}
}

func (c *Conn) send(msgType string, payload any) error {
	msg, err := rt.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *Conn) readLoop() {
	var err error
	defer func() { c.shutdown(err) }()

	for {
		var raw []byte
		_, raw, err = c.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg rt.Message
		if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil {
			c.logger.Printf("realtime: malformed message: %v", jsonErr)
			continue
		}

		switch msg.Type {
		case rt.TypeSubscribed:
			var p rt.TopicPayload
			if json.Unmarshal(msg.Payload, &p) == nil {
				c.ack(p.Topic, nil)
			}
		case rt.TypeError:
			var p rt.ErrorPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			if p.Topic == "" {
				c.logger.Printf("realtime: server error: %s", p.Message)
				continue
			}
			c.ack(p.Topic, fmt.Errorf("subscribe %s: %s", p.Topic, p.Message))
		case rt.TypeInsert:
			var ins rt.Insert
			if json.Unmarshal(msg.Payload, &ins) == nil {
				c.dispatch(ins)
			}
		}
	}
}

// ack resolves the pending subscription for topic. Accepted subscriptions
// become active before the waiter is released so no insert is missed.
func (c *Conn) ack(topic string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.pending[topic]
	if !ok {
		return
	}
	delete(c.pending, topic)
	if err == nil {
		c.active[topic] = append(c.active[topic], sub)
	}
	sub.err = err
	close(sub.ready)
}

func (c *Conn) dispatch(ins rt.Insert) {
	c.mu.Lock()
	subs := append([]*subscription(nil), c.active[ins.Topic]...)
	c.mu.Unlock()

	n := feed.Notification{Topic: ins.Topic, ID: ins.ID, SenderID: ins.SenderID, RecipientID: ins.RecipientID}
	for _, sub := range subs {
		select {
		case sub.ch <- n:
		case <-sub.done:
		case <-c.closing:
			return
		}
	}
}

// shutdown runs on the read goroutine, the only sender on subscription
// channels, so closing them here is safe.
func (c *Conn) shutdown(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		err = nil
	}

	c.mu.Lock()
	c.closed = true
	c.err = err
	for topic, sub := range c.pending {
		sub.err = ErrConnClosed
		close(sub.ready)
		delete(c.pending, topic)
	}
	for topic, subs := range c.active {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(c.active, topic)
	}
	c.mu.Unlock()

	close(c.done)
}

type subscription struct {
	conn  *Conn
	topic string
	ch    chan feed.Notification
	err   error
	ready chan struct{}

	once sync.Once
	done chan struct{}
}

func (s *subscription) Notifications() <-chan feed.Notification {
	return s.ch
}

// Close stops delivery. The server side is unsubscribed once the last local
// subscription on the topic is gone.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)

		c := s.conn
		c.mu.Lock()
		subs := c.active[s.topic]
		for i, other := range subs {
			if other == s {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(c.active, s.topic)
		} else {
			c.active[s.topic] = subs
		}
		last, closed := len(subs) == 0, c.closed
		c.mu.Unlock()

		if last && !closed {
			if sendErr := c.send(rt.TypeUnsubscribe, rt.TopicPayload{Topic: s.topic}); sendErr != nil && !errors.Is(sendErr, websocket.ErrCloseSent) {
				err = sendErr
			}
		}
	})
	return err
}
