package client

import (
	"context"

	"github.com/CUknot/runtogether/feed"
	"github.com/CUknot/runtogether/models"
	rt "github.com/CUknot/runtogether/websocket"
)

// EventFeed returns a feed over an event's chat.
func (c *Client) EventFeed(conn *Conn, eventID uint) *feed.Feed {
	return feed.New(feed.Config{
		Source:     &eventSource{client: c, eventID: eventID},
		Subscriber: conn,
		Topic:      rt.EventTopic(eventID),
		UserID:     c.UserID(),
	})
}

// PrivateFeed returns a feed over the private thread with other.
func (c *Client) PrivateFeed(conn *Conn, other uint) *feed.Feed {
	me := c.UserID()
	return feed.New(feed.Config{
		Source:     &privateSource{client: c, other: other},
		Subscriber: conn,
		Topic:      rt.UserTopic(me),
		UserID:     me,
		Filter:     feed.Counterpart(other),
	})
}

type eventSource struct {
	client  *Client
	eventID uint
}

func (s *eventSource) FetchPage(ctx context.Context, before uint, limit int) ([]feed.Message, error) {
	rows, _, err := s.client.EventMessages(ctx, s.eventID, before, limit)
	if err != nil {
		return nil, err
	}
	out := make([]feed.Message, 0, len(rows))
	for i := range rows {
		out = append(out, fromEventMessage(&rows[i]))
	}
	return out, nil
}

func (s *eventSource) FetchOne(ctx context.Context, id uint) (feed.Message, error) {
	row, err := s.client.EventMessage(ctx, s.eventID, id)
	if err != nil {
		return feed.Message{}, err
	}
	return fromEventMessage(row), nil
}

func (s *eventSource) Post(ctx context.Context, body string) (feed.Message, error) {
	row, err := s.client.PostEventMessage(ctx, s.eventID, body)
	if err != nil {
		return feed.Message{}, err
	}
	return fromEventMessage(row), nil
}

type privateSource struct {
	client *Client
	other  uint
}

func (s *privateSource) FetchPage(ctx context.Context, before uint, limit int) ([]feed.Message, error) {
	rows, _, err := s.client.Thread(ctx, s.other, before, limit)
	if err != nil {
		return nil, err
	}
	out := make([]feed.Message, 0, len(rows))
	for i := range rows {
		out = append(out, fromPrivateMessage(&rows[i]))
	}
	return out, nil
}

func (s *privateSource) FetchOne(ctx context.Context, id uint) (feed.Message, error) {
	row, err := s.client.PrivateMessage(ctx, id)
	if err != nil {
		return feed.Message{}, err
	}
	return fromPrivateMessage(row), nil
}

func (s *privateSource) Post(ctx context.Context, body string) (feed.Message, error) {
	row, err := s.client.SendPrivate(ctx, s.other, body)
	if err != nil {
		return feed.Message{}, err
	}
	return fromPrivateMessage(row), nil
}

func fromEventMessage(m *models.EventChatMessage) feed.Message {
	msg := feed.Message{ID: m.ID, AuthorID: m.UserID, Body: m.Message, CreatedAt: m.CreatedAt}
	if m.Profile != nil {
		msg.AuthorName, msg.AvatarURL = displayName(m.Profile), m.Profile.AvatarURL
	}
	return msg
}

func fromPrivateMessage(m *models.PrivateMessage) feed.Message {
	msg := feed.Message{ID: m.ID, AuthorID: m.SenderID, Body: m.Body, CreatedAt: m.CreatedAt}
	if m.Sender != nil {
		msg.AuthorName, msg.AvatarURL = displayName(m.Sender), m.Sender.AvatarURL
	}
	return msg
}

// displayName prefers the full name, then the username.
func displayName(p *models.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}
