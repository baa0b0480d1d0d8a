package models

import (
	"sort"
	"time"
)

type EventChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"not null;index" json:"event_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Profile   *Profile  `gorm:"-" json:"profile,omitempty"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (EventChatMessage) TableName() string { return "event_chats" }

type ChatReadStatus struct {
	EventID           uint      `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	UserID            uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	LastReadMessageID uint      `json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ChatReadStatus) TableName() string { return "event_chat_read_status" }

type PrivateMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"not null;index" json:"sender_id"`
	Sender      *Profile  `gorm:"foreignKey:SenderID;references:UserID" json:"sender,omitempty"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	Recipient   *Profile  `gorm:"foreignKey:RecipientID;references:UserID" json:"recipient,omitempty"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Counterpart returns the id of the participant that is not me.
func (m *PrivateMessage) Counterpart(me uint) uint {
	if m.SenderID == me {
		return m.RecipientID
	}
	return m.SenderID
}

// Conversation is derived from private messages; it is never stored.
type Conversation struct {
	UserID      uint           `json:"user_id"`
	User        *Profile       `json:"user,omitempty"`
	LastMessage PrivateMessage `json:"last_message"`
}

// GroupConversations reduces messages into one conversation per counterpart,
// keeping only the most recent message of each, newest conversation first.
func GroupConversations(messages []PrivateMessage, me uint) []Conversation {
	byUser := make(map[uint]*Conversation)
	for _, msg := range messages {
		other := msg.Counterpart(me)
		conv, ok := byUser[other]
		if !ok {
			c := Conversation{UserID: other, LastMessage: msg}
			if msg.SenderID == me {
				c.User = msg.Recipient
			} else {
				c.User = msg.Sender
			}
			byUser[other] = &c
			continue
		}
		if newer(msg, conv.LastMessage) {
			conv.LastMessage = msg
		}
	}

	out := make([]Conversation, 0, len(byUser))
	for _, c := range byUser {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].LastMessage, out[j].LastMessage)
	})
	return out
}

func newer(a, b PrivateMessage) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
