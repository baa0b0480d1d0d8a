package websocket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message types exchanged over a connection.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeInsert       = "insert"
	TypeError        = "error"
)

// Tables named by insert notifications.
const (
	TableEventChats      = "event_chats"
	TablePrivateMessages = "private_messages"
)

// Message represents a websocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TopicPayload is the payload of subscribe, unsubscribe and their acks.
type TopicPayload struct {
	Topic string `json:"topic"`
}

// ErrorPayload reports a rejected request back to the client.
type ErrorPayload struct {
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message"`
}

// Insert announces a new row on a topic. Subscribers refetch the row by id.
type Insert struct {
	Topic       string `json:"topic"`
	Table       string `json:"table"`
	ID          uint   `json:"id"`
	EventID     uint   `json:"event_id,omitempty"`
	SenderID    uint   `json:"sender_id,omitempty"`
	RecipientID uint   `json:"recipient_id,omitempty"`
}

// Encode builds a wire message with payload marshaled as JSON.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// Topic kinds.
const (
	KindEvent = "event"
	KindUser  = "user"
)

// EventTopic is the topic carrying inserts into an event's chat.
func EventTopic(eventID uint) string {
	return KindEvent + ":" + strconv.FormatUint(uint64(eventID), 10)
}

// UserTopic is the topic carrying private messages sent to or by a user.
func UserTopic(userID uint) string {
	return KindUser + ":" + strconv.FormatUint(uint64(userID), 10)
}

// ParseTopic splits a topic into its kind and id.
func ParseTopic(topic string) (kind string, id uint, err error) {
	kind, rawID, ok := strings.Cut(topic, ":")
	if !ok || (kind != KindEvent && kind != KindUser) {
		return "", 0, fmt.Errorf("unknown topic %q", topic)
	}
	n, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || n == 0 {
		return "", 0, fmt.Errorf("invalid topic id in %q", topic)
	}
	return kind, uint(n), nil
}
