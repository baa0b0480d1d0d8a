package store

import (
	"context"
	"errors"

	"github.com/CUknot/runtogether/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventMessages returns up to limit messages of the event, newest first.
// When before is non-zero only messages with a smaller id are returned.
func (s *Store) EventMessages(ctx context.Context, eventID, before uint, limit int) ([]models.EventChatMessage, error) {
	q := s.db.WithContext(ctx).Where("event_id = ?", eventID)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var messages []models.EventChatMessage
	if err := q.Order("created_at DESC, id DESC").Limit(ClampLimit(limit)).Find(&messages).Error; err != nil {
		return nil, translate("event messages", err)
	}
	if err := s.attachAuthors(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// EventMessage loads one message of the event with its author profile.
func (s *Store) EventMessage(ctx context.Context, eventID, id uint) (*models.EventChatMessage, error) {
	var msg models.EventChatMessage
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&msg, id).Error
	if err != nil {
		return nil, translate("event message", err)
	}
	one := []models.EventChatMessage{msg}
	if err := s.attachAuthors(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *Store) attachAuthors(ctx context.Context, messages []models.EventChatMessage) error {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.UserID)
	}
	profiles, err := s.profilesByUser(ctx, ids)
	if err != nil {
		return err
	}
	for i := range messages {
		messages[i].Profile = profiles[messages[i].UserID]
	}
	return nil
}

// CreateEventMessage stores a chat message and returns it with its author.
func (s *Store) CreateEventMessage(ctx context.Context, eventID, userID uint, text string) (*models.EventChatMessage, error) {
	msg := models.EventChatMessage{EventID: eventID, UserID: userID, Message: text}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, translate("create event message", err)
	}
	return s.EventMessage(ctx, eventID, msg.ID)
}

// ReadStatus returns the caller's read marker; a missing marker is the zero value.
func (s *Store) ReadStatus(ctx context.Context, eventID, userID uint) (*models.ChatReadStatus, error) {
	status := models.ChatReadStatus{EventID: eventID, UserID: userID}
	err := s.db.WithContext(ctx).Where("event_id = ? AND user_id = ?", eventID, userID).First(&status).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate("read status", err)
	}
	return &status, nil
}

// MarkRead upserts the caller's read marker.
func (s *Store) MarkRead(ctx context.Context, eventID, userID, messageID uint) (*models.ChatReadStatus, error) {
	status := models.ChatReadStatus{EventID: eventID, UserID: userID, LastReadMessageID: messageID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "updated_at"}),
	}).Create(&status).Error
	if err != nil {
		return nil, translate("mark read", err)
	}
	return &status, nil
}

// ChatSummary is one row of the chats list.
type ChatSummary struct {
	Event       models.Event             `json:"event"`
	LastMessage *models.EventChatMessage `json:"last_message"`
	UnreadCount int64                    `json:"unread_count"`
}

// Chats lists the events userID has joined with their latest message and the
// number of messages after the user's read marker.
func (s *Store) Chats(ctx context.Context, userID uint) ([]ChatSummary, error) {
	events, err := s.JoinedEvents(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	chats := make([]ChatSummary, 0, len(events))
	for _, event := range events {
		summary := ChatSummary{Event: event}

		latest, err := s.EventMessages(ctx, event.ID, 0, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) > 0 {
			summary.LastMessage = &latest[0]
		}

		status, err := s.ReadStatus(ctx, event.ID, userID)
		if err != nil {
			return nil, err
		}
		err = db.Model(&models.EventChatMessage{}).
			Where("event_id = ? AND id > ? AND user_id <> ?", event.ID, status.LastReadMessageID, userID).
			Count(&summary.UnreadCount).Error
		if err != nil {
			return nil, translate("unread count", err)
		}
		chats = append(chats, summary)
	}
	return chats, nil
}
