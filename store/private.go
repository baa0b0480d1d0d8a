package store

import (
	"context"

	"github.com/CUknot/runtogether/models"
)

// PrivateMessages returns every message sent or received by me, newest first.
func (s *Store) PrivateMessages(ctx context.Context, me uint) ([]models.PrivateMessage, error) {
	var messages []models.PrivateMessage
	err := s.db.WithContext(ctx).Preload("Sender").Preload("Recipient").
		Where("sender_id = ? OR recipient_id = ?", me, me).
		Order("created_at DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, translate("private messages", err)
	}
	return messages, nil
}

// Conversations groups me's messages by counterpart.
func (s *Store) Conversations(ctx context.Context, me uint) ([]models.Conversation, error) {
	messages, err := s.PrivateMessages(ctx, me)
	if err != nil {
		return nil, err
	}
	return models.GroupConversations(messages, me), nil
}

// Thread returns up to limit messages exchanged between me and other, newest
// first, optionally restricted to ids below before.
func (s *Store) Thread(ctx context.Context, me, other, before uint, limit int) ([]models.PrivateMessage, error) {
	q := s.db.WithContext(ctx).Preload("Sender").Preload("Recipient").
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", me, other, other, me)
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var messages []models.PrivateMessage
	if err := q.Order("created_at DESC, id DESC").Limit(ClampLimit(limit)).Find(&messages).Error; err != nil {
		return nil, translate("thread", err)
	}
	return messages, nil
}

// PrivateMessage loads one message visible to me.
func (s *Store) PrivateMessage(ctx context.Context, id, me uint) (*models.PrivateMessage, error) {
	var msg models.PrivateMessage
	err := s.db.WithContext(ctx).Preload("Sender").Preload("Recipient").
		Where("sender_id = ? OR recipient_id = ?", me, me).
		First(&msg, id).Error
	if err != nil {
		return nil, translate("private message", err)
	}
	return &msg, nil
}

// SendPrivate stores a message from one user to another.
func (s *Store) SendPrivate(ctx context.Context, from, to uint, body string) (*models.PrivateMessage, error) {
	if _, err := s.Profile(ctx, to); err != nil {
		return nil, err
	}
	msg := models.PrivateMessage{SenderID: from, RecipientID: to, Body: body}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, translate("send private message", err)
	}
	return s.PrivateMessage(ctx, msg.ID, from)
}
