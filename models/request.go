package models

import (
	"time"
)

// Request states.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

type EventRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     uint       `gorm:"not null;uniqueIndex:idx_request_event_user" json:"event_id"`
	Event       *Event     `gorm:"foreignKey:EventID" json:"event,omitempty"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_request_event_user" json:"user_id"`
	Profile     *Profile   `gorm:"-" json:"profile,omitempty"`
	Status      string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RespondedAt *time.Time `json:"responded_at"`
}
