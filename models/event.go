package models

import (
	"time"
)

type Event struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Date            *time.Time `gorm:"index" json:"date"`
	Location        *string    `gorm:"size:255" json:"location"`
	Distance        float64    `json:"distance"`
	Difficulty      string     `gorm:"size:32" json:"difficulty"`
	CreatedBy       uint       `gorm:"not null;index" json:"created_by"`
	IsPrivate       bool       `gorm:"not null;default:false" json:"is_private"`
	MaxParticipants int        `gorm:"not null;default:0" json:"max_participants"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasCapacity reports whether one more participant fits given the current count.
func (e *Event) HasCapacity(participants int64) bool {
	return e.MaxParticipants <= 0 || participants < int64(e.MaxParticipants)
}

type EventParticipant struct {
	EventID   uint      `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership of a user in an event.
const (
	StatusNone        = "none"
	StatusCreator     = "creator"
	StatusParticipant = "participant"
)

// MembershipStatus folds the rows a user may hold for an event into a single
// state. req may be nil.
func MembershipStatus(event *Event, userID uint, isParticipant bool, req *EventRequest) string {
	switch {
	case event.CreatedBy == userID:
		return StatusCreator
	case isParticipant:
		return StatusParticipant
	case req != nil && req.Status != RequestAccepted:
		return req.Status
	}
	return StatusNone
}

// CanJoin reports whether a join or request action should be offered.
func CanJoin(status string) bool {
	return status == StatusNone
}
