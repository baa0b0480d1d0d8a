package store

import (
	"context"
	"strings"
	"time"

	"github.com/CUknot/runtogether/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventWithStatus pairs an event with the caller's membership in it.
type EventWithStatus struct {
	models.Event
	Status string `json:"status"`
}

// CreateEvent inserts the event, adds the creator as a participant and, when
// welcome is non-empty, posts it as the first chat message. All three writes
// commit together. The welcome message, if any, is returned.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event, welcome string) (*models.EventChatMessage, error) {
	var msg *models.EventChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		participant := models.EventParticipant{EventID: event.ID, UserID: event.CreatedBy}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		if welcome = strings.TrimSpace(welcome); welcome != "" {
			msg = &models.EventChatMessage{EventID: event.ID, UserID: event.CreatedBy, Message: welcome}
			if err := tx.Create(msg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("create event", err)
	}
	return msg, nil
}

func (s *Store) Event(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := s.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, translate("event", err)
	}
	return &event, nil
}

// ListEvents returns events ordered by date, undated events last. A non-empty
// query keeps events whose title or location contains it, ignoring case.
func (s *Store) ListEvents(ctx context.Context, query string) ([]models.Event, error) {
	q := search(s.db.WithContext(ctx).Model(&models.Event{}), query)
	var events []models.Event
	if err := q.Order("date IS NULL, date ASC, id ASC").Find(&events).Error; err != nil {
		return nil, translate("list events", err)
	}
	return events, nil
}

// search keeps events whose title or location contains query, ignoring case.
func search(q *gorm.DB, query string) *gorm.DB {
	if query = strings.TrimSpace(query); query == "" {
		return q
	}
	like := "%" + strings.ToLower(query) + "%"
	return q.Where("LOWER(events.title) LIKE ? OR LOWER(COALESCE(events.location, '')) LIKE ?", like, like)
}

// WithStatus annotates events with userID's membership status.
func (s *Store) WithStatus(ctx context.Context, userID uint, events []models.Event) ([]EventWithStatus, error) {
	ids := make([]uint, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}

	joined := make(map[uint]bool)
	requests := make(map[uint]*models.EventRequest)
	if len(ids) > 0 {
		var participants []models.EventParticipant
		if err := s.db.WithContext(ctx).Where("user_id = ? AND event_id IN ?", userID, ids).Find(&participants).Error; err != nil {
			return nil, translate("participants", err)
		}
		for _, p := range participants {
			joined[p.EventID] = true
		}

		var reqs []models.EventRequest
		if err := s.db.WithContext(ctx).Where("user_id = ? AND event_id IN ?", userID, ids).Find(&reqs).Error; err != nil {
			return nil, translate("requests", err)
		}
		for i := range reqs {
			requests[reqs[i].EventID] = &reqs[i]
		}
	}

	out := make([]EventWithStatus, 0, len(events))
	for i := range events {
		status := models.MembershipStatus(&events[i], userID, joined[events[i].ID], requests[events[i].ID])
		out = append(out, EventWithStatus{Event: events[i], Status: status})
	}
	return out, nil
}

func (s *Store) IsParticipant(ctx context.Context, eventID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.EventParticipant{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	if err != nil {
		return false, translate("is participant", err)
	}
	return count > 0, nil
}

// Participants returns the profiles of everyone in the event.
func (s *Store) Participants(ctx context.Context, eventID uint) ([]models.Profile, error) {
	var profiles []models.Profile
	err := s.db.WithContext(ctx).
		Joins("JOIN event_participants ON event_participants.user_id = profiles.user_id").
		Where("event_participants.event_id = ?", eventID).
		Order("event_participants.created_at ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, translate("participants", err)
	}
	return profiles, nil
}

// JoinResult reports what a join attempt produced.
type JoinResult struct {
	Status  string               `json:"status"`
	Request *models.EventRequest `json:"request,omitempty"`
}

// Join adds userID to a public event, or files a pending request for a
// private one. Uniqueness is left to the storage constraints: a second
// attempt fails with ErrConflict whatever the interleaving.
func (s *Store) Join(ctx context.Context, eventID, userID uint) (*JoinResult, error) {
	var result JoinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, eventID).Error; err != nil {
			return err
		}
		if event.CreatedBy == userID {
			return ErrConflict
		}

		if event.IsPrivate {
			req := models.EventRequest{EventID: eventID, UserID: userID, Status: models.RequestPending}
			if err := tx.Create(&req).Error; err != nil {
				return err
			}
			result = JoinResult{Status: models.RequestPending, Request: &req}
			return nil
		}

		if err := addParticipant(tx, &event, userID); err != nil {
			return err
		}
		result = JoinResult{Status: models.StatusParticipant}
		return nil
	})
	if err != nil {
		return nil, translate("join event", err)
	}
	return &result, nil
}

// addParticipant inserts the participant row once capacity allows it. The
// caller holds the event row lock.
func addParticipant(tx *gorm.DB, event *models.Event, userID uint) error {
	var count int64
	if err := tx.Model(&models.EventParticipant{}).Where("event_id = ?", event.ID).Count(&count).Error; err != nil {
		return err
	}
	if !event.HasCapacity(count) {
		return ErrEventFull
	}
	return tx.Create(&models.EventParticipant{EventID: event.ID, UserID: userID}).Error
}

// JoinedEvents returns the events userID participates in, filtered by query
// like ListEvents.
func (s *Store) JoinedEvents(ctx context.Context, userID uint, query string) ([]models.Event, error) {
	var events []models.Event
	q := s.db.WithContext(ctx).
		Joins("JOIN event_participants ON event_participants.event_id = events.id").
		Where("event_participants.user_id = ?", userID)
	err := search(q, query).
		Order("events.date IS NULL, events.date ASC, events.id ASC").
		Find(&events).Error
	if err != nil {
		return nil, translate("joined events", err)
	}
	return events, nil
}

// Dashboard summarises a user's activity.
type Dashboard struct {
	Created         []models.Event `json:"created"`
	Upcoming        []models.Event `json:"upcoming"`
	PendingRequests int64          `json:"pending_requests"`
}

func (s *Store) Dashboard(ctx context.Context, userID uint, now time.Time) (*Dashboard, error) {
	var d Dashboard
	db := s.db.WithContext(ctx)

	if err := db.Where("created_by = ?", userID).Order("id DESC").Find(&d.Created).Error; err != nil {
		return nil, translate("dashboard created", err)
	}

	err := db.Joins("JOIN event_participants ON event_participants.event_id = events.id").
		Where("event_participants.user_id = ? AND events.date IS NOT NULL AND events.date >= ?", userID, now).
		Order("events.date ASC").
		Find(&d.Upcoming).Error
	if err != nil {
		return nil, translate("dashboard upcoming", err)
	}

	err = db.Model(&models.EventRequest{}).
		Joins("JOIN events ON events.id = event_requests.event_id").
		Where("events.created_by = ? AND event_requests.status = ?", userID, models.RequestPending).
		Count(&d.PendingRequests).Error
	if err != nil {
		return nil, translate("dashboard requests", err)
	}
	return &d, nil
}
