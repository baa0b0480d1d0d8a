package store

import (
	"context"
	"time"

	"github.com/CUknot/runtogether/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PendingRequests lists pending requests on events created by creatorID,
// newest first, with the event and requester profile loaded.
func (s *Store) PendingRequests(ctx context.Context, creatorID uint) ([]models.EventRequest, error) {
	var requests []models.EventRequest
	err := s.db.WithContext(ctx).
		Joins("JOIN events ON events.id = event_requests.event_id").
		Where("events.created_by = ? AND event_requests.status = ?", creatorID, models.RequestPending).
		Preload("Event").
		Order("event_requests.created_at DESC, event_requests.id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, translate("pending requests", err)
	}

	ids := make([]uint, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.UserID)
	}
	profiles, err := s.profilesByUser(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		requests[i].Profile = profiles[requests[i].UserID]
	}
	return requests, nil
}

// RespondToRequest accepts or rejects a pending request on behalf of the
// event creator. Accepting updates the request and inserts the participant
// in a single transaction.
func (s *Store) RespondToRequest(ctx context.Context, requestID, creatorID uint, accept bool, now time.Time) (*models.EventRequest, error) {
	var req models.EventRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, requestID).Error; err != nil {
			return err
		}

		var event models.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, req.EventID).Error; err != nil {
			return err
		}
		if event.CreatedBy != creatorID {
			return ErrForbidden
		}
		if req.Status != models.RequestPending {
			return ErrNotPending
		}

		req.Status = models.RequestRejected
		if accept {
			req.Status = models.RequestAccepted
			if err := addParticipant(tx, &event, req.UserID); err != nil {
				return err
			}
		}
		req.RespondedAt = &now

		res := tx.Model(&models.EventRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]any{"status": req.Status, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotPending
		}
		req.Event = &event
		return nil
	})
	if err != nil {
		return nil, translate("respond to request", err)
	}
	return &req, nil
}
