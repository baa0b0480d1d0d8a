package store

import (
	"context"

	"github.com/CUknot/runtogether/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateUser inserts the account and its empty profile together.
func (s *Store) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	user := models.User{Email: email, Password: password}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		profile := models.Profile{UserID: user.ID}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		user.Profile = &profile
		return nil
	})
	if err != nil {
		return nil, translate("create user", err)
	}
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate("user by email", err)
	}
	return &user, nil
}

func (s *Store) Profile(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, translate("profile", err)
	}
	return &profile, nil
}

// UpsertProfile writes every editable field of p.
func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "name", "age", "bio", "running_frequency",
			"experience_level", "preferred_distance", "avatar_url", "updated_at",
		}),
	}).Create(p).Error
	return translate("upsert profile", err)
}

// Profiles loads the profiles of ids; unknown ids are skipped.
func (s *Store) Profiles(ctx context.Context, ids []uint) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Order("user_id").Find(&profiles).Error; err != nil {
		return nil, translate("profiles", err)
	}
	return profiles, nil
}

// profilesByUser loads the profiles of ids keyed by user id.
func (s *Store) profilesByUser(ctx context.Context, ids []uint) (map[uint]*models.Profile, error) {
	seen := make(map[uint]bool, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	profiles, err := s.Profiles(ctx, unique)
	if err != nil {
		return nil, err
	}
	byUser := make(map[uint]*models.Profile, len(profiles))
	for i := range profiles {
		byUser[profiles[i].UserID] = &profiles[i]
	}
	return byUser, nil
}
