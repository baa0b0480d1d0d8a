package store

import (
	"context"

	"github.com/CUknot/runtogether/models"
)

// Posts returns up to limit forum posts newest first with their authors.
// When before is non-zero only posts with a smaller id are returned.
func (s *Store) Posts(ctx context.Context, before uint, limit int) ([]models.Post, error) {
	q := s.db.WithContext(ctx).Model(&models.Post{})
	if before > 0 {
		q = q.Where("id < ?", before)
	}
	var posts []models.Post
	if err := q.Order("created_at DESC, id DESC").Limit(ClampLimit(limit)).Find(&posts).Error; err != nil {
		return nil, translate("posts", err)
	}

	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	profiles, err := s.profilesByUser(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Profile = profiles[posts[i].UserID]
	}
	return posts, nil
}

// CreatePost stores a forum post and returns it with its author.
func (s *Store) CreatePost(ctx context.Context, userID uint, content string) (*models.Post, error) {
	post := models.Post{UserID: userID, Content: content}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, translate("create post", err)
	}
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	post.Profile = profile
	return &post, nil
}
