package local

import (
	"context"
	"fmt"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// SaveUser upserts a user.
func (s *Store) SaveUser(ctx context.Context, u *models.User, origin Origin) error {
	s.stamp(&u.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return take[models.User](ctx, s.db, "", "id = ?", id)
}

// ListUsers returns the owner's own user record as a one-element set.
func (s *Store) ListUsers(ctx context.Context, ownerID string) ([]models.User, error) {
	return find[models.User](ctx, s.db, "", "id = ?", ownerID)
}

// ListUnsyncedUsers returns the owner's user record when dirty.
func (s *Store) ListUnsyncedUsers(ctx context.Context, ownerID string) ([]models.User, error) {
	return find[models.User](ctx, s.db, "", "id = ? AND synced = ?", ownerID, false)
}

// MarkUserSynced flips the dirty flag if the row is still at u's revision.
func (s *Store) MarkUserSynced(ctx context.Context, u models.User) error {
	return markSynced[models.User](ctx, s.db, u.ID, u.Revision)
}

// MarkUserUnsynced re-queues a user for upload.
func (s *Store) MarkUserUnsynced(ctx context.Context, id string) error {
	return markUnsynced[models.User](ctx, s.db, id)
}

// DeleteUser removes a user row.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := remove[models.User](ctx, s.db, "id = ?", id)
	return err
}
