package local

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

func find[T any](ctx context.Context, db *gorm.DB, order string, query string, args ...any) ([]T, error) {
	var out []T
	q := db.WithContext(ctx).Where(query, args...)
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func take[T any](ctx context.Context, db *gorm.DB, order string, query string, args ...any) (T, error) {
	var out T
	q := db.WithContext(ctx).Where(query, args...)
	if order != "" {
		q = q.Order(order)
	}
	err := q.Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, models.ErrNotFound
	}
	return out, err
}

// markSynced only flips rows still at the uploaded revision, so an edit made
// while the upload was in flight stays dirty.
func markSynced[T any](ctx context.Context, db *gorm.DB, id any, revision int64) error {
	return db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND revision = ?", id, revision).
		Update("synced", true).Error
}

func markUnsynced[T any](ctx context.Context, db *gorm.DB, id any) error {
	return db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		Update("synced", false).Error
}

func remove[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (int64, error) {
	res := db.WithContext(ctx).Where(query, args...).Delete(new(T))
	return res.RowsAffected, res.Error
}
