package entities

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// UserRepository manages user profiles and credentials. A user row is never
// deleted by reconciliation.
type UserRepository struct {
	sc *SyncContext
	*binding[models.User]
}

func NewUserRepository(sc *SyncContext) *UserRepository {
	r := &UserRepository{sc: sc}
	r.binding = &binding[models.User]{
		sc:     sc,
		kind:   models.EntityUser,
		keep:   reconcile.KeepLatest,
		logger: sc.logger().Named("svc.users"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.User, error) {
			return store.ListUsers(ctx, ownerID)
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.User, error) {
			return store.ListUnsyncedUsers(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, u models.User) error {
			return store.MarkUserSynced(ctx, u)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, u models.User) error {
			return store.MarkUserUnsynced(ctx, u.ID)
		},
		encode: remote.EncodeUser,
		decode: remote.DecodeUser,
		insert: func(ctx context.Context, store *local.Store, u models.User) error {
			return store.SaveUser(ctx, &u, local.OriginRemote)
		},
		remove: func(ctx context.Context, store *local.Store, _ string, u models.User) error {
			return store.DeleteUser(ctx, u.ID)
		},
		keepLocal: true,
	}
	return r
}

// Save creates or edits a user. A non-empty password replaces the stored hash.
func (r *UserRepository) Save(ctx context.Context, u *models.User, password string) error {
	if u.Role == "" {
		u.Role = models.RoleOwner
	}
	if err := r.sc.validate(u); err != nil {
		return err
	}

	existing, err := r.sc.Local.GetUser(ctx, u.ID)
	switch {
	case err == nil:
		u.SyncMeta = existing.SyncMeta
		u.PasswordHash = existing.PasswordHash
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}

	if err := r.sc.Local.SaveUser(ctx, u, local.OriginLocal); err != nil {
		return err
	}
	r.schedulePush()
	return nil
}

// Get loads a user from the local store.
func (r *UserRepository) Get(ctx context.Context, id string) (models.User, error) {
	return r.sc.Local.GetUser(ctx, id)
}

// Authenticate checks a password against the stored hash. A user unknown
// locally is looked up remotely when online, so that a fresh install can sign
// in before its first restore; the fetched row is kept once verified.
func (r *UserRepository) Authenticate(ctx context.Context, id, password string) (models.User, error) {
	fetched := false
	u, err := r.sc.Local.GetUser(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if u, err = r.fetchUser(ctx, id); err != nil {
			return models.User{}, err
		}
		fetched = true
	case err != nil:
		return models.User{}, err
	}

	if u.PasswordHash == "" {
		return models.User{}, models.ErrNotAuthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, models.ErrNotAuthenticated
	}
	if fetched {
		if err := r.sc.Local.SaveUser(ctx, &u, local.OriginRemote); err != nil {
			return models.User{}, err
		}
	}
	return u, nil
}

// fetchUser reads the remote profile of id. Offline or missing users are not
// authenticated.
func (r *UserRepository) fetchUser(ctx context.Context, id string) (models.User, error) {
	if id == "" || !r.sc.Online() {
		return models.User{}, models.ErrNotAuthenticated
	}
	docs, err := r.sc.Remote.FetchAll(ctx, models.EntityUser, id)
	if err != nil {
		return models.User{}, fmt.Errorf("fetch user %s: %w", id, err)
	}
	for _, doc := range docs {
		if doc.ID != id {
			continue
		}
		u, err := remote.DecodeUser(doc)
		if err != nil {
			return models.User{}, err
		}
		return u, nil
	}
	return models.User{}, models.ErrNotAuthenticated
}
