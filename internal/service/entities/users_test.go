package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/repository/remote/memory"
)

func TestUserRepository_Authenticate(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, memory.New(), firstDay)

	u := models.User{ID: testOwner, Name: "Owner"}
	require.NoError(t, d.repos.Users.Save(ctx, &u, "s3cret"))
	assert.Equal(t, models.RoleOwner, u.Role)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	got, err := d.repos.Users.Authenticate(ctx, testOwner, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Owner", got.Name)

	_, err = d.repos.Users.Authenticate(ctx, testOwner, "wrong")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	_, err = d.repos.Users.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	t.Run("profile edit keeps the password", func(t *testing.T) {
		edit := models.User{ID: testOwner, Name: "Owner Renamed"}
		require.NoError(t, d.repos.Users.Save(ctx, &edit, ""))

		_, err := d.repos.Users.Authenticate(ctx, testOwner, "s3cret")
		assert.NoError(t, err)
	})
}

func TestUserRepository_NeverDeletedByReconciliation(t *testing.T) {
	ctx := context.Background()
	shared := memory.New()
	d := newDevice(t, shared, firstDay)

	u := models.User{ID: testOwner, Name: "Owner"}
	require.NoError(t, d.repos.Users.Save(ctx, &u, "s3cret"))
	d.uploadAll(t)
	require.Equal(t, []string{testOwner}, remoteIDs(t, shared, models.EntityUser))

	require.NoError(t, shared.Delete(ctx, models.EntityUser, testOwner, testOwner))
	res, err := d.repos.Users.Download(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedLocal)

	_, err = d.repos.Users.Get(ctx, testOwner)
	assert.NoError(t, err)
}

func TestUserRepository_AuthenticateOnFreshDevice(t *testing.T) {
	ctx := context.Background()
	shared := memory.New()
	a := newDevice(t, shared, firstDay)

	u := models.User{ID: testOwner, Name: "Owner"}
	require.NoError(t, a.repos.Users.Save(ctx, &u, "s3cret"))
	a.uploadAll(t)

	b := newDevice(t, shared, firstDay)

	t.Run("offline", func(t *testing.T) {
		b.net.offline.Store(true)
		defer b.net.offline.Store(false)

		_, err := b.repos.Users.Authenticate(ctx, testOwner, "s3cret")
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	})

	t.Run("wrong password stores nothing", func(t *testing.T) {
		_, err := b.repos.Users.Authenticate(ctx, testOwner, "wrong")
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)

		_, err = b.store.GetUser(ctx, testOwner)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("remote profile is fetched and kept", func(t *testing.T) {
		got, err := b.repos.Users.Authenticate(ctx, testOwner, "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "Owner", got.Name)

		stored, err := b.store.GetUser(ctx, testOwner)
		require.NoError(t, err)
		assert.True(t, stored.Synced)

		b.net.offline.Store(true)
		defer b.net.offline.Store(false)
		_, err = b.repos.Users.Authenticate(ctx, testOwner, "s3cret")
		assert.NoError(t, err)
	})
}
