package repo

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smartconnect/auth-service/internal/models"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}))

	return New(db)
}

func seedRefresh(t *testing.T, r *GormRepo, token string, expiresAt time.Time) *models.RefreshToken {
	t.Helper()

	record := &models.RefreshToken{
		Token:     token,
		UserID:    uuid.New(),
		ExpiresAt: expiresAt,
	}
	require.NoError(t, r.CreateRefresh(context.Background(), record))
	return record
}

func TestFindRefreshByToken(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	seedRefresh(t, r, "tok-1", time.Now().Add(time.Hour))

	got, err := r.FindRefreshByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token)
	assert.False(t, got.Revoked)

	missing, err := r.FindRefreshByToken(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRotateRefresh_SingleUse(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	old := seedRefresh(t, r, "old-token", time.Now().Add(time.Hour))

	replacement := &models.RefreshToken{
		Token:     "new-token",
		UserID:    old.UserID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, r.RotateRefresh(ctx, "old-token", replacement))

	rotated, err := r.FindRefreshByToken(ctx, "old-token")
	require.NoError(t, err)
	require.NotNil(t, rotated)
	assert.True(t, rotated.Revoked)
	require.NotNil(t, rotated.RevokedAt)

	fresh, err := r.FindRefreshByToken(ctx, "new-token")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.False(t, fresh.Revoked)

	// second rotation of the same token must fail and insert nothing
	err = r.RotateRefresh(ctx, "old-token", &models.RefreshToken{
		Token:     "sneaky-token",
		UserID:    old.UserID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrTokenRotated)

	gone, err := r.FindRefreshByToken(ctx, "sneaky-token")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRevokeRefresh(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	seedRefresh(t, r, "tok", time.Now().Add(time.Hour))

	n, err := r.RevokeRefresh(ctx, "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// already revoked and unknown tokens touch nothing
	n, err = r.RevokeRefresh(ctx, "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = r.RevokeRefresh(ctx, "unknown")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestDeleteExpiredRefresh(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	seedRefresh(t, r, "expired", time.Now().Add(-time.Hour))
	seedRefresh(t, r, "live", time.Now().Add(time.Hour))

	n, err := r.DeleteExpiredRefresh(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	gone, err := r.FindRefreshByToken(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := r.FindRefreshByToken(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestDeleteRevokedRefreshBefore(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	old := seedRefresh(t, r, "old-revoked", time.Now().Add(time.Hour))
	longAgo := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, r.DB.Model(old).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": longAgo}).Error)

	recent := seedRefresh(t, r, "recent-revoked", time.Now().Add(time.Hour))
	_, err := r.RevokeRefresh(ctx, recent.Token)
	require.NoError(t, err)

	seedRefresh(t, r, "live", time.Now().Add(time.Hour))

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	n, err := r.DeleteRevokedRefreshBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	gone, err := r.FindRefreshByToken(ctx, "old-revoked")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := r.FindRefreshByToken(ctx, "recent-revoked")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
