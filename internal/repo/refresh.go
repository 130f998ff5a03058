package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/smartconnect/auth-service/internal/models"
)

var ErrTokenRotated = errors.New("refresh token already rotated")

// FindRefreshByToken returns (nil, nil) when no ledger row matches.
func (r *GormRepo) FindRefreshByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	err := r.DB.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *GormRepo) CreateRefresh(ctx context.Context, record *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(record).Error
}

// RotateRefresh revokes the old ledger row and inserts the replacement in a
// single transaction. The guarded update keeps two concurrent refresh calls
// from both succeeding on the same token: whichever commits second sees
// zero rows updated and fails with ErrTokenRotated.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldToken string, newRecord *models.RefreshToken) error {
	now := time.Now()
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token = ? AND revoked = ?", oldToken, false).
			Updates(map[string]interface{}{"revoked": true, "revoked_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenRotated
		}
		return tx.Create(newRecord).Error
	})
}

// RevokeRefresh marks the matching un-revoked row revoked. Returns the
// number of rows touched so logout can tell whether anything happened.
func (r *GormRepo) RevokeRefresh(ctx context.Context, token string) (int64, error) {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ? AND revoked = ?", token, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) DeleteRevokedRefreshBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("revoked = ? AND revoked_at < ?", true, cutoff).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
