package db

import (
	"context"
	"fmt"

	"fibo_store/models"
)

func (r *Repo) LogStatusChange(ctx context.Context, sc *models.StatusChange) error {
	if err := r.DB.WithContext(ctx).Create(sc).Error; err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

// ListStatusChanges returns the trail of one booking, oldest first.
func (r *Repo) ListStatusChanges(ctx context.Context, bookingID string) ([]models.StatusChange, error) {
	var out []models.StatusChange
	err := r.DB.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
