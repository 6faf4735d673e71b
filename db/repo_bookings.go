package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"fibo_store/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatusChanged: the guarded status update lost a race with another transition.
var ErrStatusChanged = errors.New("booking status changed concurrently")

func withLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).Preload("Lines.Item")
}

// CreateBooking inserts the booking together with its lines.
func (r *Repo) CreateBooking(ctx context.Context, b *models.Booking) error {
	b.UserEmail = strings.ToLower(b.UserEmail)
	return r.DB.WithContext(ctx).Create(b).Error
}

func (r *Repo) FindBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := withLines(r.DB.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBookingForUpdate locks the booking row; lines are loaded without items.
func (r *Repo) FindBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).
		Where("booking_id = ?", id).
		Order("id ASC").
		Find(&b.Lines).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookingsByUser returns one user's bookings oldest first. status "" means all.
func (r *Repo) ListBookingsByUser(ctx context.Context, email string, status models.BookingStatus) ([]models.Booking, error) {
	q := withLines(r.DB.WithContext(ctx)).
		Where("user_email = ?", strings.ToLower(email))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var bs []models.Booking
	err := q.Order("created_at ASC, id ASC").Find(&bs).Error
	return bs, err
}

func (r *Repo) ListBookings(ctx context.Context, status models.BookingStatus) ([]models.Booking, error) {
	q := withLines(r.DB.WithContext(ctx))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var bs []models.Booking
	err := q.Order("created_at ASC, id ASC").Find(&bs).Error
	return bs, err
}

type StatusUpdate struct {
	From, To   models.BookingStatus
	ReviewedBy string
	At         time.Time
}

// UpdateBookingStatus moves the booking only if it is still in u.From.
// Review fields are stamped when leaving Pending, returned_at when reaching Returned.
func (r *Repo) UpdateBookingStatus(ctx context.Context, id string, u StatusUpdate) error {
	fields := map[string]any{
		"status":     u.To,
		"updated_at": u.At,
	}
	if u.From == models.StatusPending {
		fields["reviewed_by"] = u.ReviewedBy
		fields["reviewed_at"] = u.At
	}
	if u.To == models.StatusReturned {
		fields["returned_at"] = u.At
	}
	res := r.DB.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, u.From).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

type StatusCount struct {
	Status models.BookingStatus `json:"status"`
	Count  int64                `json:"count"`
}

func (r *Repo) CountBookingsByStatus(ctx context.Context) (map[models.BookingStatus]int64, error) {
	var rows []StatusCount
	if err := r.DB.WithContext(ctx).Model(&models.Booking{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[models.BookingStatus]int64{}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
