package models

import "time"

// StatusChange is the audit trail of a booking. The creation row has an empty FromStatus.
type StatusChange struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	BookingID  string        `gorm:"type:uuid;index;not null" json:"booking_id"`
	FromStatus BookingStatus `gorm:"size:20" json:"from_status,omitempty"`
	ToStatus   BookingStatus `gorm:"size:20;not null" json:"to_status"`
	ActorEmail string        `gorm:"size:255;not null" json:"actor_email"`
	Note       *string       `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (StatusChange) TableName() string { return "booking_status_changes" }
