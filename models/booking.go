// models/booking.go
package models

import (
	"strings"
	"time"
)

const (
	BookingTable     = "bookings"
	BookingLineTable = "booking_lines"
)

// BookingStatus is the lifecycle state of a requisition.
type BookingStatus string

const (
	StatusPending  BookingStatus = "Pending"
	StatusApproved BookingStatus = "Approved"
	StatusRejected BookingStatus = "Rejected"
	StatusReturned BookingStatus = "Returned"
)

// Pending -> Approved | Rejected, Approved -> Returned. Nothing leaves Rejected or Returned.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusReturned},
}

var allStatuses = []BookingStatus{StatusPending, StatusApproved, StatusRejected, StatusReturned}

// ParseBookingStatus accepts any casing ("approved", "APPROVED").
func ParseBookingStatus(s string) (BookingStatus, bool) {
	s = strings.TrimSpace(s)
	for _, st := range allStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

func (s BookingStatus) String() string { return string(s) }

func (s BookingStatus) IsTerminal() bool { return len(bookingTransitions[s]) == 0 }

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Holds reports whether bookings in this status still keep stock out of the shelf.
func (s BookingStatus) Holds() bool { return s == StatusPending || s == StatusApproved }

type Booking struct {
	ID         string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserEmail  string        `gorm:"size:255;index;not null" json:"user_email"`
	UserName   string        `gorm:"size:255;not null" json:"user_name"`
	PickupDate time.Time     `gorm:"not null" json:"pickup_date"`
	DueDate    time.Time     `gorm:"not null" json:"due_date"`
	Purpose    string        `gorm:"type:text" json:"purpose"`
	Status     BookingStatus `gorm:"size:20;index;not null;default:'Pending'" json:"status"`

	ReviewedBy *string    `gorm:"size:255" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`

	Lines     []BookingLine `gorm:"foreignKey:BookingID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"items"`
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BookingLine is immutable once the booking exists.
type BookingLine struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	BookingID string `gorm:"type:uuid;index;not null" json:"-"`
	ItemID    string `gorm:"type:uuid;index;not null" json:"item_id"`
	Item      *Item  `gorm:"foreignKey:ItemID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"item,omitempty"`
	Quantity  int    `gorm:"not null;check:chk_booking_lines_quantity,quantity >= 1" json:"quantity"`
}

func (Booking) TableName() string     { return BookingTable }
func (BookingLine) TableName() string { return BookingLineTable }
