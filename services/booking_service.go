package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fibo_store/auth"
	"fibo_store/db"
	"fibo_store/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxLineQuantity caps one item's quantity in a booking, after duplicate
// lines are merged.
const MaxLineQuantity = 10000

type BookingLineInput struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=10000"`
}

// CreateBookingInput is the checkout payload. Dates accept "2006-01-02" or RFC 3339.
type CreateBookingInput struct {
	UserEmail  string             `json:"user_email" validate:"omitempty,email"`
	UserName   string             `json:"user_name" validate:"max=255"`
	PickupDate string             `json:"pickup_date" validate:"required"`
	DueDate    string             `json:"due_date" validate:"required"`
	Purpose    string             `json:"purpose" validate:"max=2000"`
	Items      []BookingLineInput `json:"items" validate:"required,min=1,dive"`
}

// BookingService owns the booking lifecycle:
// Pending -> Approved | Rejected, Approved -> Returned.
type BookingService struct {
	repo     *db.Repo
	inv      *InventoryService
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewBookingService(repo *db.Repo, inv *InventoryService, log *zap.Logger) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{repo: repo, inv: inv, log: log, validate: newValidator(), now: time.Now}
}

// Create reserves stock for every line and stores a Pending booking, atomically.
func (s *BookingService) Create(ctx context.Context, actor auth.Principal, in CreateBookingInput) (*models.Booking, error) {
	in.UserEmail = strings.ToLower(strings.TrimSpace(in.UserEmail))
	if in.UserEmail == "" {
		in.UserEmail = actor.Email
	}
	if !actor.IsAdmin() && in.UserEmail != actor.Email {
		return nil, &ForbiddenError{Reason: "students can only book for themselves"}
	}
	if strings.TrimSpace(in.UserName) == "" {
		in.UserName = actor.Name
	}
	if err := check(s.validate, in); err != nil {
		return nil, err
	}

	pickup, err := parseDate(in.PickupDate)
	if err != nil {
		return nil, invalid("pickup_date", "must be a date (YYYY-MM-DD)")
	}
	due, err := parseDate(in.DueDate)
	if err != nil {
		return nil, invalid("due_date", "must be a date (YYYY-MM-DD)")
	}
	if due.Before(pickup) {
		return nil, invalid("due_date", "must not be before pickup_date")
	}
	for _, l := range in.Items {
		if !validID(l.ItemID) {
			return nil, &NotFoundError{Kind: "item", ID: l.ItemID}
		}
	}
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		ID:         uuid.NewString(),
		UserEmail:  in.UserEmail,
		UserName:   strings.TrimSpace(in.UserName),
		PickupDate: pickup,
		DueDate:    due,
		Purpose:    strings.TrimSpace(in.Purpose),
		Status:     models.StatusPending,
		Lines:      lines,
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		if err := s.inv.Reserve(ctx, tx, b.Lines); err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		return tx.LogStatusChange(ctx, &models.StatusChange{
			BookingID:  b.ID,
			ToStatus:   models.StatusPending,
			ActorEmail: actor.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("user_email", b.UserEmail),
		zap.Int("lines", len(b.Lines)),
	)
	return s.repo.FindBookingByID(ctx, b.ID)
}

// Transition moves a booking along one edge of the lifecycle. The status
// update is guarded on the current status inside the same transaction as the
// stock adjustment, so concurrent callers credit stock at most once.
func (s *BookingService) Transition(ctx context.Context, actor auth.Principal, bookingID, target, note string) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	to, ok := models.ParseBookingStatus(target)
	if !ok {
		return nil, invalid("status", "must be one of Pending, Approved, Rejected, Returned")
	}
	if !validID(bookingID) {
		return nil, &NotFoundError{Kind: "booking", ID: bookingID}
	}

	var from models.BookingStatus
	err := s.repo.Transaction(ctx, func(tx *db.Repo) error {
		b, err := tx.FindBookingForUpdate(ctx, bookingID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Kind: "booking", ID: bookingID}
		}
		if err != nil {
			return err
		}
		from = b.Status
		if !from.CanTransitionTo(to) {
			return &TransitionError{From: from, To: to}
		}

		err = tx.UpdateBookingStatus(ctx, b.ID, db.StatusUpdate{
			From: from, To: to, ReviewedBy: actor.Email, At: s.now(),
		})
		if errors.Is(err, db.ErrStatusChanged) {
			return &TransitionError{From: from, To: to}
		}
		if err != nil {
			return err
		}

		switch {
		case from == models.StatusPending && to == models.StatusRejected:
			err = s.inv.Release(ctx, tx, b.Lines)
		case from == models.StatusApproved && to == models.StatusReturned:
			err = s.inv.Restore(ctx, tx, b.Lines)
		}
		if err != nil {
			return err
		}

		var notePtr *string
		if n := strings.TrimSpace(note); n != "" {
			notePtr = &n
		}
		return tx.LogStatusChange(ctx, &models.StatusChange{
			BookingID:  b.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorEmail: actor.Email,
			Note:       notePtr,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking status changed",
		zap.String("booking_id", bookingID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("actor", actor.Email),
	)
	return s.repo.FindBookingByID(ctx, bookingID)
}

func (s *BookingService) Get(ctx context.Context, actor auth.Principal, id string) (*models.Booking, error) {
	if !validID(id) {
		return nil, &NotFoundError{Kind: "booking", ID: id}
	}
	b, err := s.repo.FindBookingByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "booking", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && b.UserEmail != actor.Email {
		return nil, &ForbiddenError{Reason: "not your booking"}
	}
	return b, nil
}

// ListMine lists one user's bookings. Students may only ask about themselves;
// an empty email means the caller.
func (s *BookingService) ListMine(ctx context.Context, actor auth.Principal, email, status string) ([]models.Booking, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = actor.Email
	}
	if !actor.IsAdmin() && email != actor.Email {
		return nil, &ForbiddenError{Reason: "students can only list their own bookings"}
	}
	st, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByUser(ctx, email, st)
}

func (s *BookingService) ListAll(ctx context.Context, actor auth.Principal, status string) ([]models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	st, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBookings(ctx, st)
}

func (s *BookingService) History(ctx context.Context, actor auth.Principal, id string) ([]models.StatusChange, error) {
	if !actor.IsAdmin() {
		return nil, errAdminOnly
	}
	if !validID(id) {
		return nil, &NotFoundError{Kind: "booking", ID: id}
	}
	if _, err := s.repo.FindBookingByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "booking", ID: id}
		}
		return nil, err
	}
	return s.repo.ListStatusChanges(ctx, id)
}

func statusFilter(s string) (models.BookingStatus, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	st, ok := models.ParseBookingStatus(s)
	if !ok {
		return "", invalid("status", "unknown status "+s)
	}
	return st, nil
}

// mergeLines folds repeated item ids into one line, keeping first-seen order.
// Inputs are already range checked, so the running sums cannot overflow.
func mergeLines(in []BookingLineInput) ([]models.BookingLine, error) {
	idx := map[string]int{}
	var out []models.BookingLine
	for _, l := range in {
		id := strings.TrimSpace(l.ItemID)
		if i, ok := idx[id]; ok {
			out[i].Quantity += l.Quantity
			if out[i].Quantity > MaxLineQuantity {
				return nil, invalid("items", fmt.Sprintf("total quantity for item %s must be at most %d", id, MaxLineQuantity))
			}
			continue
		}
		idx[id] = len(out)
		out = append(out, models.BookingLine{ItemID: id, Quantity: l.Quantity})
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
