package services

import (
	"errors"
	"fmt"
	"strings"

	"fibo_store/models"

	"github.com/google/uuid"
)

// Sentinels; every typed error below unwraps to one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
)

type NotFoundError struct {
	Kind string // "item", "booking", "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type TransitionError struct {
	From, To models.BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type StockError struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s: available %d, requested %d", e.Name, e.Available, e.Requested)
}
func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type ConflictError struct{ Reason string }

func (e *ConflictError) Error() string { return e.Reason }
func (e *ConflictError) Unwrap() error { return ErrConflict }

type ForbiddenError struct{ Reason string }

func (e *ForbiddenError) Error() string { return e.Reason }
func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct{ Fields []FieldError }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

var errAdminOnly = &ForbiddenError{Reason: "admin role required"}

// validID reports whether id can name a row at all; malformed ids are
// answered as not found without a query.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
