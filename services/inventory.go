package services

import (
	"context"
	"errors"
	"fmt"

	"fibo_store/db"
	"fibo_store/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InventoryService adjusts available_quantity on behalf of the booking state
// machine. Every call runs on the caller's transaction repo and none of them
// is idempotent: the caller guarantees a single execution per transition.
type InventoryService struct {
	log *zap.Logger
}

func NewInventoryService(log *zap.Logger) *InventoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryService{log: log}
}

// Reserve takes every line off the shelf or none of them. Rows are locked in
// id order first; the decrement itself is guarded so stock can never go
// negative even without the lock. On error the caller must roll back.
func (s *InventoryService) Reserve(ctx context.Context, tx *db.Repo, lines []models.BookingLine) error {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	locked, err := tx.LockItems(ctx, ids)
	if err != nil {
		return err
	}

	for _, l := range lines {
		it, ok := locked[l.ItemID]
		if !ok {
			return &NotFoundError{Kind: "item", ID: l.ItemID}
		}
		if err := tx.DecrementStock(ctx, l.ItemID, l.Quantity); err != nil {
			if errors.Is(err, db.ErrStockShortfall) {
				return &StockError{ItemID: it.ID, Name: it.Name, Requested: l.Quantity, Available: it.AvailableQuantity}
			}
			return fmt.Errorf("reserve %s: %w", l.ItemID, err)
		}
	}
	s.log.Info("stock reserved", zap.Int("lines", len(lines)))
	return nil
}

// Release puts back what a rejected booking had reserved.
func (s *InventoryService) Release(ctx context.Context, tx *db.Repo, lines []models.BookingLine) error {
	if err := s.credit(ctx, tx, lines); err != nil {
		return err
	}
	s.log.Info("stock released", zap.Int("lines", len(lines)))
	return nil
}

// Restore puts back what a returned booking had handed out.
func (s *InventoryService) Restore(ctx context.Context, tx *db.Repo, lines []models.BookingLine) error {
	if err := s.credit(ctx, tx, lines); err != nil {
		return err
	}
	s.log.Info("stock restored", zap.Int("lines", len(lines)))
	return nil
}

func (s *InventoryService) credit(ctx context.Context, tx *db.Repo, lines []models.BookingLine) error {
	for _, l := range lines {
		if err := tx.IncrementStock(ctx, l.ItemID, l.Quantity); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: "item", ID: l.ItemID}
			}
			return fmt.Errorf("credit %s: %w", l.ItemID, err)
		}
	}
	return nil
}
