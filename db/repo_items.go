package db

import (
	"context"
	"errors"
	"sort"

	"fibo_store/models"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrItemInUse: a booking line (any status) still references the item.
	ErrItemInUse = errors.New("item is referenced by an existing booking")
	// ErrStockShortfall: the guarded decrement matched no row.
	ErrStockShortfall = errors.New("insufficient stock")
	// ErrBadQuantity: stock moves by a positive amount only.
	ErrBadQuantity = errors.New("stock adjustment must be positive")
)

// itemColumns are the columns an admin edit may touch. available_quantity is
// included: item edits are last-write-wins.
var itemColumns = []string{
	"name", "category", "description", "unit", "specifications",
	"available_quantity", "image_url", "image_key", "updated_at",
}

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	return mapWriteErr(r.DB.WithContext(ctx).Create(it).Error)
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repo) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.DB.WithContext(ctx).Order("name ASC, id ASC").Find(&items).Error
	return items, err
}

func (r *Repo) FindItemsByIDs(ctx context.Context, ids []string) ([]models.Item, error) {
	var items []models.Item
	if len(ids) == 0 {
		return items, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// LockItems takes row locks on the given items in ascending id order so two
// carts touching the same items cannot deadlock. Missing ids are simply absent
// from the result.
func (r *Repo) LockItems(ctx context.Context, ids []string) (map[string]models.Item, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var items []models.Item
	if len(sorted) > 0 {
		if err := r.DB.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", sorted).
			Order("id ASC").
			Find(&items).Error; err != nil {
			return nil, err
		}
	}
	out := make(map[string]models.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// UpdateItem writes every editable column of it. Returns gorm.ErrRecordNotFound
// when no row has it.ID.
func (r *Repo) UpdateItem(ctx context.Context, it *models.Item) error {
	res := r.DB.WithContext(ctx).Model(&models.Item{ID: it.ID}).
		Select(itemColumns).
		Updates(it)
	if res.Error != nil {
		return mapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteItem refuses while any booking line references the item, whatever the
// booking's status. The FK RESTRICT catches the race between check and delete.
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it models.Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&it, "id = ?", id).Error; err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&models.BookingLine{}).
			Where("item_id = ?", id).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrItemInUse
		}
		return mapWriteErr(tx.Delete(&models.Item{}, "id = ?", id).Error)
	})
}

// DecrementStock is the only path that takes stock off the shelf.
func (r *Repo) DecrementStock(ctx context.Context, itemID string, qty int) error {
	if qty <= 0 {
		return ErrBadQuantity
	}
	res := r.DB.WithContext(ctx).Model(&models.Item{}).
		Where("id = ? AND available_quantity >= ?", itemID, qty).
		Update("available_quantity", gorm.Expr("available_quantity - ?", qty))
	if res.Error != nil {
		return mapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStockShortfall
	}
	return nil
}

func (r *Repo) IncrementStock(ctx context.Context, itemID string, qty int) error {
	if qty <= 0 {
		return ErrBadQuantity
	}
	res := r.DB.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("available_quantity", gorm.Expr("available_quantity + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// mapWriteErr turns Postgres constraint violations into repo errors.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return ErrItemInUse
		case pgerrcode.CheckViolation:
			return ErrStockShortfall
		}
	}
	return err
}
