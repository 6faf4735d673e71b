package db

import (
	"context"
	"strings"

	"fibo_store/models"

	"gorm.io/gorm"
)

// AdminItemRow is an item plus the quantity currently held by open bookings.
type AdminItemRow struct {
	models.Item
	ReservedQuantity int  `json:"reserved_quantity"`
	LowStock         bool `json:"low_stock" gorm:"-"`
}

type AdminItemsQuery struct {
	Q         string // case-insensitive match on name or category
	Category  string
	LowStock  bool // only items with available_quantity < Threshold
	Threshold int
	Page      int
	Size      int
}

type PagedAdminItems struct {
	Total int64          `json:"total"`
	Items []AdminItemRow `json:"items"`
}

func (r *Repo) ListItemsFiltered(ctx context.Context, q AdminItemsQuery) (*PagedAdminItems, error) {
	page, size := normalizePage(q.Page, q.Size, 200)
	db := r.DB.WithContext(ctx)

	// quantities still out per item: Pending (reserved) and Approved (handed out)
	held := db.
		Table(models.BookingLineTable+" l").
		Select("l.item_id, SUM(l.quantity) AS reserved_quantity").
		Joins("JOIN "+models.BookingTable+" b ON b.id = l.booking_id").
		Where("b.status IN ?", []models.BookingStatus{models.StatusPending, models.StatusApproved}).
		Group("l.item_id")

	base := db.Table(models.ItemTable + " i")
	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		base = base.Where("LOWER(i.name) LIKE ? OR LOWER(i.category) LIKE ?", pat, pat)
	}
	if c := strings.TrimSpace(q.Category); c != "" {
		base = base.Where("i.category = ?", c)
	}
	if q.LowStock {
		base = base.Where("i.available_quantity < ?", q.Threshold)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []AdminItemRow
	if err := base.Session(&gorm.Session{}).
		Select("i.*, COALESCE(h.reserved_quantity, 0) AS reserved_quantity").
		Joins("LEFT JOIN (?) AS h ON h.item_id = i.id", held).
		Order("i.name ASC, i.id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].LowStock = rows[i].AvailableQuantity < q.Threshold
	}
	return &PagedAdminItems{Total: total, Items: rows}, nil
}
