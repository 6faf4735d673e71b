// Package catalog holds the read-side helpers behind the storefront and the
// admin dashboard. Everything here is a pure function over loaded rows.
package catalog

import (
	"encoding/json"
	"sort"
	"strings"

	"fibo_store/models"
)

// DefaultLowStockThreshold: items with fewer units than this are flagged.
const DefaultLowStockThreshold = 5

type Filter struct {
	Category string // exact match, case-insensitive; "" or "All" means any
	Query    string // substring of name or serialized specifications
}

func Apply(items []models.Item, f Filter) []models.Item {
	return Search(ByCategory(items, f.Category), f.Query)
}

func ByCategory(items []models.Item, category string) []models.Item {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if strings.EqualFold(it.Category, category) {
			out = append(out, it)
		}
	}
	return out
}

// Search matches q case-insensitively against the item name and the JSON
// rendering of its specifications, so "5v" finds {"voltage":"5V"}.
func Search(items []models.Item, q string) []models.Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), q) || strings.Contains(specsText(it), q) {
			out = append(out, it)
		}
	}
	return out
}

func specsText(it models.Item) string {
	b, err := json.Marshal(it.Specs())
	if err != nil {
		return ""
	}
	return strings.ToLower(string(b))
}

// Categories returns the distinct categories, sorted.
func Categories(items []models.Item) []string {
	seen := map[string]struct{}{}
	for _, it := range items {
		if it.Category != "" {
			seen[it.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func LowStock(items []models.Item, threshold int) []models.Item {
	var out []models.Item
	for _, it := range items {
		if it.AvailableQuantity < threshold {
			out = append(out, it)
		}
	}
	return out
}

func CountByStatus(bookings []models.Booking, st models.BookingStatus) int {
	n := 0
	for _, b := range bookings {
		if b.Status == st {
			n++
		}
	}
	return n
}

// Active are the bookings whose equipment is currently handed out.
func Active(bookings []models.Booking) []models.Booking {
	var out []models.Booking
	for _, b := range bookings {
		if b.Status == models.StatusApproved {
			out = append(out, b)
		}
	}
	return out
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalItems    int                            `json:"total_items"`
	TotalUnits    int                            `json:"total_units"`
	LowStockItems int                            `json:"low_stock_items"`
	PendingCount  int64                          `json:"pending_count"`
	ByStatus      map[models.BookingStatus]int64 `json:"bookings_by_status"`
}

func Summarize(items []models.Item, counts map[models.BookingStatus]int64, threshold int) Stats {
	s := Stats{
		TotalItems:    len(items),
		LowStockItems: len(LowStock(items, threshold)),
		PendingCount:  counts[models.StatusPending],
		ByStatus:      map[models.BookingStatus]int64{},
	}
	for _, it := range items {
		s.TotalUnits += it.AvailableQuantity
	}
	for _, st := range []models.BookingStatus{models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusReturned} {
		s.ByStatus[st] = counts[st]
	}
	return s
}
