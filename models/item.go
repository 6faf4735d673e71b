// models/item.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

const ItemTable = "items"

const (
	DefaultCategory = "General"
	DefaultUnit     = "pcs"
)

// Specs is free-form display metadata ("voltage": "5V", "color": "red").
type Specs map[string]string

type Item struct {
	ID                string                    `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string                    `gorm:"size:200;not null" json:"name"`
	Category          string                    `gorm:"size:100;index;not null;default:'General'" json:"category"`
	Description       string                    `gorm:"type:text" json:"description,omitempty"`
	Unit              string                    `gorm:"size:50;not null;default:'pcs'" json:"unit"`
	Specifications    datatypes.JSONType[Specs] `gorm:"not null;default:'{}'" json:"specifications"`
	AvailableQuantity int                       `gorm:"not null;default:0;check:chk_items_available_quantity,available_quantity >= 0" json:"available_quantity"`
	ImageURL          string                    `gorm:"type:text" json:"image_url,omitempty"`
	ImageKey          string                    `gorm:"size:255" json:"-"` // object store key behind ImageURL
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

func (Item) TableName() string { return ItemTable }

// Specs returns a copy of the specification map, never nil.
func (it *Item) Specs() Specs {
	out := Specs{}
	for k, v := range it.Specifications.Data() {
		out[k] = v
	}
	return out
}

func (it *Item) SetSpecs(s Specs) {
	if s == nil {
		s = Specs{}
	}
	it.Specifications = datatypes.NewJSONType(s)
}
