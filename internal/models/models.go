package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SerialUnit is one physical, individually trackable item. Its serial
// number is unique across the whole store and its owning SKU never changes.
type SerialUnit struct {
	ID        int64     `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	SKUID     int64     `db:"sku_id" json:"sku_id"`
	Status    string    `db:"status" json:"status"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Serial unit statuses. Allowed transitions: available -> hold,
// hold -> sold, hold -> available. Sold is terminal.
const (
	UnitStatusAvailable = "available"
	UnitStatusHold      = "hold"
	UnitStatusSold      = "sold"
)

// SKU is a sellable variant of a product model.
type SKU struct {
	ID           int64        `db:"id" json:"id"`
	SPUID        int64        `db:"spu_id" json:"spu_id"`
	SPUModelSlug string       `db:"spu_model_slug" json:"spu_model_slug"`
	Name         string       `db:"name" json:"name"`
	PriceBase    int64        `db:"price_base" json:"price_base"`
	PriceSpecial int64        `db:"price_special" json:"price_special"`
	Status       string       `db:"status" json:"status"`
	Attributes   AttributeSet `db:"attributes" json:"attributes"`
}

// SKU statuses
const (
	SKUStatusNewly   = "newly"
	SKUStatusSelling = "selling"
	SKUStatusDeleted = "deleted"
)

// Attribute is one key/value tuple in a SKU's attribute set.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
	Name  string `json:"name,omitempty"`
}

// AttributeSet is the full attribute tuple list of one SKU. It is stored
// as a jsonb column.
type AttributeSet []Attribute

// Value implements driver.Valuer for jsonb storage
func (a AttributeSet) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for jsonb storage
func (a *AttributeSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into AttributeSet", src)
	}
}

// Product is the catalog entry a cart line points at.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	ProductStatusActive  = "active"
	ProductStatusDeleted = "deleted"
)

// Cart is the single cart document of one user. UserID is unique in the
// store; an empty line list is a valid state, the document is never deleted.
type Cart struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Lines     []CartLine `json:"products"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// CartLine is one (product, SKU, quantity) entry. Quantity is always > 0
// for a persisted line; at most one line exists per (ProductID, SKUID) pair.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	SKUID     int64 `json:"sku_id"`
	Quantity  int   `json:"quantity"`
}

// AddUnitsResult reports the outcome of a bulk serial insertion. Numbers
// already present in the store are rejected, bucketed by whether they have
// been sold. Partial additions succeed.
type AddUnitsResult struct {
	Added    []string        `json:"added"`
	Rejected RejectedNumbers `json:"rejected"`
}

// RejectedNumbers lists serial numbers that could not be added. Numbers
// currently on hold are reported under AlreadyAvailable: they exist in the
// store and have not been sold.
type RejectedNumbers struct {
	AlreadySold      []string `json:"already_sold"`
	AlreadyAvailable []string `json:"already_available"`
}
