package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Int64Array stores a list of ids as JSON in a text column.
type Int64Array []int64

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *Int64Array) Scan(value interface{}) error {
	if value == nil {
		*a = Int64Array{}
		return nil
	}
	raw, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Int64Array")
		}
		raw = []byte(str)
	}
	return json.Unmarshal(raw, a)
}

// PurchaseRecord is one entry of the purchase ledger kept in the relational
// database. It records every purchase request and whether the preference
// update behind it succeeded.
type PurchaseRecord struct {
	ID         string         `gorm:"type:text;primaryKey" json:"id"`
	BuyerEmail string         `gorm:"type:text;not null;index:idx_purchases_buyer" json:"buyer_email"`
	ProductIDs Int64Array     `gorm:"type:text" json:"product_ids"`
	Status     PurchaseStatus `gorm:"type:text;index" json:"status"`
	ErrorMsg   string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_purchases_buyer" json:"created_at"`
}

// TableName returns the database table name for PurchaseRecord.
func (PurchaseRecord) TableName() string {
	return "purchases"
}
