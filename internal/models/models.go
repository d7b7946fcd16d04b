// Package models provides the wire and domain models for the game service.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Company is a player-controlled company. Cash only changes through the
// service.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Cash int64  `json:"cash"`
}

// Good is an immutable catalog entry.
type Good struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// InventoryItem is a company's holding of one good. Reserved is the part
// earmarked against open sell orders.
type InventoryItem struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	GoodID    int64  `json:"good_id"`
	Quantity  int64  `json:"quantity"`
	Reserved  int64  `json:"reserved"`
	GoodName  string `json:"good_name,omitempty"`
}

// Available returns quantity minus reserved. It is negative only when the
// snapshot is inconsistent.
func (i InventoryItem) Available() int64 {
	return i.Quantity - i.Reserved
}

// Consistent reports whether reserved does not exceed quantity.
func (i InventoryItem) Consistent() bool {
	return i.Reserved <= i.Quantity
}

// SimulationSpeed is the server-side clock multiplier.
type SimulationSpeed struct {
	Multiplier decimal.Decimal `json:"speed_multiplier"`
}

// DefaultSpeedPresets are the multipliers offered by the speed control.
var DefaultSpeedPresets = []float64{0.25, 1, 5, 10, 60}

// Timestamp accepts the service's datetimes, which are emitted with or
// without a zone offset. Naive values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
