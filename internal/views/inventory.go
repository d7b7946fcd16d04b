package views

import (
	"sort"
	"strconv"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/models"
)

// InventoryRow is one line of the inventory table.
type InventoryRow struct {
	GoodID    int64  `json:"good_id"`
	GoodName  string `json:"good_name"`
	Quantity  int64  `json:"quantity"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
	// Violation marks a snapshot where reserved exceeds quantity. Available
	// still holds the raw difference; renderers must not print it as is.
	Violation bool `json:"violation,omitempty"`
}

// ShowReserved reports whether the reserved amount must be shown.
func (r InventoryRow) ShowReserved() bool {
	return r.Reserved > 0
}

// Inventory builds inventory rows sorted by good name, resolving names from
// the catalog when the item does not carry one and falling back to the id. Rows for other companies
// are skipped. A *errors.ConsistencyError is returned alongside the rows
// when any item has reserved > quantity.
func Inventory(items []models.InventoryItem, goods []models.Good, companyID int64) ([]InventoryRow, error) {
	names := GoodNames(goods)
	rows := make([]InventoryRow, 0, len(items))
	var bad []int64

	for _, item := range items {
		if item.CompanyID != 0 && item.CompanyID != companyID {
			continue
		}
		name := item.GoodName
		if name == "" {
			name = names[item.GoodID]
		}
		if name == "" {
			name = strconv.FormatInt(item.GoodID, 10)
		}
		row := InventoryRow{
			GoodID:    item.GoodID,
			GoodName:  name,
			Quantity:  item.Quantity,
			Reserved:  item.Reserved,
			Available: item.Available(),
			Violation: !item.Consistent(),
		}
		if row.Violation {
			bad = append(bad, item.GoodID)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].GoodName != rows[j].GoodName {
			return rows[i].GoodName < rows[j].GoodName
		}
		return rows[i].GoodID < rows[j].GoodID
	})

	if len(bad) > 0 {
		sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
		return rows, &apperrors.ConsistencyError{CompanyID: companyID, GoodIDs: bad}
	}
	return rows, nil
}

// GoodNames indexes the catalog by id.
func GoodNames(goods []models.Good) map[int64]string {
	names := make(map[int64]string, len(goods))
	for _, g := range goods {
		names[g.ID] = g.Name
	}
	return names
}

// GoodName returns the catalog name of a good.
func GoodName(goods []models.Good, id int64) (string, bool) {
	for _, g := range goods {
		if g.ID == id {
			return g.Name, true
		}
	}
	return "", false
}

// CompanyByID looks a company up in the catalog.
func CompanyByID(companies []models.Company, id int64) (models.Company, bool) {
	for _, c := range companies {
		if c.ID == id {
			return c, true
		}
	}
	return models.Company{}, false
}
