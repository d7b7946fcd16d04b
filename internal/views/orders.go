// Package views derives display shapes from raw service snapshots. Every
// function is pure: it never mutates its inputs and returns fresh slices, so
// callers can recompute on each snapshot change without caching.
package views

import (
	"sort"

	"econsim-terminal/internal/models"
)

// OpenOrders retains orders whose status is open.
func OpenOrders(orders []models.MarketOrder) []models.MarketOrder {
	out := make([]models.MarketOrder, 0, len(orders))
	for _, o := range orders {
		if o.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}

// ForGood retains orders for one good.
func ForGood(orders []models.MarketOrder, goodID int64) []models.MarketOrder {
	out := make([]models.MarketOrder, 0, len(orders))
	for _, o := range orders {
		if o.GoodID == goodID {
			out = append(out, o)
		}
	}
	return out
}

// ForCompany retains orders placed by one company.
func ForCompany(orders []models.MarketOrder, companyID int64) []models.MarketOrder {
	out := make([]models.MarketOrder, 0, len(orders))
	for _, o := range orders {
		if o.CompanyID == companyID {
			out = append(out, o)
		}
	}
	return out
}

// BuyLadder returns open buy orders, highest price first. Equal prices are
// ordered by ascending id, which approximates arrival order.
func BuyLadder(orders []models.MarketOrder) []models.MarketOrder {
	out := side(orders, models.OrderTypeBuy)
	sort.Slice(out, func(i, j int) bool { return ladderLess(out[i], out[j]) })
	return out
}

// SellLadder returns open sell orders, lowest price first, ties by id.
func SellLadder(orders []models.MarketOrder) []models.MarketOrder {
	out := side(orders, models.OrderTypeSell)
	sort.Slice(out, func(i, j int) bool { return ladderLess(out[i], out[j]) })
	return out
}

// MarketTable returns open orders grouped by good name. Within a good, buys
// come first in buy ladder order, then sells in sell ladder order. Goods
// with the same name are kept apart by good id.
func MarketTable(orders []models.MarketOrder) []models.MarketOrder {
	out := OpenOrders(orders)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GoodName != b.GoodName {
			return a.GoodName < b.GoodName
		}
		if a.GoodID != b.GoodID {
			return a.GoodID < b.GoodID
		}
		if a.OrderType != b.OrderType {
			return a.OrderType == models.OrderTypeBuy
		}
		return ladderLess(a, b)
	})
	return out
}

// ladderLess orders two orders of the same side by price priority.
func ladderLess(a, b models.MarketOrder) bool {
	if a.PricePerUnit != b.PricePerUnit {
		if a.OrderType == models.OrderTypeBuy {
			return a.PricePerUnit > b.PricePerUnit
		}
		return a.PricePerUnit < b.PricePerUnit
	}
	return a.ID < b.ID
}

func side(orders []models.MarketOrder, t models.OrderType) []models.MarketOrder {
	out := make([]models.MarketOrder, 0, len(orders))
	for _, o := range orders {
		if o.IsOpen() && o.OrderType == t {
			out = append(out, o)
		}
	}
	return out
}

// CanCancel reports whether the viewing company may cancel the order.
func CanCancel(o models.MarketOrder, companyID *int64) bool {
	return companyID != nil && o.CompanyID == *companyID && o.IsOpen()
}

// FindOrder looks an order up by id.
func FindOrder(orders []models.MarketOrder, id int64) (models.MarketOrder, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o, true
		}
	}
	return models.MarketOrder{}, false
}
