package session

import (
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/views"
)

// SelectedCompany resolves the company selection against the catalog.
func (s *Session) SelectedCompany() (models.Company, bool) {
	id, ok := s.Company.Get()
	if !ok {
		return models.Company{}, false
	}
	return views.CompanyByID(s.Companies.Value(), id)
}

// SelectedLocation resolves the location selection against the latest map,
// so it reflects claims and builds as soon as the map is refetched.
func (s *Session) SelectedLocation() (models.Location, bool) {
	id, ok := s.Location.Get()
	if !ok {
		return models.Location{}, false
	}
	return views.FindLocation(s.Map.Value(), id)
}

// MarketTable returns every open order grouped by good.
func (s *Session) MarketTable() []models.MarketOrder {
	return views.MarketTable(s.Orders.Value())
}

// Ladders returns the buy and sell ladders of the selected market good.
// Both are empty when no good is selected.
func (s *Session) Ladders() (buy, sell []models.MarketOrder) {
	id, ok := s.MarketGood.Get()
	if !ok {
		return nil, nil
	}
	orders := views.ForGood(s.Orders.Value(), id)
	return views.BuyLadder(orders), views.SellLadder(orders)
}

// MyOrders returns the open orders of the selected company in table order.
func (s *Session) MyOrders() []models.MarketOrder {
	id, ok := s.Company.Get()
	if !ok {
		return nil
	}
	return views.MarketTable(views.ForCompany(s.Orders.Value(), id))
}

// InventoryRows returns the selected company's inventory. The error is a
// *errors.ConsistencyError when the snapshot has reserved > quantity.
func (s *Session) InventoryRows() ([]views.InventoryRow, error) {
	id, ok := s.Company.Get()
	if !ok {
		return nil, nil
	}
	return views.Inventory(s.Inventory.Value(), s.Goods.Value(), id)
}

// Quote returns the top of book for the selected good from the depth
// snapshot, or an empty quote when none is loaded.
func (s *Session) Quote() views.Quote {
	book, ok := s.Depth.Snapshot()
	if !ok {
		return views.Quote{}
	}
	return views.TopOfBook(book)
}
