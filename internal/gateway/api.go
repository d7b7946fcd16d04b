package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"econsim-terminal/internal/models"
)

// Companies lists every company.
func (c *Client) Companies(ctx context.Context) ([]models.Company, error) {
	return Read[[]models.Company](ctx, c, "companies", "/companies")
}

// Goods lists the goods catalog.
func (c *Client) Goods(ctx context.Context) ([]models.Good, error) {
	return Read[[]models.Good](ctx, c, "goods", "/goods")
}

// Orders lists market orders.
func (c *Client) Orders(ctx context.Context) ([]models.MarketOrder, error) {
	return Read[[]models.MarketOrder](ctx, c, "orders", "/market/orders")
}

// Inventory lists one company's inventory.
func (c *Client) Inventory(ctx context.Context, companyID int64) ([]models.InventoryItem, error) {
	return Read[[]models.InventoryItem](ctx, c, "inventory", fmt.Sprintf("/inventories/company/%d", companyID))
}

// OrderBook returns aggregated depth for one good.
func (c *Client) OrderBook(ctx context.Context, goodID int64) (models.OrderBook, error) {
	return Read[models.OrderBook](ctx, c, "orderbook", fmt.Sprintf("/market/orderbook/%d", goodID))
}

// Stats returns market statistics for one good.
func (c *Client) Stats(ctx context.Context, goodID int64) (models.MarketStats, error) {
	return Read[models.MarketStats](ctx, c, "stats", fmt.Sprintf("/market/stats/%d", goodID))
}

// Trades returns the recent trade history.
func (c *Client) Trades(ctx context.Context) ([]models.Trade, error) {
	return Read[[]models.Trade](ctx, c, "trades", "/market/trades")
}

// Candles returns OHLC buckets for one good over the last window minutes.
func (c *Client) Candles(ctx context.Context, goodID int64, minutes int) ([]models.Candle, error) {
	return Read[[]models.Candle](ctx, c, "candles", fmt.Sprintf("/market/candles/%d?minutes=%d", goodID, minutes))
}

// Map returns every location with its deposits and extraction sites.
func (c *Client) Map(ctx context.Context) ([]models.Location, error) {
	m, err := Read[models.WorldMap](ctx, c, "map", "/map")
	if err != nil {
		return nil, err
	}
	return m.Locations, nil
}

// Speed returns the simulation speed.
func (c *Client) Speed(ctx context.Context) (models.SimulationSpeed, error) {
	return Read[models.SimulationSpeed](ctx, c, "speed", "/simulation/speed")
}

// PlaceOrder submits a limit order for a company.
func (c *Client) PlaceOrder(ctx context.Context, companyID int64, req models.OrderRequest) (models.MarketOrder, error) {
	return Submit[models.MarketOrder](ctx, c, "orders", fmt.Sprintf("/market/orders/%d", companyID), req)
}

// CancelOrder cancels an order on behalf of its owner.
func (c *Client) CancelOrder(ctx context.Context, orderID, companyID int64) (models.CancelAck, error) {
	return Submit[models.CancelAck](ctx, c, "cancel", fmt.Sprintf("/market/orders/%d/cancel?company_id=%d", orderID, companyID), nil)
}

// ClaimLocation claims an unclaimed location.
func (c *Client) ClaimLocation(ctx context.Context, locationID, companyID int64) (models.ClaimAck, error) {
	return Submit[models.ClaimAck](ctx, c, "claim", fmt.Sprintf("/locations/%d/claim?company_id=%d", locationID, companyID), nil)
}

// BuildExtractor creates an extraction site on a claimed location.
func (c *Client) BuildExtractor(ctx context.Context, companyID int64, req models.ExtractionSiteRequest) (models.ExtractionSite, error) {
	return Submit[models.ExtractionSite](ctx, c, "extraction_sites", "/extraction-sites/?company_id="+strconv.FormatInt(companyID, 10), req)
}

// SetSpeed changes the simulation speed.
func (c *Client) SetSpeed(ctx context.Context, multiplier decimal.Decimal) (models.SimulationSpeed, error) {
	q := url.Values{}
	q.Set("multiplier", multiplier.String())
	return Submit[models.SimulationSpeed](ctx, c, "speed", "/simulation/speed?"+q.Encode(), nil)
}
