package models

// OrderType is the side of a market order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// Valid reports whether the side is buy or sell.
func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// OrderStatus is kept as a string because the service may add states.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// MarketOrder is an immutable snapshot of one order as reported by the
// service.
type MarketOrder struct {
	ID           int64       `json:"id"`
	OrderType    OrderType   `json:"order_type"`
	Quantity     int64       `json:"quantity"`
	PricePerUnit int64       `json:"price_per_unit"`
	Status       OrderStatus `json:"status"`
	GoodID       int64       `json:"good_id"`
	GoodName     string      `json:"good_name"`
	CompanyID    int64       `json:"company_id"`
	CompanyName  string      `json:"company_name"`
}

// IsOpen reports whether the order can still match or be cancelled.
func (o MarketOrder) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// OrderRequest is the body of a place-order call.
type OrderRequest struct {
	OrderType    OrderType `json:"order_type"`
	GoodID       int64     `json:"good_id"`
	PricePerUnit int64     `json:"price_per_unit"`
	Quantity     int64     `json:"quantity"`
}

// CancelAck is returned by the cancel endpoint.
type CancelAck struct {
	Status  string `json:"status"`
	OrderID int64  `json:"order_id"`
}

// OrderBookLevel is the aggregated open quantity at one price.
type OrderBookLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// OrderBook is the depth for one good. Buy levels are descending by price,
// sell levels ascending.
type OrderBook struct {
	Buy  []OrderBookLevel `json:"buy"`
	Sell []OrderBookLevel `json:"sell"`
}

// MarketStats holds per-good statistics. Nil fields mean no data yet.
type MarketStats struct {
	LastPrice *int64 `json:"last_price"`
	BestBid   *int64 `json:"best_bid"`
	BestAsk   *int64 `json:"best_ask"`
	Spread    *int64 `json:"spread"`
}
