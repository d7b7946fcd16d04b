package models

// Trade is one executed match reported by the service.
type Trade struct {
	ID              int64     `json:"id"`
	GoodID          int64     `json:"good_id"`
	BuyerCompanyID  int64     `json:"buyer_company_id"`
	SellerCompanyID int64     `json:"seller_company_id"`
	Quantity        int64     `json:"quantity"`
	PricePerUnit    int64     `json:"price_per_unit"`
	CreatedAt       Timestamp `json:"created_at"`
}

// Candle is one OHLC+volume bucket, consumed verbatim from the service.
type Candle struct {
	Time   Timestamp `json:"time"`
	Open   *int64    `json:"open"`
	High   int64     `json:"high"`
	Low    int64     `json:"low"`
	Close  *int64    `json:"close"`
	Volume int64     `json:"volume"`
}

// Rising reports whether the candle closed at or above its open. Candles
// without both prices are not rising.
func (c Candle) Rising() bool {
	if c.Open == nil || c.Close == nil {
		return false
	}
	return *c.Close >= *c.Open
}
