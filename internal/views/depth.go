package views

import (
	"sort"

	"econsim-terminal/internal/models"
)

// Depth aggregates open orders for one good into price levels, buy levels
// descending and sell levels ascending. It mirrors the service's order book
// endpoint and is used where only the orders snapshot is at hand.
func Depth(orders []models.MarketOrder, goodID int64) models.OrderBook {
	buy := map[int64]int64{}
	sell := map[int64]int64{}
	for _, o := range orders {
		if o.GoodID != goodID || !o.IsOpen() {
			continue
		}
		switch o.OrderType {
		case models.OrderTypeBuy:
			buy[o.PricePerUnit] += o.Quantity
		case models.OrderTypeSell:
			sell[o.PricePerUnit] += o.Quantity
		}
	}

	book := models.OrderBook{Buy: toLevels(buy), Sell: toLevels(sell)}
	sort.Slice(book.Buy, func(i, j int) bool { return book.Buy[i].Price > book.Buy[j].Price })
	sort.Slice(book.Sell, func(i, j int) bool { return book.Sell[i].Price < book.Sell[j].Price })
	return book
}

func toLevels(m map[int64]int64) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, 0, len(m))
	for price, qty := range m {
		out = append(out, models.OrderBookLevel{Price: price, Quantity: qty})
	}
	return out
}

// Quote is the top of book for one good. Nil means the side is empty.
type Quote struct {
	BestBid *int64 `json:"best_bid"`
	BestAsk *int64 `json:"best_ask"`
	Spread  *int64 `json:"spread"`
}

// TopOfBook derives the best bid, best ask and spread from depth levels.
// Levels need not be sorted.
func TopOfBook(book models.OrderBook) Quote {
	var q Quote
	for _, l := range book.Buy {
		p := l.Price
		if q.BestBid == nil || p > *q.BestBid {
			q.BestBid = &p
		}
	}
	for _, l := range book.Sell {
		p := l.Price
		if q.BestAsk == nil || p < *q.BestAsk {
			q.BestAsk = &p
		}
	}
	if q.BestBid != nil && q.BestAsk != nil {
		s := *q.BestAsk - *q.BestBid
		q.Spread = &s
	}
	return q
}

// TotalQuantity sums the quantity across levels.
func TotalQuantity(levels []models.OrderBookLevel) int64 {
	var total int64
	for _, l := range levels {
		total += l.Quantity
	}
	return total
}
