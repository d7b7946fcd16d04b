// Package store provides the session trade tape.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"econsim-terminal/internal/models"
)

// TradeTape accumulates trades reported by the service for the lifetime of a
// session. The service only returns recent history; the tape keeps every
// trade seen since start so the tape view and summaries are not limited to
// the latest poll. Nothing survives the process.
type TradeTape interface {
	// Append records trades, ignoring ids already held, and reports how many
	// were new.
	Append(ctx context.Context, trades []models.Trade) (int, error)
	// Trades returns trades newest first.
	Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	// Summary aggregates the trades of one good.
	Summary(ctx context.Context, goodID int64) (TapeSummary, error)
	// Count returns the number of trades held.
	Count(ctx context.Context) (int, error)

	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	GoodID    *int64
	CompanyID *int64 // buyer or seller
	Limit     int
}

// TapeSummary holds aggregate figures for one good.
type TapeSummary struct {
	GoodID int64           `json:"good_id"`
	Trades int             `json:"trades"`
	Volume int64           `json:"volume"`
	VWAP   decimal.Decimal `json:"vwap"`
	High   *int64          `json:"high"`
	Low    *int64          `json:"low"`
	Last   *int64          `json:"last"`
}
