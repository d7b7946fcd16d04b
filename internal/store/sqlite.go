package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"econsim-terminal/internal/models"
)

// SQLiteTape implements TradeTape using SQLite.
type SQLiteTape struct {
	db *sql.DB
	mu sync.Mutex
}

// NewMemoryTape creates a tape in a private in-memory database.
func NewMemoryTape() (*SQLiteTape, error) {
	return NewSQLiteTape(fmt.Sprintf("file:tape-%s?mode=memory&cache=shared", uuid.NewString()))
}

// NewSQLiteTape creates a tape on the given data source name.
func NewSQLiteTape(dsn string) (*SQLiteTape, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives as long as one connection holds it open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	tape := &SQLiteTape{db: db}
	if err := tape.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return tape, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteTape) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY,
		good_id INTEGER NOT NULL,
		buyer_company_id INTEGER NOT NULL,
		seller_company_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		price_per_unit INTEGER NOT NULL,
		created_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_trades_good ON trades(good_id, id);
	CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(buyer_company_id);
	CREATE INDEX IF NOT EXISTS idx_trades_seller ON trades(seller_company_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteTape) Close() error {
	return s.db.Close()
}

// Append records trades, ignoring ids already on the tape.
func (s *SQLiteTape) Append(ctx context.Context, trades []models.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades (id, good_id, buyer_company_id, seller_company_id, quantity, price_per_unit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, t := range trades {
		var created interface{}
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.UTC()
		}
		res, err := stmt.ExecContext(ctx, t.ID, t.GoodID, t.BuyerCompanyID, t.SellerCompanyID, t.Quantity, t.PricePerUnit, created)
		if err != nil {
			return 0, fmt.Errorf("failed to insert trade %d: %w", t.ID, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// Trades retrieves trades, newest first.
func (s *SQLiteTape) Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, good_id, buyer_company_id, seller_company_id, quantity, price_per_unit, created_at FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.GoodID != nil {
		query += " AND good_id = ?"
		args = append(args, *filter.GoodID)
	}
	if filter.CompanyID != nil {
		query += " AND (buyer_company_id = ? OR seller_company_id = ?)"
		args = append(args, *filter.CompanyID, *filter.CompanyID)
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var created sql.NullTime
		if err := rows.Scan(&t.ID, &t.GoodID, &t.BuyerCompanyID, &t.SellerCompanyID, &t.Quantity, &t.PricePerUnit, &created); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if created.Valid {
			t.CreatedAt = models.Timestamp{Time: created.Time.UTC()}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summary aggregates the trades of one good.
func (s *SQLiteTape) Summary(ctx context.Context, goodID int64) (TapeSummary, error) {
	summary := TapeSummary{GoodID: goodID}

	var (
		count    int
		volume   sql.NullInt64
		notional sql.NullInt64
		high     sql.NullInt64
		low      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(quantity), SUM(quantity * price_per_unit), MAX(price_per_unit), MIN(price_per_unit)
		FROM trades WHERE good_id = ?
	`, goodID).Scan(&count, &volume, &notional, &high, &low)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize trades: %w", err)
	}
	if count == 0 {
		return summary, nil
	}

	summary.Trades = count
	summary.Volume = volume.Int64
	if volume.Int64 > 0 {
		summary.VWAP = decimal.NewFromInt(notional.Int64).DivRound(decimal.NewFromInt(volume.Int64), 4)
	}
	summary.High = nullable(high)
	summary.Low = nullable(low)

	var last int64
	err = s.db.QueryRowContext(ctx, `SELECT price_per_unit FROM trades WHERE good_id = ? ORDER BY id DESC LIMIT 1`, goodID).Scan(&last)
	if err != nil {
		return summary, fmt.Errorf("failed to read last trade: %w", err)
	}
	summary.Last = &last
	return summary, nil
}

// Count returns the number of trades on the tape.
func (s *SQLiteTape) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
