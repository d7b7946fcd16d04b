// Package session ties the data sources, selections and mutations of one
// player session together.
//
// Sources refresh on their own cadence. Company-scoped and good-scoped
// sources are cleared the moment their selection changes and refetched for
// the new selection. Inventory is additionally refreshed after every new
// orders snapshot. Mutations validate, submit once, then block until every
// dependent source has been refetched.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/feed"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/metrics"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/security"
	"econsim-terminal/internal/selection"
	"econsim-terminal/internal/store"
)

// API is the subset of the game service the session talks to.
// *gateway.Client implements it.
type API interface {
	Companies(ctx context.Context) ([]models.Company, error)
	Goods(ctx context.Context) ([]models.Good, error)
	Orders(ctx context.Context) ([]models.MarketOrder, error)
	Inventory(ctx context.Context, companyID int64) ([]models.InventoryItem, error)
	OrderBook(ctx context.Context, goodID int64) (models.OrderBook, error)
	Stats(ctx context.Context, goodID int64) (models.MarketStats, error)
	Trades(ctx context.Context) ([]models.Trade, error)
	Candles(ctx context.Context, goodID int64, minutes int) ([]models.Candle, error)
	Map(ctx context.Context) ([]models.Location, error)
	Speed(ctx context.Context) (models.SimulationSpeed, error)

	PlaceOrder(ctx context.Context, companyID int64, req models.OrderRequest) (models.MarketOrder, error)
	CancelOrder(ctx context.Context, orderID, companyID int64) (models.CancelAck, error)
	ClaimLocation(ctx context.Context, locationID, companyID int64) (models.ClaimAck, error)
	BuildExtractor(ctx context.Context, companyID int64, req models.ExtractionSiteRequest) (models.ExtractionSite, error)
	SetSpeed(ctx context.Context, multiplier decimal.Decimal) (models.SimulationSpeed, error)
}

// Intervals are the timer cadences of the periodically refreshed sources.
type Intervals struct {
	Orders time.Duration
	Depth  time.Duration
	Stats  time.Duration
	Trades time.Duration
}

// DefaultIntervals returns the standard cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Orders: 2 * time.Second,
		Depth:  2 * time.Second,
		Stats:  2 * time.Second,
		Trades: 3 * time.Second,
	}
}

// Options configures a Session.
type Options struct {
	API       API
	Intervals Intervals
	// CandleMinutes is the window requested for candles.
	CandleMinutes int
	// ExtractorRate is used when a build request names no rate.
	ExtractorRate int64

	Access    *security.AccessController
	Validator *security.InputValidator
	Audit     *security.AuditLogger
	// Tape receives every trades snapshot. When nil the session opens an
	// in-memory tape and closes it on Close.
	Tape store.TradeTape

	Logger zerolog.Logger
}

// Session is one player's view of the game.
type Session struct {
	api    API
	opts   Options
	logger zerolog.Logger

	Company    *selection.Selection
	MarketGood *selection.Selection
	ChartGood  *selection.Selection
	Location   *selection.Selection

	Companies *feed.Source[[]models.Company]
	Goods     *feed.Source[[]models.Good]
	Orders    *feed.Source[[]models.MarketOrder]
	Inventory *feed.Source[[]models.InventoryItem]
	Depth     *feed.Source[models.OrderBook]
	Stats     *feed.Source[models.MarketStats]
	Trades    *feed.Source[[]models.Trade]
	Candles   *feed.Source[[]models.Candle]
	Map       *feed.Source[[]models.Location]
	Speed     *feed.Source[models.SimulationSpeed]

	Errors *ErrorSlot

	tape     store.TradeTape
	ownsTape bool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ticket OrderTicket
	closed bool
}

// New builds a session. Nothing is fetched until Start.
func New(opts Options) (*Session, error) {
	if opts.API == nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "session requires an API")
	}
	def := DefaultIntervals()
	if opts.Intervals.Orders <= 0 {
		opts.Intervals.Orders = def.Orders
	}
	if opts.Intervals.Depth <= 0 {
		opts.Intervals.Depth = def.Depth
	}
	if opts.Intervals.Stats <= 0 {
		opts.Intervals.Stats = def.Stats
	}
	if opts.Intervals.Trades <= 0 {
		opts.Intervals.Trades = def.Trades
	}
	if opts.CandleMinutes <= 0 {
		opts.CandleMinutes = 60
	}
	if opts.ExtractorRate <= 0 {
		opts.ExtractorRate = 5
	}
	if opts.Access == nil {
		opts.Access = security.NewAccessController(false, opts.Audit)
	}
	if opts.Validator == nil {
		opts.Validator = security.NewInputValidator(opts.Audit)
	}

	s := &Session{
		api:        opts.API,
		opts:       opts,
		logger:     opts.Logger,
		Company:    selection.New("company"),
		MarketGood: selection.New("market_good"),
		ChartGood:  selection.New("chart_good"),
		Location:   selection.New("location"),
		Errors:     &ErrorSlot{},
		tape:       opts.Tape,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.tape == nil {
		tape, err := store.NewMemoryTape()
		if err != nil {
			return nil, apperrors.Wrap(err, "opening trade tape")
		}
		s.tape = tape
		s.ownsTape = true
	}

	s.buildSources()
	s.link()
	return s, nil
}

func (s *Session) sourceOptions(name string, interval time.Duration, gate func() bool) feed.Options {
	return feed.Options{
		Interval: interval,
		Gate:     gate,
		OnError:  s.reportSourceError,
		Logger:   logging.WithSource(s.logger, name),
	}
}

func (s *Session) buildSources() {
	api := s.api
	goodSelected := func() bool {
		_, ok := s.MarketGood.Get()
		return ok
	}

	s.Companies = feed.New("companies", api.Companies, s.sourceOptions("companies", 0, nil))
	s.Goods = feed.New("goods", api.Goods, s.sourceOptions("goods", 0, nil))
	s.Orders = feed.New("orders", api.Orders, s.sourceOptions("orders", s.opts.Intervals.Orders, nil))
	s.Trades = feed.New("trades", api.Trades, s.sourceOptions("trades", s.opts.Intervals.Trades, nil))
	s.Map = feed.New("map", api.Map, s.sourceOptions("map", 0, nil))
	s.Speed = feed.New("speed", api.Speed, s.sourceOptions("speed", 0, nil))

	s.Inventory = feed.New("inventory", func(ctx context.Context) ([]models.InventoryItem, error) {
		id, ok := s.Company.Get()
		if !ok {
			return nil, apperrors.ErrNoCompanySelected
		}
		return api.Inventory(ctx, id)
	}, s.sourceOptions("inventory", 0, nil))

	s.Depth = feed.New("depth", func(ctx context.Context) (models.OrderBook, error) {
		id, ok := s.MarketGood.Get()
		if !ok {
			return models.OrderBook{}, apperrors.ErrNoGoodSelected
		}
		return api.OrderBook(ctx, id)
	}, s.sourceOptions("depth", s.opts.Intervals.Depth, goodSelected))

	s.Stats = feed.New("stats", func(ctx context.Context) (models.MarketStats, error) {
		id, ok := s.MarketGood.Get()
		if !ok {
			return models.MarketStats{}, apperrors.ErrNoGoodSelected
		}
		return api.Stats(ctx, id)
	}, s.sourceOptions("stats", s.opts.Intervals.Stats, goodSelected))

	s.Candles = feed.New("candles", func(ctx context.Context) ([]models.Candle, error) {
		id, ok := s.ChartGood.Get()
		if !ok {
			return nil, apperrors.ErrNoGoodSelected
		}
		return api.Candles(ctx, id, s.opts.CandleMinutes)
	}, s.sourceOptions("candles", 0, nil))
}

// link installs the selection listeners and the cross-source subscribers.
func (s *Session) link() {
	s.Company.Subscribe(func(prev, next *int64) {
		s.Inventory.Clear()
		if next != nil {
			s.Inventory.Trigger(s.ctx)
		}
	})

	s.MarketGood.Subscribe(func(prev, next *int64) {
		s.Depth.Clear()
		s.Stats.Clear()
		if next != nil {
			s.Depth.Trigger(s.ctx)
			s.Stats.Trigger(s.ctx)
		}
	})

	s.ChartGood.Subscribe(func(prev, next *int64) {
		s.Candles.Clear()
		if next != nil {
			s.Candles.Trigger(s.ctx)
		}
	})

	// Every new orders snapshot may have moved reservations.
	s.Orders.Subscribe(func(ctx context.Context, _ []models.MarketOrder) {
		if _, ok := s.Company.Get(); !ok {
			return
		}
		_ = s.Inventory.Refresh(ctx)
	})

	s.Trades.Subscribe(func(ctx context.Context, trades []models.Trade) {
		added, err := s.tape.Append(ctx, trades)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to append trades to tape")
			return
		}
		if added > 0 {
			if n, err := s.tape.Count(ctx); err == nil {
				metrics.TapeTrades.Set(float64(n))
			}
		}
	})
}

func (s *Session) reportSourceError(source string, err error) {
	// a selection cleared between tick and fetch is not a failure
	if feed.IsCancellation(err) || apperrors.Is(err, apperrors.ErrNoCompanySelected) || apperrors.Is(err, apperrors.ErrNoGoodSelected) {
		return
	}
	s.Errors.Set(source, err)
}

// Start performs the initial load of every source whose inputs are known
// and then starts the timers. Load failures are reported in the error slot
// and returned joined; they do not stop the session.
func (s *Session) Start(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	load := func(name string, refresh func(context.Context) error) {
		g.Go(func() error {
			if err := refresh(ctx); err != nil && !feed.IsCancellation(err) {
				mu.Lock()
				errs = append(errs, apperrors.Wrapf(err, "loading %s", name))
				mu.Unlock()
			}
			return nil
		})
	}

	load("companies", s.Companies.Refresh)
	load("goods", s.Goods.Refresh)
	load("orders", s.Orders.Refresh)
	load("trades", s.Trades.Refresh)
	load("map", s.Map.Refresh)
	load("speed", s.Speed.Refresh)
	if _, ok := s.Company.Get(); ok {
		load("inventory", s.Inventory.Refresh)
	}
	if _, ok := s.MarketGood.Get(); ok {
		load("depth", s.Depth.Refresh)
		load("stats", s.Stats.Refresh)
	}
	if _, ok := s.ChartGood.Get(); ok {
		load("candles", s.Candles.Refresh)
	}
	_ = g.Wait()

	s.Orders.Start(s.ctx)
	s.Depth.Start(s.ctx)
	s.Stats.Start(s.ctx)
	s.Trades.Start(s.ctx)

	s.logger.Info().Int("load_errors", len(errs)).Msg("Session started")
	return apperrors.Join(errs...)
}

// Close stops every timer, cancels in-flight requests and waits for
// background work. No snapshot changes after Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	for _, src := range s.sources() {
		src.Stop()
	}

	if s.ownsTape {
		return s.tape.Close()
	}
	return nil
}

// Tape returns the session trade tape.
func (s *Session) Tape() store.TradeTape {
	return s.tape
}

// OnChange registers fn on every source and the error slot.
func (s *Session) OnChange(fn func()) {
	s.OnSourceChange(func(string) { fn() })
}

// OnSourceChange registers fn on every source and the error slot. fn
// receives the name of whatever changed; the error slot reports "errors".
func (s *Session) OnSourceChange(fn func(name string)) {
	for _, src := range s.sources() {
		name := src.Name()
		src.OnChange(func() { fn(name) })
	}
	s.Errors.OnChange(func() { fn("errors") })
}

// Statuses reports every source for health output.
func (s *Session) Statuses() []feed.Status {
	srcs := s.sources()
	out := make([]feed.Status, len(srcs))
	for i, src := range srcs {
		out[i] = src.Status()
	}
	return out
}

// source is the type-independent part of a feed.Source.
type source interface {
	Name() string
	OnChange(fn func())
	Status() feed.Status
	Stop()
}

// sources lists every source, timer-driven ones first so Close stops
// them before their dependents.
func (s *Session) sources() []source {
	return []source{
		s.Orders, s.Trades, s.Depth, s.Stats,
		s.Inventory, s.Candles, s.Map, s.Speed,
		s.Companies, s.Goods,
	}
}

// ReadOnly reports whether mutations are refused locally.
func (s *Session) ReadOnly() bool {
	return s.opts.Access.IsReadOnly()
}
