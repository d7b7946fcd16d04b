package session

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/gateway"
	"econsim-terminal/internal/gateway/gatewaytest"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/security"
	"econsim-terminal/internal/store"
	"econsim-terminal/internal/views"
)

const (
	acme  = int64(1)
	rival = int64(2)
	iron  = int64(10)
	coal  = int64(11)
	ridge = int64(100)
)

// quiet keeps timers out of the way so tests observe only explicit refreshes.
var quiet = Intervals{Orders: time.Hour, Depth: time.Hour, Stats: time.Hour, Trades: time.Hour}

func newService(t *testing.T) *gatewaytest.Service {
	t.Helper()
	svc := gatewaytest.New()
	t.Cleanup(svc.Close)
	svc.AddCompany(acme, "Acme", 10_000)
	svc.AddCompany(rival, "Rival", 10_000)
	svc.AddGood(iron, "Iron")
	svc.AddGood(coal, "Coal")
	svc.SetInventory(acme, iron, 20, 0)
	svc.AddLocation(ridge, "Ridge", iron, coal)
	return svc
}

func newSession(t *testing.T, svc *gatewaytest.Service, mutate func(*Options)) *Session {
	t.Helper()
	opts := Options{
		API:       gateway.New(gateway.Config{BaseURL: svc.URL(), Logger: zerolog.Nop()}),
		Intervals: quiet,
		Logger:    zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func selectCompany(t *testing.T, s *Session, id int64) {
	t.Helper()
	s.Company.Set(id)
	if err := s.Inventory.Wait(context.Background()); err != nil {
		t.Fatalf("inventory load: %v", err)
	}
}

func selectGood(t *testing.T, s *Session, id int64) {
	t.Helper()
	s.MarketGood.Set(id)
	if err := s.Depth.Wait(context.Background()); err != nil {
		t.Fatalf("depth load: %v", err)
	}
	if err := s.Stats.Wait(context.Background()); err != nil {
		t.Fatalf("stats load: %v", err)
	}
}

func reserved(s *Session, goodID int64) int64 {
	for _, item := range s.Inventory.Value() {
		if item.GoodID == goodID {
			return item.Reserved
		}
	}
	return 0
}

func TestPlaceThenCancelRestoresBook(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, acme)
	selectGood(t, s, iron)
	before := reserved(s, iron)

	order, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 10, Quantity: 5})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	buy, _ := s.Ladders()
	if len(buy) != 1 || buy[0].ID != order.ID || buy[0].PricePerUnit != 10 {
		t.Fatalf("buy ladder after place = %+v", buy)
	}
	if tk := s.Ticket(); tk.Price != 0 || tk.Quantity != 0 || tk.Side != models.OrderTypeBuy {
		t.Fatalf("ticket should keep the side and reset price and quantity, got %+v", tk)
	}

	if err := s.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	buy, _ = s.Ladders()
	if len(buy) != 0 {
		t.Fatalf("buy ladder after cancel = %+v, want empty", buy)
	}
	if got := reserved(s, iron); got != before {
		t.Fatalf("reserved after cancel = %d, want %d", got, before)
	}
	if _, ok := s.Errors.Get(); ok {
		t.Fatal("successful mutations should leave the error slot empty")
	}
}

func TestSellReservationVisibleWhenPlaceReturns(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, acme)
	selectGood(t, s, iron)

	order, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeSell, Price: 12, Quantity: 5})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if got := reserved(s, iron); got != 5 {
		t.Fatalf("reserved right after place = %d, want 5", got)
	}
	rows, err := s.InventoryRows()
	if err != nil || len(rows) != 1 || rows[0].Available != 15 {
		t.Fatalf("InventoryRows() = %+v, %v", rows, err)
	}

	if err := s.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if got := reserved(s, iron); got != 0 {
		t.Fatalf("reserved after cancel = %d, want 0", got)
	}
}

func TestDeselectingGoodClearsBookImmediately(t *testing.T) {
	svc := newService(t)
	svc.SetInventory(rival, iron, 10, 0)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, rival)
	selectGood(t, s, iron)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeSell, Price: 20, Quantity: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Depth.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if book, ok := s.Depth.Snapshot(); !ok || len(book.Sell) != 1 {
		t.Fatalf("depth should be populated, got %+v", book)
	}
	if q := s.Quote(); q.BestAsk == nil || *q.BestAsk != 20 {
		t.Fatalf("Quote() = %+v", q)
	}

	s.MarketGood.Clear()

	if _, ok := s.Depth.Snapshot(); ok {
		t.Fatal("depth must be empty as soon as the good is deselected")
	}
	if _, ok := s.Stats.Snapshot(); ok {
		t.Fatal("stats must be empty as soon as the good is deselected")
	}
	if buy, sell := s.Ladders(); buy != nil || sell != nil {
		t.Fatal("ladders must be empty without a good")
	}
}

func TestClaimThenBuild(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, acme)

	loc, ok := views.FindLocation(s.Map.Value(), ridge)
	if !ok || loc.Claimed() || !views.CanClaim(loc, s.Company.Ptr()) {
		t.Fatalf("location should start unclaimed, got %+v", loc)
	}

	if err := s.ClaimLocation(ctx, ridge); err != nil {
		t.Fatalf("ClaimLocation() error = %v", err)
	}
	loc, ok = s.SelectedLocation()
	if !ok || loc.ClaimedByCompanyID == nil || *loc.ClaimedByCompanyID != acme {
		t.Fatalf("selected location after claim = %+v", loc)
	}
	if len(views.BuildableDeposits(loc, s.Company.Ptr())) != 2 {
		t.Fatal("both deposits should be buildable after the claim")
	}

	site, err := s.BuildExtractor(ctx, ridge, iron, 0)
	if err != nil {
		t.Fatalf("BuildExtractor() error = %v", err)
	}
	if site.RatePerHour != 5 {
		t.Fatalf("default rate = %d, want 5", site.RatePerHour)
	}
	loc, _ = s.SelectedLocation()
	found := false
	for _, es := range loc.ExtractionSites {
		if es.GoodID == iron {
			found = true
		}
	}
	if !found {
		t.Fatalf("map should show the new site, got %+v", loc.ExtractionSites)
	}
	if views.CanBuildExtractor(loc, iron, s.Company.Ptr()) {
		t.Fatal("build control for iron should be gone")
	}
	if !views.CanBuildExtractor(loc, coal, s.Company.Ptr()) {
		t.Fatal("coal should still be buildable")
	}

	// the claim is rejected locally now that the map shows it
	before := svc.Hits("POST /locations/{locationID}/claim")
	err = s.ClaimLocation(ctx, ridge)
	if !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Fatalf("second claim error = %v, want validation error", err)
	}
	if svc.Hits("POST /locations/{locationID}/claim") != before {
		t.Fatal("a locally rejected claim must not reach the service")
	}
}

func TestValidationFailureSendsNothing(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	_, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 10, Quantity: 1})
	if !apperrors.Is(err, apperrors.ErrNoCompanySelected) {
		t.Fatalf("error = %v, want ErrNoCompanySelected", err)
	}
	entry, ok := s.Errors.Get()
	if !ok || entry.Message != "select company" {
		t.Fatalf("error slot = %+v, %v", entry, ok)
	}

	selectCompany(t, s, acme)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 10, Quantity: 1}); !apperrors.Is(err, apperrors.ErrNoGoodSelected) {
		t.Fatalf("error = %v, want ErrNoGoodSelected", err)
	}

	selectGood(t, s, iron)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 0, Quantity: 1}); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if tk := s.Ticket(); tk.Quantity != 1 {
		t.Fatal("a rejected ticket must keep its fields")
	}

	if hits := svc.Hits("POST /market/orders/{id}"); hits != 0 {
		t.Fatalf("service saw %d order submissions, want 0", hits)
	}
}

func TestRemoteRejectionKeepsSnapshots(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, acme)
	selectGood(t, s, coal)
	ordersBefore := svc.Hits("GET /market/orders")

	_, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeSell, Price: 3, Quantity: 1})
	var remote *apperrors.RemoteError
	if !apperrors.As(err, &remote) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	entry, ok := s.Errors.Get()
	if !ok || !strings.Contains(entry.Message, "No inventory") || entry.Source != "place_order" {
		t.Fatalf("error slot = %+v", entry)
	}
	if svc.Hits("GET /market/orders") != ordersBefore {
		t.Fatal("a rejected mutation must not refresh dependents")
	}
	if tk := s.Ticket(); tk.Quantity != 1 || tk.Price != 3 {
		t.Fatalf("ticket should survive a rejection, got %+v", tk)
	}
}

func TestDependentRefreshFailureIsReported(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	selectCompany(t, s, acme)
	svc.FailNext("GET /map", http.StatusInternalServerError, "map offline")

	err := s.ClaimLocation(ctx, ridge)
	var re *apperrors.RefreshError
	if !apperrors.As(err, &re) || re.Source != "map" {
		t.Fatalf("error = %v, want RefreshError for map", err)
	}
	if _, ok := s.SelectedLocation(); ok {
		t.Fatal("the location is only selected once the map reflects the claim")
	}
}

func TestReadOnlyBlocksMutations(t *testing.T) {
	svc := newService(t)
	var audit bytes.Buffer
	s := newSession(t, svc, func(o *Options) {
		o.Audit = security.NewAuditLoggerWriter(&audit)
		o.Access = security.NewAccessController(true, o.Audit)
	})
	ctx := context.Background()
	selectCompany(t, s, acme)

	err := s.ClaimLocation(ctx, ridge)
	if !apperrors.Is(err, apperrors.ErrReadOnlyMode) {
		t.Fatalf("error = %v, want read-only rejection", err)
	}
	if err := s.SetSpeed(ctx, decimal.NewFromInt(5)); !apperrors.Is(err, apperrors.ErrReadOnlyMode) {
		t.Fatalf("SetSpeed error = %v, want read-only rejection", err)
	}
	if svc.Hits("POST /locations/{locationID}/claim") != 0 || svc.Hits("POST /simulation/speed") != 0 {
		t.Fatal("read-only mode must not send mutations")
	}
	if !strings.Contains(audit.String(), string(security.AuditReadOnlyViolation)) {
		t.Fatal("violations should be audited")
	}
}

func TestSetSpeedAdoptsLocally(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()
	speedReads := svc.Hits("GET /simulation/speed")

	if err := s.SetSpeed(ctx, decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if got := s.Speed.Value().Multiplier; !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("local speed = %s, want 0.25", got)
	}
	if !svc.Speed().Equal(decimal.RequireFromString("0.25")) {
		t.Fatal("service speed not updated")
	}
	if svc.Hits("GET /simulation/speed") != speedReads {
		t.Fatal("speed must be adopted without refetching")
	}

	if err := s.SetSpeed(ctx, decimal.Zero); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Fatalf("zero speed error = %v, want validation error", err)
	}
}

func TestOrdersSnapshotRefreshesInventory(t *testing.T) {
	svc := newService(t)
	s := newSession(t, svc, nil)
	ctx := context.Background()

	before := svc.Hits("GET /inventories/company/{companyID}")
	if err := s.Orders.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.Hits("GET /inventories/company/{companyID}") != before {
		t.Fatal("no company selected, inventory must not be fetched")
	}

	selectCompany(t, s, acme)
	before = svc.Hits("GET /inventories/company/{companyID}")
	svc.SetInventory(acme, iron, 30, 0)

	if err := s.Orders.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.Hits("GET /inventories/company/{companyID}") != before+1 {
		t.Fatal("a new orders snapshot should refresh inventory")
	}
	if s.Inventory.Value()[0].Quantity != 30 {
		t.Fatal("inventory refresh should complete before Orders.Refresh returns")
	}
}

func TestCompanyChangeSwapsInventory(t *testing.T) {
	svc := newService(t)
	svc.SetInventory(rival, coal, 7, 0)
	s := newSession(t, svc, nil)

	selectCompany(t, s, acme)
	s.Company.Set(rival)
	for _, item := range s.Inventory.Value() {
		if item.CompanyID == acme {
			t.Fatal("previous company's inventory must not survive a company change")
		}
	}
	if err := s.Inventory.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	items := s.Inventory.Value()
	if len(items) != 1 || items[0].CompanyID != rival || items[0].GoodID != coal {
		t.Fatalf("inventory after switch = %+v", items)
	}
}

func TestTradesFeedTape(t *testing.T) {
	svc := newService(t)
	svc.SetInventory(rival, iron, 10, 0)
	tape, err := store.NewMemoryTape()
	if err != nil {
		t.Fatal(err)
	}
	defer tape.Close()
	s := newSession(t, svc, func(o *Options) { o.Tape = tape })
	ctx := context.Background()

	selectCompany(t, s, rival)
	selectGood(t, s, iron)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeSell, Price: 8, Quantity: 3}); err != nil {
		t.Fatal(err)
	}
	selectCompany(t, s, acme)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 9, Quantity: 3}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Trades.Refresh(ctx); err != nil {
			t.Fatal(err)
		}
	}
	n, err := tape.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("tape holds %d trades (%v), want 1", n, err)
	}
	sum, err := tape.Summary(ctx, iron)
	if err != nil || sum.Last == nil || *sum.Last != 8 {
		t.Fatalf("Summary() = %+v, %v", sum, err)
	}
}

func TestStartReportsLoadFailures(t *testing.T) {
	svc := newService(t)
	svc.FailNext("GET /companies", http.StatusInternalServerError, "catalog down")

	s, err := New(Options{
		API:       gateway.New(gateway.Config{BaseURL: svc.URL(), Logger: zerolog.Nop()}),
		Intervals: quiet,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "catalog down") {
		t.Fatalf("Start() error = %v", err)
	}
	entry, ok := s.Errors.Get()
	if !ok || !strings.Contains(entry.Message, "catalog down") {
		t.Fatalf("error slot = %+v", entry)
	}
	if len(s.Goods.Value()) != 2 {
		t.Fatal("other sources should still load")
	}
}

// countingAPI counts the timer-driven fetches that reach the API.
type countingAPI struct {
	*gateway.Client
	orders atomic.Int64
	trades atomic.Int64
}

func (c *countingAPI) Orders(ctx context.Context) ([]models.MarketOrder, error) {
	c.orders.Add(1)
	return c.Client.Orders(ctx)
}

func (c *countingAPI) Trades(ctx context.Context) ([]models.Trade, error) {
	c.trades.Add(1)
	return c.Client.Trades(ctx)
}

func TestCloseStopsTimers(t *testing.T) {
	svc := newService(t)
	api := &countingAPI{Client: gateway.New(gateway.Config{BaseURL: svc.URL(), Logger: zerolog.Nop()})}
	s := newSession(t, svc, func(o *Options) {
		o.API = api
		o.Intervals = Intervals{Orders: 5 * time.Millisecond, Trades: 5 * time.Millisecond}
	})

	deadline := time.Now().Add(2 * time.Second)
	for api.orders.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if api.orders.Load() < 3 {
		t.Fatal("orders timer did not run")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	orders, trades := api.orders.Load(), api.trades.Load()
	time.Sleep(30 * time.Millisecond)
	if api.orders.Load() != orders || api.trades.Load() != trades {
		t.Fatalf("fetches after Close: orders %d -> %d, trades %d -> %d",
			orders, api.orders.Load(), trades, api.trades.Load())
	}
}

func TestChartSelectionDrivesCandles(t *testing.T) {
	svc := newService(t)
	svc.SetInventory(rival, iron, 10, 0)
	s := newSession(t, svc, func(o *Options) { o.CandleMinutes = 30 })
	ctx := context.Background()

	selectCompany(t, s, rival)
	selectGood(t, s, iron)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeSell, Price: 8, Quantity: 2}); err != nil {
		t.Fatal(err)
	}
	selectCompany(t, s, acme)
	if _, err := s.PlaceOrder(ctx, OrderTicket{Side: models.OrderTypeBuy, Price: 8, Quantity: 2}); err != nil {
		t.Fatal(err)
	}
	if svc.Hits("GET /market/candles/{goodID}") != 0 {
		t.Fatal("candles fetched without a chart selection")
	}

	s.ChartGood.Set(iron)
	if err := s.Candles.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	candles := s.Candles.Value()
	if len(candles) != 1 || candles[0].Volume != 2 || candles[0].Close == nil || *candles[0].Close != 8 {
		t.Fatalf("candles = %+v", candles)
	}

	s.ChartGood.Clear()
	if _, ok := s.Candles.Snapshot(); ok {
		t.Fatal("candles kept after the chart selection was cleared")
	}
}
