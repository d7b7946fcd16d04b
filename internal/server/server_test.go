package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"econsim-terminal/internal/feed"
	"econsim-terminal/internal/gateway"
	"econsim-terminal/internal/gateway/gatewaytest"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/session"
	"econsim-terminal/internal/stream"
	"econsim-terminal/internal/views"
)

type fixture struct {
	svc  *gatewaytest.Service
	sess *session.Session
	hub  *stream.Hub
	http *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	svc := gatewaytest.New()
	t.Cleanup(svc.Close)
	svc.AddCompany(1, "Acme", 5000)
	svc.AddCompany(2, "Rival", 5000)
	svc.AddGood(10, "Iron")
	svc.SetInventory(1, 10, 50, 0)
	svc.AddLocation(100, "Ridge", 10)
	svc.AddLocation(101, "Basin", 10)

	sess, err := session.New(session.Options{
		API:       gateway.New(gateway.Config{BaseURL: svc.URL(), Logger: zerolog.Nop()}),
		Intervals: session.Intervals{Orders: time.Hour, Depth: time.Hour, Stats: time.Hour, Trades: time.Hour},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sess.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := stream.NewHub()
	hub.Start(ctx)
	t.Cleanup(hub.Stop)
	sess.OnSourceChange(hub.Publish)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(New(sess, hub, zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)
	return &fixture{svc: svc, sess: sess, hub: hub, http: ts}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthReportsSources(t *testing.T) {
	f := setup(t)

	var health SystemHealth
	if code := getJSON(t, f.http.URL+"/health", &health); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	byName := map[string]ComponentHealth{}
	for _, c := range health.Components {
		byName[c.Name] = c
	}
	if byName["orders"].Status != HealthStatusHealthy {
		t.Errorf("orders = %+v", byName["orders"])
	}
	if byName["inventory"].Status != HealthStatusUnknown {
		t.Errorf("inventory without a company should be UNKNOWN, got %+v", byName["inventory"])
	}
	if health.Status != HealthStatusHealthy {
		t.Errorf("overall = %s", health.Status)
	}
}

func TestComponentHealthClassification(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		st   feed.Status
		want HealthStatus
	}{
		{"loaded", feed.Status{HasValue: true, UpdatedAt: now}, HealthStatusHealthy},
		{"recovered", feed.Status{HasValue: true, UpdatedAt: now, LastError: "x", LastErrorAt: now.Add(-time.Second)}, HealthStatusHealthy},
		{"stale", feed.Status{HasValue: true, UpdatedAt: now.Add(-time.Second), LastError: "x", LastErrorAt: now}, HealthStatusDegraded},
		{"never loaded", feed.Status{LastError: "x", LastErrorAt: now}, HealthStatusUnhealthy},
		{"idle", feed.Status{}, HealthStatusUnknown},
	}
	for _, tt := range tests {
		if got := componentHealth(tt.st).Status; got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestMarketAndInventoryViews(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.sess.Company.Set(1)
	if err := f.sess.Inventory.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	f.sess.MarketGood.Set(10)
	if err := f.sess.Depth.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sess.PlaceOrder(ctx, session.OrderTicket{Side: models.OrderTypeSell, Price: 7, Quantity: 4}); err != nil {
		t.Fatal(err)
	}
	if err := f.sess.Depth.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	var market MarketView
	getJSON(t, f.http.URL+"/api/market", &market)
	if len(market.Sell) != 1 || market.Sell[0].PricePerUnit != 7 {
		t.Fatalf("sell ladder = %+v", market.Sell)
	}
	if market.Quote.BestAsk == nil || *market.Quote.BestAsk != 7 || market.Quote.BestBid != nil {
		t.Fatalf("quote = %+v", market.Quote)
	}
	if market.Book == nil || len(market.Book.Sell) != 1 {
		t.Fatalf("book = %+v", market.Book)
	}

	var inv InventoryView
	getJSON(t, f.http.URL+"/api/inventory", &inv)
	if inv.Company == nil || inv.Company.Name != "Acme" {
		t.Fatalf("company = %+v", inv.Company)
	}
	if len(inv.Rows) != 1 || inv.Rows[0].Reserved != 4 || inv.Rows[0].Available != 46 {
		t.Fatalf("rows = %+v", inv.Rows)
	}
}

func TestMapView(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.sess.Company.Set(1)
	if err := f.sess.ClaimLocation(ctx, 100); err != nil {
		t.Fatal(err)
	}

	var locs []LocationView
	getJSON(t, f.http.URL+"/api/map", &locs)
	if len(locs) != 2 || locs[0].Name != "Basin" {
		t.Fatalf("locations should be sorted by name, got %+v", locs)
	}
	ridge := locs[1]
	if ridge.Ownership != views.OwnedByViewer || ridge.CanClaim {
		t.Fatalf("ridge = %+v", ridge)
	}
	if len(ridge.Buildable) != 1 || ridge.Buildable[0] != 10 {
		t.Fatalf("buildable = %v", ridge.Buildable)
	}
	if locs[0].Ownership != views.Unclaimed || !locs[0].CanClaim {
		t.Fatalf("basin = %+v", locs[0])
	}
}

func TestTapeView(t *testing.T) {
	f := setup(t)

	if code := getJSON(t, f.http.URL+"/api/tape?limit=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", code)
	}

	var tape TapeView
	if code := getJSON(t, f.http.URL+"/api/tape?good=10", &tape); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if tape.Summary == nil || tape.Summary.GoodID != 10 || tape.Summary.Trades != 0 {
		t.Fatalf("summary = %+v", tape.Summary)
	}
}

func TestEventsStreamChanges(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.svc.SetInventory(1, 10, 51, 0)
	f.sess.Company.Set(1)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Topic == "inventory" {
			return
		}
	}
	t.Fatalf("no inventory event received: %v", scanner.Err())
}
