package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/gateway"
	"econsim-terminal/internal/gateway/gatewaytest"
	"econsim-terminal/internal/models"
)

func newClient(url string) *gateway.Client {
	return gateway.New(gateway.Config{BaseURL: url, Logger: zerolog.Nop()})
}

func TestNew_DefaultsAndTrimsBaseURL(t *testing.T) {
	if got := gateway.New(gateway.Config{}).BaseURL(); got != gateway.DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got, gateway.DefaultBaseURL)
	}
	if got := gateway.New(gateway.Config{BaseURL: "http://game:9000/"}).BaseURL(); got != "http://game:9000" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", got)
	}
}

func TestRemoteErrorCarriesBodyVerbatim(t *testing.T) {
	svc := gatewaytest.New()
	defer svc.Close()
	svc.AddCompany(1, "Acme", 1000)
	svc.AddGood(10, "Iron")

	c := newClient(svc.URL())
	_, err := c.PlaceOrder(context.Background(), 1, models.OrderRequest{
		OrderType:    models.OrderTypeSell,
		GoodID:       10,
		PricePerUnit: 5,
		Quantity:     3,
	})

	var remote *apperrors.RemoteError
	if !apperrors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if remote.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", remote.Status)
	}
	want := `{"detail":"No inventory"}` + "\n"
	if err.Error() != want {
		t.Errorf("Error() = %q, want raw body %q", err.Error(), want)
	}
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(url).Companies(context.Background())
	var remote *apperrors.RemoteError
	if !apperrors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if remote.Status != 0 || remote.Err == nil {
		t.Errorf("transport failure should carry the cause and no status, got %+v", remote)
	}
}

func TestCallerContextBoundsTheRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(srv.URL).Companies(ctx)
	if !apperrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the caller's deadline", err)
	}
}

func TestDecodeFailureIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Goods(context.Background())
	var remote *apperrors.RemoteError
	if !apperrors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
}

func TestSingleAttemptPerCall(t *testing.T) {
	svc := gatewaytest.New()
	defer svc.Close()
	svc.FailNext("GET /market/orders", http.StatusServiceUnavailable, "down")

	c := newClient(svc.URL())
	if _, err := c.Orders(context.Background()); err == nil || err.Error() != "down" {
		t.Fatalf("Orders() error = %v, want \"down\"", err)
	}
	if hits := svc.Hits("GET /market/orders"); hits != 1 {
		t.Fatalf("service saw %d requests, want exactly 1", hits)
	}
}

func TestMutationsSendExpectedRequests(t *testing.T) {
	type captured struct {
		method string
		uri    string
		body   map[string]any
	}
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		got = append(got, captured{r.Method, r.URL.RequestURI(), body})
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	ctx := context.Background()

	if _, err := c.PlaceOrder(ctx, 3, models.OrderRequest{OrderType: models.OrderTypeBuy, GoodID: 7, PricePerUnit: 10, Quantity: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CancelOrder(ctx, 42, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ClaimLocation(ctx, 9, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BuildExtractor(ctx, 3, models.ExtractionSiteRequest{LocationID: 9, GoodID: 7, RatePerHour: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetSpeed(ctx, decimal.RequireFromString("0.25")); err != nil {
		t.Fatal(err)
	}

	want := []struct {
		uri  string
		keys []string
	}{
		{"/market/orders/3", []string{"order_type", "good_id", "price_per_unit", "quantity"}},
		{"/market/orders/42/cancel?company_id=3", nil},
		{"/locations/9/claim?company_id=3", nil},
		{"/extraction-sites/?company_id=3", []string{"location_id", "good_id", "rate_per_hour"}},
		{"/simulation/speed?multiplier=0.25", nil},
	}
	if len(got) != len(want) {
		t.Fatalf("captured %d requests, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].method != http.MethodPost {
			t.Errorf("request %d method = %s, want POST", i, got[i].method)
		}
		if got[i].uri != w.uri {
			t.Errorf("request %d uri = %s, want %s", i, got[i].uri, w.uri)
		}
		if got[i].body == nil {
			t.Errorf("request %d should carry a JSON object body", i)
		}
		if len(got[i].body) != len(w.keys) {
			t.Errorf("request %d body = %v, want keys %v", i, got[i].body, w.keys)
		}
		for _, k := range w.keys {
			if _, ok := got[i].body[k]; !ok {
				t.Errorf("request %d body missing %q", i, k)
			}
		}
	}
}

func TestReadEndpoints(t *testing.T) {
	svc := gatewaytest.New()
	defer svc.Close()
	svc.AddCompany(1, "Acme", 500)
	svc.AddGood(10, "Iron")
	svc.SetInventory(1, 10, 8, 2)
	svc.AddLocation(100, "Ridge", 10)

	c := newClient(svc.URL())
	ctx := context.Background()

	companies, err := c.Companies(ctx)
	if err != nil || len(companies) != 1 || companies[0].Cash != 500 {
		t.Fatalf("Companies() = %v, %v", companies, err)
	}
	inv, err := c.Inventory(ctx, 1)
	if err != nil || len(inv) != 1 || inv[0].Available() != 6 || inv[0].GoodName != "Iron" {
		t.Fatalf("Inventory() = %v, %v", inv, err)
	}
	locs, err := c.Map(ctx)
	if err != nil || len(locs) != 1 || locs[0].Claimed() || len(locs[0].Deposits) != 1 {
		t.Fatalf("Map() = %v, %v", locs, err)
	}
	stats, err := c.Stats(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastPrice != nil || stats.BestBid != nil || stats.Spread != nil {
		t.Fatalf("empty market should have null stats, got %+v", stats)
	}
	speed, err := c.Speed(ctx)
	if err != nil || !speed.Multiplier.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("Speed() = %v, %v", speed, err)
	}
}

func TestCandlesAndTradesAfterMatch(t *testing.T) {
	svc := gatewaytest.New()
	defer svc.Close()
	svc.AddCompany(1, "Seller", 0)
	svc.AddCompany(2, "Buyer", 1000)
	svc.AddGood(10, "Iron")
	svc.SetInventory(1, 10, 10, 0)

	c := newClient(svc.URL())
	ctx := context.Background()

	if _, err := c.PlaceOrder(ctx, 1, models.OrderRequest{OrderType: models.OrderTypeSell, GoodID: 10, PricePerUnit: 12, Quantity: 4}); err != nil {
		t.Fatal(err)
	}
	buy, err := c.PlaceOrder(ctx, 2, models.OrderRequest{OrderType: models.OrderTypeBuy, GoodID: 10, PricePerUnit: 15, Quantity: 4})
	if err != nil {
		t.Fatal(err)
	}
	if buy.Status != models.OrderStatusFilled {
		t.Fatalf("crossing buy should fill, status = %s", buy.Status)
	}

	trades, err := c.Trades(ctx)
	if err != nil || len(trades) != 1 || trades[0].PricePerUnit != 12 || trades[0].CreatedAt.IsZero() {
		t.Fatalf("Trades() = %v, %v", trades, err)
	}
	candles, err := c.Candles(ctx, 10, 60)
	if err != nil || len(candles) != 1 || candles[0].Volume != 4 || !candles[0].Rising() {
		t.Fatalf("Candles() = %v, %v", candles, err)
	}
}
