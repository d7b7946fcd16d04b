// Package gatewaytest provides an in-memory game service for tests. It serves
// the same routes as the real service, enforces the same business rules for
// orders, claims and extractors, and answers failures with FastAPI style
// {"detail": ...} bodies.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"econsim-terminal/internal/models"
)

type invKey struct {
	company int64
	good    int64
}

type failure struct {
	status int
	body   string
}

// Service is a fake game service.
type Service struct {
	mu sync.Mutex

	companies map[int64]*models.Company
	goods     map[int64]models.Good
	inventory map[invKey]*models.InventoryItem
	orders    []*models.MarketOrder
	trades    []models.Trade
	locations []*models.Location
	speed     decimal.Decimal

	nextOrderID int64
	nextTradeID int64
	nextSiteID  int64
	nextInvID   int64

	failures map[string]failure
	hits     map[string]int
	hook     func(r *http.Request)

	mux    *chi.Mux
	server *httptest.Server
}

// New starts a fake service. Close it with Close.
func New() *Service {
	s := &Service{
		companies:   make(map[int64]*models.Company),
		goods:       make(map[int64]models.Good),
		inventory:   make(map[invKey]*models.InventoryItem),
		speed:       decimal.NewFromInt(1),
		nextOrderID: 1,
		nextTradeID: 1,
		nextSiteID:  1,
		nextInvID:   1,
		failures:    make(map[string]failure),
		hits:        make(map[string]int),
	}
	s.server = httptest.NewServer(s.routes())
	return s
}

// URL returns the base URL of the fake service.
func (s *Service) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Service) Close() {
	s.server.Close()
}

// AddCompany registers a company.
func (s *Service) AddCompany(id int64, name string, cash int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[id] = &models.Company{ID: id, Name: name, Cash: cash}
}

// AddGood registers a catalog good.
func (s *Service) AddGood(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goods[id] = models.Good{ID: id, Name: name}
}

// SetInventory sets a company's holding of a good.
func (s *Service) SetInventory(companyID, goodID, quantity, reserved int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.item(companyID, goodID)
	item.Quantity = quantity
	item.Reserved = reserved
}

// AddLocation registers an unclaimed location with deposits of the given
// goods.
func (s *Service) AddLocation(id int64, name string, depositGoods ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := &models.Location{ID: id, Name: name, X: float64(id), Y: float64(id), Biome: "plains"}
	for _, g := range depositGoods {
		loc.Deposits = append(loc.Deposits, models.Deposit{
			GoodID:          g,
			GoodName:        s.goods[g].Name,
			RemainingAmount: 1000,
		})
	}
	s.locations = append(s.locations, loc)
}

// Inventory returns a copy of a company's holding of a good.
func (s *Service) Inventory(companyID, goodID int64) models.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.inventory[invKey{companyID, goodID}]; ok {
		return *item
	}
	return models.InventoryItem{CompanyID: companyID, GoodID: goodID}
}

// Speed returns the current simulation speed.
func (s *Service) Speed() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// FailNext makes the next request to the route pattern (for example
// "GET /market/orders") fail with status and body.
func (s *Service) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

// Hits returns how many requests matched the route pattern.
func (s *Service) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// OnRequest installs a hook run before every request is handled.
func (s *Service) OnRequest(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *Service) routes() *chi.Mux {
	r := chi.NewRouter()
	s.mux = r
	r.Use(s.intercept)

	r.Get("/companies", s.handleCompanies)
	r.Get("/goods", s.handleGoods)
	r.Get("/inventories/company/{companyID}", s.handleInventory)

	r.Get("/market/orders", s.handleOrders)
	// both routes share the {id} segment; chi rejects differing names there
	r.Post("/market/orders/{id}", s.handlePlaceOrder)
	r.Post("/market/orders/{id}/cancel", s.handleCancelOrder)
	r.Get("/market/orderbook/{goodID}", s.handleOrderBook)
	r.Get("/market/stats/{goodID}", s.handleStats)
	r.Get("/market/trades", s.handleTrades)
	r.Get("/market/candles/{goodID}", s.handleCandles)

	r.Get("/map", s.handleMap)
	r.Post("/locations/{locationID}/claim", s.handleClaim)
	r.Post("/extraction-sites/", s.handleBuildExtractor)

	r.Get("/simulation/speed", s.handleSpeed)
	r.Post("/simulation/speed", s.handleSetSpeed)
	return r
}

// intercept counts hits per route pattern and serves injected failures.
func (s *Service) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.NewRouteContext()
		route := r.Method + " " + r.URL.Path
		if s.mux.Match(rctx, r.Method, r.URL.Path) {
			route = r.Method + " " + rctx.RoutePattern()
		}

		s.mu.Lock()
		s.hits[route]++
		hook := s.hook
		f, fail := s.failures[route]
		delete(s.failures, route)
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if fail {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleCompanies(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, *c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleGoods(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Good, 0, len(s.goods))
	for _, g := range s.goods {
		out = append(out, g)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleInventory(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	s.mu.Lock()
	out := []models.InventoryItem{}
	for k, item := range s.inventory {
		if k.company == companyID {
			cp := *item
			cp.GoodName = s.goods[k.good].Name
			out = append(out, cp)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GoodID < out[j].GoodID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := []models.MarketOrder{}
	for _, o := range s.orders {
		if o.IsOpen() && o.Quantity > 0 {
			out = append(out, *o)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if !req.OrderType.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid order type")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	company, ok := s.companies[companyID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Company not found")
		return
	}
	good, ok := s.goods[req.GoodID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Good not found")
		return
	}

	if req.OrderType == models.OrderTypeSell {
		item, ok := s.inventory[invKey{companyID, req.GoodID}]
		if !ok {
			writeDetail(w, http.StatusBadRequest, "No inventory")
			return
		}
		if item.Quantity-item.Reserved < req.Quantity {
			writeDetail(w, http.StatusBadRequest, "Not enough free inventory")
			return
		}
		item.Reserved += req.Quantity
	}

	order := &models.MarketOrder{
		ID:           s.nextOrderID,
		OrderType:    req.OrderType,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		Status:       models.OrderStatusOpen,
		GoodID:       good.ID,
		GoodName:     good.Name,
		CompanyID:    company.ID,
		CompanyName:  company.Name,
	}
	s.nextOrderID++
	s.orders = append(s.orders, order)
	s.match(order)

	writeJSON(w, http.StatusOK, *order)
}

// match crosses an incoming order against resting orders of the other side,
// best price first and oldest first within a price. Caller holds mu.
func (s *Service) match(in *models.MarketOrder) {
	var resting []*models.MarketOrder
	for _, o := range s.orders {
		if o == in || !o.IsOpen() || o.GoodID != in.GoodID || o.OrderType == in.OrderType {
			continue
		}
		if in.OrderType == models.OrderTypeBuy && o.PricePerUnit <= in.PricePerUnit {
			resting = append(resting, o)
		}
		if in.OrderType == models.OrderTypeSell && o.PricePerUnit >= in.PricePerUnit {
			resting = append(resting, o)
		}
	}
	sort.SliceStable(resting, func(i, j int) bool {
		if resting[i].PricePerUnit != resting[j].PricePerUnit {
			if in.OrderType == models.OrderTypeBuy {
				return resting[i].PricePerUnit < resting[j].PricePerUnit
			}
			return resting[i].PricePerUnit > resting[j].PricePerUnit
		}
		return resting[i].ID < resting[j].ID
	})

	for _, o := range resting {
		if in.Quantity <= 0 || !in.IsOpen() {
			break
		}
		buy, sell := in, o
		if in.OrderType == models.OrderTypeSell {
			buy, sell = o, in
		}
		s.execute(buy, sell)
	}
	if in.Quantity == 0 {
		in.Status = models.OrderStatusFilled
	}
}

func (s *Service) execute(buy, sell *models.MarketOrder) {
	qty := min(buy.Quantity, sell.Quantity)
	price := sell.PricePerUnit
	buyer := s.companies[buy.CompanyID]
	seller := s.companies[sell.CompanyID]
	if buyer.Cash < qty*price {
		buy.Status = models.OrderStatusCancelled
		return
	}
	buyer.Cash -= qty * price
	seller.Cash += qty * price

	sellerInv := s.item(sell.CompanyID, sell.GoodID)
	sellerInv.Reserved -= qty
	sellerInv.Quantity -= qty
	s.item(buy.CompanyID, sell.GoodID).Quantity += qty

	s.trades = append(s.trades, models.Trade{
		ID:              s.nextTradeID,
		GoodID:          sell.GoodID,
		BuyerCompanyID:  buy.CompanyID,
		SellerCompanyID: sell.CompanyID,
		Quantity:        qty,
		PricePerUnit:    price,
		CreatedAt:       models.Timestamp{Time: time.Now().UTC()},
	})
	s.nextTradeID++

	buy.Quantity -= qty
	sell.Quantity -= qty
	if buy.Quantity == 0 {
		buy.Status = models.OrderStatusFilled
	}
	if sell.Quantity == 0 {
		sell.Status = models.OrderStatusFilled
	}
}

func (s *Service) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	companyID, ok := queryID(w, r, "company_id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var order *models.MarketOrder
	for _, o := range s.orders {
		if o.ID == orderID {
			order = o
			break
		}
	}
	if order == nil {
		writeDetail(w, http.StatusNotFound, "Order not found")
		return
	}
	if order.CompanyID != companyID {
		writeDetail(w, http.StatusForbidden, "Not your order")
		return
	}
	if !order.IsOpen() {
		writeDetail(w, http.StatusBadRequest, "Order not open")
		return
	}
	if order.OrderType == models.OrderTypeSell {
		item := s.item(order.CompanyID, order.GoodID)
		item.Reserved = max(item.Reserved-order.Quantity, 0)
	}
	order.Status = models.OrderStatusCancelled
	writeJSON(w, http.StatusOK, models.CancelAck{Status: "cancelled", OrderID: orderID})
}

func (s *Service) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	goodID, ok := pathID(w, r, "goodID")
	if !ok {
		return
	}
	s.mu.Lock()
	buy := map[int64]int64{}
	sell := map[int64]int64{}
	for _, o := range s.orders {
		if o.GoodID != goodID || !o.IsOpen() {
			continue
		}
		if o.OrderType == models.OrderTypeBuy {
			buy[o.PricePerUnit] += o.Quantity
		} else {
			sell[o.PricePerUnit] += o.Quantity
		}
	}
	s.mu.Unlock()

	book := models.OrderBook{Buy: levels(buy), Sell: levels(sell)}
	sort.Slice(book.Buy, func(i, j int) bool { return book.Buy[i].Price > book.Buy[j].Price })
	sort.Slice(book.Sell, func(i, j int) bool { return book.Sell[i].Price < book.Sell[j].Price })
	writeJSON(w, http.StatusOK, book)
}

func levels(m map[int64]int64) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, 0, len(m))
	for p, q := range m {
		out = append(out, models.OrderBookLevel{Price: p, Quantity: q})
	}
	return out
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	goodID, ok := pathID(w, r, "goodID")
	if !ok {
		return
	}
	s.mu.Lock()
	var stats models.MarketStats
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].GoodID == goodID {
			p := s.trades[i].PricePerUnit
			stats.LastPrice = &p
			break
		}
	}
	for _, o := range s.orders {
		if o.GoodID != goodID || !o.IsOpen() {
			continue
		}
		p := o.PricePerUnit
		if o.OrderType == models.OrderTypeBuy && (stats.BestBid == nil || p > *stats.BestBid) {
			stats.BestBid = &p
		}
		if o.OrderType == models.OrderTypeSell && (stats.BestAsk == nil || p < *stats.BestAsk) {
			stats.BestAsk = &p
		}
	}
	s.mu.Unlock()
	if stats.BestBid != nil && stats.BestAsk != nil {
		spread := *stats.BestAsk - *stats.BestBid
		stats.Spread = &spread
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleTrades(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Trade, len(s.trades))
	copy(out, s.trades)
	s.mu.Unlock()
	// newest first, as the service reports them
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleCandles(w http.ResponseWriter, r *http.Request) {
	goodID, ok := pathID(w, r, "goodID")
	if !ok {
		return
	}
	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid minutes")
			return
		}
		minutes = n
	}
	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)

	s.mu.Lock()
	buckets := map[time.Time]*models.Candle{}
	var keys []time.Time
	for _, t := range s.trades {
		if t.GoodID != goodID || t.CreatedAt.Before(since) {
			continue
		}
		k := t.CreatedAt.Truncate(time.Minute)
		c, ok := buckets[k]
		if !ok {
			open := t.PricePerUnit
			c = &models.Candle{Time: models.Timestamp{Time: k}, Open: &open, High: open, Low: open}
			buckets[k] = c
			keys = append(keys, k)
		}
		closing := t.PricePerUnit
		c.Close = &closing
		c.High = max(c.High, closing)
		c.Low = min(c.Low, closing)
		c.Volume += t.Quantity
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	out := make([]models.Candle, 0, len(keys))
	for _, k := range keys {
		out = append(out, *buckets[k])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleMap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := models.WorldMap{Locations: make([]models.Location, 0, len(s.locations))}
	for _, l := range s.locations {
		cp := *l
		cp.Deposits = append([]models.Deposit{}, l.Deposits...)
		cp.ExtractionSites = append([]models.ExtractionSite{}, l.ExtractionSites...)
		out.Locations = append(out.Locations, cp)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleClaim(w http.ResponseWriter, r *http.Request) {
	locationID, ok := pathID(w, r, "locationID")
	if !ok {
		return
	}
	companyID, ok := queryID(w, r, "company_id")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.location(locationID)
	if loc == nil {
		writeDetail(w, http.StatusNotFound, "Location not found")
		return
	}
	if loc.Claimed() {
		writeDetail(w, http.StatusBadRequest, "Location already claimed")
		return
	}
	company, ok := s.companies[companyID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Company not found")
		return
	}
	for _, l := range s.locations {
		if l.ClaimedByCompanyID != nil && *l.ClaimedByCompanyID == companyID {
			writeDetail(w, http.StatusBadRequest, "Company already has a home location")
			return
		}
	}
	id, name := company.ID, company.Name
	loc.ClaimedByCompanyID = &id
	loc.ClaimedByCompanyName = &name
	writeJSON(w, http.StatusOK, models.ClaimAck{Status: "claimed", LocationID: locationID})
}

func (s *Service) handleBuildExtractor(w http.ResponseWriter, r *http.Request) {
	companyID, ok := queryID(w, r, "company_id")
	if !ok {
		return
	}
	var req models.ExtractionSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.location(req.LocationID)
	if loc == nil {
		writeDetail(w, http.StatusNotFound, "Location not found")
		return
	}
	if loc.ClaimedByCompanyID == nil || *loc.ClaimedByCompanyID != companyID {
		writeDetail(w, http.StatusForbidden, "Location not owned by company")
		return
	}
	for _, site := range loc.ExtractionSites {
		if site.GoodID == req.GoodID {
			writeDetail(w, http.StatusBadRequest, "Extractor already exists for this resource")
			return
		}
	}
	hasDeposit := false
	for _, d := range loc.Deposits {
		if d.GoodID == req.GoodID {
			hasDeposit = true
		}
	}
	if !hasDeposit {
		writeDetail(w, http.StatusBadRequest, "Resource not present at location")
		return
	}

	site := models.ExtractionSite{
		ID:          s.nextSiteID,
		CompanyID:   companyID,
		CompanyName: s.companies[companyID].Name,
		LocationID:  loc.ID,
		GoodID:      req.GoodID,
		GoodName:    s.goods[req.GoodID].Name,
		RatePerHour: req.RatePerHour,
		Active:      true,
		CreatedAt:   models.Timestamp{Time: time.Now().UTC()},
	}
	s.nextSiteID++
	loc.ExtractionSites = append(loc.ExtractionSites, site)
	writeJSON(w, http.StatusOK, site)
}

func (s *Service) handleSpeed(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	speed := models.SimulationSpeed{Multiplier: s.speed}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, speed)
}

func (s *Service) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	m, err := decimal.NewFromString(r.URL.Query().Get("multiplier"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid multiplier")
		return
	}
	if !m.IsPositive() {
		writeDetail(w, http.StatusBadRequest, "Speed must be > 0")
		return
	}
	s.mu.Lock()
	s.speed = m
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, models.SimulationSpeed{Multiplier: m})
}

// item returns the inventory row, creating it. Caller holds mu.
func (s *Service) item(companyID, goodID int64) *models.InventoryItem {
	k := invKey{companyID, goodID}
	item, ok := s.inventory[k]
	if !ok {
		item = &models.InventoryItem{ID: s.nextInvID, CompanyID: companyID, GoodID: goodID}
		s.nextInvID++
		s.inventory[k] = item
	}
	return item
}

func (s *Service) location(id int64) *models.Location {
	for _, l := range s.locations {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
