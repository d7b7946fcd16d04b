package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/metrics"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/security"
	"econsim-terminal/internal/views"
)

// OrderTicket holds the order entry fields. Price and quantity are reset
// once an order has been placed and its effects refetched.
type OrderTicket struct {
	Side     models.OrderType `json:"side"`
	Price    int64            `json:"price"`
	Quantity int64            `json:"quantity"`
}

// refresher is a source a mutation waits on.
type refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// mutation describes one user action. validate runs first and sends
// nothing on failure; submit is attempted exactly once; dependents are all
// refetched before the action completes.
type mutation struct {
	action     string
	op         security.OperationType
	validate   func() error
	submit     func(ctx context.Context) error
	dependents []refresher
	done       func()
}

// run drives a mutation and records its outcome in the error slot.
func (s *Session) run(ctx context.Context, m mutation) error {
	logger := logging.WithOperation(s.logger, m.action)
	start := time.Now()

	fail := func(outcome string, err error) error {
		metrics.MutationsTotal.WithLabelValues(m.action, outcome).Inc()
		logging.LogMutation(logger, m.action, err)
		s.Errors.Set(m.action, err)
		return err
	}

	if err := s.opts.Access.CheckPermission(ctx, m.op); err != nil {
		return fail("rejected", err)
	}
	if m.validate != nil {
		if err := m.validate(); err != nil {
			return fail("rejected", err)
		}
	}

	if err := m.submit(ctx); err != nil {
		return fail("failed", err)
	}
	s.Errors.Clear()

	var g errgroup.Group
	for _, dep := range m.dependents {
		dep := dep
		g.Go(func() error {
			if err := dep.Refresh(ctx); err != nil {
				return apperrors.NewRefreshError(m.action, dep.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail("refresh_failed", err)
	}

	if m.done != nil {
		m.done()
	}
	metrics.MutationsTotal.WithLabelValues(m.action, "ok").Inc()
	logging.LogMutation(logger, m.action, nil)
	logger.Debug().Dur("duration", time.Since(start)).Msg("Dependents refreshed")
	return nil
}

func (s *Session) requireCompany() (int64, error) {
	id, ok := s.Company.Get()
	if !ok {
		return 0, apperrors.MissingSelection("company", apperrors.ErrNoCompanySelected)
	}
	return id, nil
}

func (s *Session) requireGood() (int64, error) {
	id, ok := s.MarketGood.Get()
	if !ok {
		return 0, apperrors.MissingSelection("good", apperrors.ErrNoGoodSelected)
	}
	return id, nil
}

// Ticket returns the current order entry fields.
func (s *Session) Ticket() OrderTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticket
}

// SetTicket replaces the order entry fields.
func (s *Session) SetTicket(t OrderTicket) {
	s.mu.Lock()
	s.ticket = t
	s.mu.Unlock()
}

// PlaceOrder sets the ticket and submits it.
func (s *Session) PlaceOrder(ctx context.Context, t OrderTicket) (models.MarketOrder, error) {
	s.SetTicket(t)
	return s.SubmitTicket(ctx)
}

// SubmitTicket places an order for the selected company and market good
// from the current ticket. It returns once orders and inventory reflect it.
func (s *Session) SubmitTicket(ctx context.Context) (models.MarketOrder, error) {
	var (
		placed    models.MarketOrder
		companyID int64
		req       models.OrderRequest
	)
	t := s.Ticket()

	err := s.run(ctx, mutation{
		action: "place_order",
		op:     security.OpPlaceOrder,
		validate: func() error {
			var err error
			if companyID, err = s.requireCompany(); err != nil {
				return err
			}
			goodID, err := s.requireGood()
			if err != nil {
				return err
			}
			side, err := s.opts.Validator.ValidateOrderType(string(t.Side))
			if err != nil {
				return err
			}
			if err := s.opts.Validator.ValidatePrice(t.Price); err != nil {
				return err
			}
			if err := s.opts.Validator.ValidateQuantity(t.Quantity); err != nil {
				return err
			}
			req = models.OrderRequest{OrderType: side, GoodID: goodID, PricePerUnit: t.Price, Quantity: t.Quantity}
			return nil
		},
		submit: func(ctx context.Context) error {
			var err error
			placed, err = s.api.PlaceOrder(ctx, companyID, req)
			s.audit(func(a *security.AuditLogger) {
				_ = a.LogOrderPlaced(ctx, companyID, req.GoodID, placed.ID, string(req.OrderType), req.Quantity, req.PricePerUnit, err)
			})
			return err
		},
		dependents: []refresher{s.Orders, s.Inventory},
		done: func() {
			s.mu.Lock()
			s.ticket = OrderTicket{Side: t.Side}
			s.mu.Unlock()
		},
	})
	return placed, err
}

// CancelOrder cancels an order of the selected company. It returns once
// orders and inventory reflect the cancellation.
func (s *Session) CancelOrder(ctx context.Context, orderID int64) error {
	var companyID int64
	return s.run(ctx, mutation{
		action: "cancel_order",
		op:     security.OpCancelOrder,
		validate: func() error {
			var err error
			if companyID, err = s.requireCompany(); err != nil {
				return err
			}
			if o, ok := views.FindOrder(s.Orders.Value(), orderID); ok && !views.CanCancel(o, &companyID) {
				return apperrors.NewValidationError("order_id", "order cannot be cancelled by this company")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			_, err := s.api.CancelOrder(ctx, orderID, companyID)
			s.audit(func(a *security.AuditLogger) {
				_ = a.LogOrderCancelled(ctx, companyID, orderID, err)
			})
			return err
		},
		dependents: []refresher{s.Orders, s.Inventory},
	})
}

// ClaimLocation claims a location for the selected company and selects it.
// It returns once the map shows the claim.
func (s *Session) ClaimLocation(ctx context.Context, locationID int64) error {
	var companyID int64
	return s.run(ctx, mutation{
		action: "claim_location",
		op:     security.OpClaimLocation,
		validate: func() error {
			var err error
			if companyID, err = s.requireCompany(); err != nil {
				return err
			}
			if loc, ok := views.FindLocation(s.Map.Value(), locationID); ok && !views.CanClaim(loc, &companyID) {
				return apperrors.NewValidationError("location_id", "location already claimed")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			_, err := s.api.ClaimLocation(ctx, locationID, companyID)
			s.audit(func(a *security.AuditLogger) {
				_ = a.LogLocationClaimed(ctx, companyID, locationID, err)
			})
			return err
		},
		dependents: []refresher{s.Map},
		done: func() {
			s.Location.Set(locationID)
		},
	})
}

// BuildExtractor builds an extraction site for goodID at a location held by
// the selected company. A zero rate uses the configured default. It returns
// once the map shows the new site.
func (s *Session) BuildExtractor(ctx context.Context, locationID, goodID, rate int64) (models.ExtractionSite, error) {
	var (
		companyID int64
		site      models.ExtractionSite
	)
	if rate == 0 {
		rate = s.opts.ExtractorRate
	}
	err := s.run(ctx, mutation{
		action: "build_extractor",
		op:     security.OpBuildExtractor,
		validate: func() error {
			var err error
			if companyID, err = s.requireCompany(); err != nil {
				return err
			}
			if err := s.opts.Validator.ValidateRate(rate); err != nil {
				return err
			}
			if loc, ok := views.FindLocation(s.Map.Value(), locationID); ok && !views.CanBuildExtractor(loc, goodID, &companyID) {
				return apperrors.NewValidationError("good_id", "extractor cannot be built here")
			}
			return nil
		},
		submit: func(ctx context.Context) error {
			var err error
			site, err = s.api.BuildExtractor(ctx, companyID, models.ExtractionSiteRequest{
				LocationID:  locationID,
				GoodID:      goodID,
				RatePerHour: rate,
			})
			s.audit(func(a *security.AuditLogger) {
				_ = a.LogExtractorBuilt(ctx, companyID, locationID, goodID, rate, err)
			})
			return err
		},
		dependents: []refresher{s.Map},
	})
	return site, err
}

// SetSpeed changes the simulation speed and adopts it locally as soon as
// the service accepts it.
func (s *Session) SetSpeed(ctx context.Context, multiplier decimal.Decimal) error {
	return s.run(ctx, mutation{
		action: "set_speed",
		op:     security.OpSetSpeed,
		validate: func() error {
			return s.opts.Validator.ValidateMultiplier(multiplier)
		},
		submit: func(ctx context.Context) error {
			_, err := s.api.SetSpeed(ctx, multiplier)
			s.audit(func(a *security.AuditLogger) {
				_ = a.LogSpeedChanged(ctx, multiplier.String(), err)
			})
			if err == nil {
				s.Speed.Set(ctx, models.SimulationSpeed{Multiplier: multiplier})
			}
			return err
		},
	})
}

func (s *Session) audit(fn func(a *security.AuditLogger)) {
	if s.opts.Audit != nil {
		fn(s.opts.Audit)
	}
}
