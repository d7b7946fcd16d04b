package security

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/models"
)

// Limits applied to mutation inputs before anything is sent.
const (
	MaxOrderQuantity = 1_000_000_000
	MaxOrderPrice    = 1_000_000_000
	MaxExtractorRate = 1_000_000
)

// MaxSpeedMultiplier caps the simulation speed accepted locally.
var MaxSpeedMultiplier = decimal.NewFromInt(1000)

// InputValidator validates user-entered mutation fields. Every failure is an
// *errors.ValidationError, and is reported to the audit log when one is set.
type InputValidator struct {
	audit *AuditLogger
}

// NewInputValidator creates a new input validator. audit may be nil.
func NewInputValidator(audit *AuditLogger) *InputValidator {
	return &InputValidator{audit: audit}
}

func (v *InputValidator) fail(field, message string) error {
	if v != nil && v.audit != nil {
		_ = v.audit.LogInputValidation(context.Background(), field, message)
	}
	return apperrors.NewValidationError(field, message)
}

// ValidateOrderType validates and normalizes a side.
func (v *InputValidator) ValidateOrderType(side string) (models.OrderType, error) {
	t := models.OrderType(strings.ToLower(strings.TrimSpace(side)))
	if !t.Valid() {
		return "", v.fail("order_type", "order type must be buy or sell")
	}
	return t, nil
}

// ValidateQuantity validates an order quantity.
func (v *InputValidator) ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return v.fail("quantity", "quantity must be positive")
	}
	if qty > MaxOrderQuantity {
		return v.fail("quantity", "quantity exceeds maximum allowed")
	}
	return nil
}

// ValidatePrice validates a price per unit.
func (v *InputValidator) ValidatePrice(price int64) error {
	if price <= 0 {
		return v.fail("price_per_unit", "price must be positive")
	}
	if price > MaxOrderPrice {
		return v.fail("price_per_unit", "price exceeds maximum allowed")
	}
	return nil
}

// ValidateRate validates an extractor rate per hour.
func (v *InputValidator) ValidateRate(rate int64) error {
	if rate <= 0 {
		return v.fail("rate_per_hour", "rate must be positive")
	}
	if rate > MaxExtractorRate {
		return v.fail("rate_per_hour", "rate exceeds maximum allowed")
	}
	return nil
}

// ValidateMultiplier validates a simulation speed multiplier.
func (v *InputValidator) ValidateMultiplier(m decimal.Decimal) error {
	if !m.IsPositive() {
		return v.fail("multiplier", "speed must be > 0")
	}
	if m.GreaterThan(MaxSpeedMultiplier) {
		return v.fail("multiplier", "speed exceeds maximum allowed")
	}
	return nil
}

// ParseInt parses a whole-number form field.
func (v *InputValidator) ParseInt(field, raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, v.fail(field, field+" must be a whole number")
	}
	return n, nil
}

// ParseMultiplier parses a speed multiplier such as "0.25" or "10x".
func (v *InputValidator) ParseMultiplier(raw string) (decimal.Decimal, error) {
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "x")
	m, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, v.fail("multiplier", "speed must be a number")
	}
	return m, v.ValidateMultiplier(m)
}
