package security

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	apperrors "econsim-terminal/internal/errors"
)

func TestAccessController_BlocksWritesInReadOnlyMode(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLoggerWriter(&buf)
	ac := NewAccessController(true, audit)
	ctx := context.Background()

	if err := ac.CheckPermission(ctx, OpRead); err != nil {
		t.Fatalf("reads must be allowed, got %v", err)
	}
	for _, op := range WriteOperations() {
		err := ac.CheckPermission(ctx, op)
		var roe *ReadOnlyError
		if !apperrors.As(err, &roe) || roe.Operation != op {
			t.Fatalf("%s: expected ReadOnlyError, got %v", op, err)
		}
		if !apperrors.Is(err, apperrors.ErrReadOnlyMode) {
			t.Fatalf("%s: error should wrap ErrReadOnlyMode", op)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(WriteOperations()) {
		t.Fatalf("audit recorded %d events, want %d", len(lines), len(WriteOperations()))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.EventType != AuditReadOnlyViolation || ev.SessionID != audit.SessionID() || ev.Success {
		t.Fatalf("unexpected audit event %+v", ev)
	}

	ac.SetReadOnly(false)
	if err := ac.CheckPermission(ctx, OpPlaceOrder); err != nil {
		t.Fatalf("writes must be allowed once read-only is off, got %v", err)
	}
}

func TestAuditLogger_RecordsOutcome(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLoggerWriter(&buf)
	ctx := context.Background()

	_ = audit.LogOrderPlaced(ctx, 1, 2, 3, "buy", 5, 10, nil)
	_ = audit.LogLocationClaimed(ctx, 1, 9, apperrors.NewRemoteError("POST", "/locations/9/claim", 400, `{"detail":"Location already claimed"}`))

	dec := json.NewDecoder(&buf)
	var placed, claimed AuditEvent
	if err := dec.Decode(&placed); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(&claimed); err != nil {
		t.Fatal(err)
	}
	if !placed.Success || placed.OrderID != 3 || placed.Action != "buy" {
		t.Errorf("placed event = %+v", placed)
	}
	if claimed.Success || claimed.ErrorMsg != `{"detail":"Location already claimed"}` {
		t.Errorf("claimed event = %+v", claimed)
	}
}

func TestParseMultiplier(t *testing.T) {
	v := NewInputValidator(nil)
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.25", "0.25", false},
		{"10x", "10", false},
		{" 60 ", "60", false},
		{"0", "", true},
		{"-1", "", true},
		{"fast", "", true},
		{"5000", "", true},
	}
	for _, tt := range tests {
		got, err := v.ParseMultiplier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMultiplier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseMultiplier(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if tt.wantErr && !apperrors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("ParseMultiplier(%q) error should wrap ErrInputValidation", tt.in)
		}
	}
}

// Property: quantities and prices are accepted iff they are positive and
// within limits.
func TestProperty_QuantityAndPriceBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	v := NewInputValidator(nil)

	properties.Property("quantity bounds", prop.ForAll(
		func(n int64) bool {
			ok := n > 0 && n <= MaxOrderQuantity
			return (v.ValidateQuantity(n) == nil) == ok
		},
		gen.Int64Range(-10, MaxOrderQuantity+10),
	))

	properties.Property("price bounds", prop.ForAll(
		func(n int64) bool {
			ok := n > 0 && n <= MaxOrderPrice
			return (v.ValidatePrice(n) == nil) == ok
		},
		gen.Int64Range(-10, MaxOrderPrice+10),
	))

	properties.Property("order type", prop.ForAll(
		func(side string) bool {
			_, err := v.ValidateOrderType(side)
			norm := strings.ToLower(strings.TrimSpace(side))
			return (err == nil) == (norm == "buy" || norm == "sell")
		},
		gen.OneConstOf("buy", "SELL", " Buy ", "hold", "", "market"),
	))

	properties.TestingRun(t)
}
