package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Market events
	AuditOrderPlaced    AuditEventType = "ORDER_PLACED"
	AuditOrderCancelled AuditEventType = "ORDER_CANCELLED"

	// Map events
	AuditLocationClaimed AuditEventType = "LOCATION_CLAIMED"
	AuditExtractorBuilt  AuditEventType = "EXTRACTOR_BUILT"

	// Simulation events
	AuditSpeedChanged AuditEventType = "SPEED_CHANGED"

	// Security events
	AuditReadOnlyViolation AuditEventType = "READ_ONLY_VIOLATION"
	AuditInputValidation   AuditEventType = "INPUT_VALIDATION"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	CompanyID  int64                  `json:"company_id,omitempty"`
	GoodID     int64                  `json:"good_id,omitempty"`
	OrderID    int64                  `json:"order_id,omitempty"`
	LocationID int64                  `json:"location_id,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Success    bool                   `json:"success"`
	ErrorMsg   string                 `json:"error,omitempty"`
	SessionID  string                 `json:"session_id"`
}

// AuditLogger appends one JSON line per mutation attempt.
type AuditLogger struct {
	writer    io.Writer
	mu        sync.Mutex
	sessionID string
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "econsim", "audit"),
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger writing to a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return NewAuditLoggerWriter(writer), nil
}

// NewAuditLoggerWriter creates an audit logger over an arbitrary writer.
func NewAuditLoggerWriter(w io.Writer) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the identifier stamped on every event.
func (al *AuditLogger) SessionID() string {
	return al.sessionID
}

// Log logs an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = al.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func outcome(err error) (bool, string) {
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

// LogOrderPlaced logs an order placement attempt.
func (al *AuditLogger) LogOrderPlaced(ctx context.Context, companyID, goodID, orderID int64, side string, qty, price int64, err error) error {
	ok, msg := outcome(err)
	return al.Log(ctx, AuditEvent{
		EventType: AuditOrderPlaced,
		CompanyID: companyID,
		GoodID:    goodID,
		OrderID:   orderID,
		Action:    side,
		Success:   ok,
		ErrorMsg:  msg,
		Details: map[string]interface{}{
			"quantity":       qty,
			"price_per_unit": price,
		},
	})
}

// LogOrderCancelled logs an order cancellation attempt.
func (al *AuditLogger) LogOrderCancelled(ctx context.Context, companyID, orderID int64, err error) error {
	ok, msg := outcome(err)
	return al.Log(ctx, AuditEvent{
		EventType: AuditOrderCancelled,
		CompanyID: companyID,
		OrderID:   orderID,
		Success:   ok,
		ErrorMsg:  msg,
	})
}

// LogLocationClaimed logs a claim attempt.
func (al *AuditLogger) LogLocationClaimed(ctx context.Context, companyID, locationID int64, err error) error {
	ok, msg := outcome(err)
	return al.Log(ctx, AuditEvent{
		EventType:  AuditLocationClaimed,
		CompanyID:  companyID,
		LocationID: locationID,
		Success:    ok,
		ErrorMsg:   msg,
	})
}

// LogExtractorBuilt logs a build-extractor attempt.
func (al *AuditLogger) LogExtractorBuilt(ctx context.Context, companyID, locationID, goodID, rate int64, err error) error {
	ok, msg := outcome(err)
	return al.Log(ctx, AuditEvent{
		EventType:  AuditExtractorBuilt,
		CompanyID:  companyID,
		LocationID: locationID,
		GoodID:     goodID,
		Success:    ok,
		ErrorMsg:   msg,
		Details:    map[string]interface{}{"rate_per_hour": rate},
	})
}

// LogSpeedChanged logs a simulation speed change attempt.
func (al *AuditLogger) LogSpeedChanged(ctx context.Context, multiplier string, err error) error {
	ok, msg := outcome(err)
	return al.Log(ctx, AuditEvent{
		EventType: AuditSpeedChanged,
		Success:   ok,
		ErrorMsg:  msg,
		Details:   map[string]interface{}{"multiplier": multiplier},
	})
}

// LogReadOnlyViolation logs an attempt to perform a write operation in read-only mode.
func (al *AuditLogger) LogReadOnlyViolation(ctx context.Context, operation string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditReadOnlyViolation,
		Action:    operation,
		Success:   false,
		ErrorMsg:  "operation blocked: read-only mode enabled",
	})
}

// LogInputValidation logs an input validation failure.
func (al *AuditLogger) LogInputValidation(ctx context.Context, field, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditInputValidation,
		Success:   false,
		ErrorMsg:  reason,
		Details:   map[string]interface{}{"field": field},
	})
}

// Close closes the underlying writer when it supports closing.
func (al *AuditLogger) Close() error {
	if c, ok := al.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
