// Package security provides read-only mode, mutation input validation and the
// mutation audit trail.
package security

import (
	"context"
	"fmt"
	"sync"

	apperrors "econsim-terminal/internal/errors"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// Read operations
	OpRead OperationType = "READ"

	// Write operations (blocked in read-only mode)
	OpPlaceOrder     OperationType = "PLACE_ORDER"
	OpCancelOrder    OperationType = "CANCEL_ORDER"
	OpClaimLocation  OperationType = "CLAIM_LOCATION"
	OpBuildExtractor OperationType = "BUILD_EXTRACTOR"
	OpSetSpeed       OperationType = "SET_SPEED"
)

// ReadOnlyError represents an error when attempting a write operation in read-only mode.
type ReadOnlyError struct {
	Operation OperationType
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s blocked: read-only mode is enabled", OperationDescription(e.Operation))
}

func (e *ReadOnlyError) Unwrap() error {
	return apperrors.ErrReadOnlyMode
}

// AccessController manages read-only mode and operation permissions.
type AccessController struct {
	readOnly    bool
	auditLogger *AuditLogger
	mu          sync.RWMutex
}

// NewAccessController creates a new access controller. auditLogger may be nil.
func NewAccessController(readOnly bool, auditLogger *AuditLogger) *AccessController {
	return &AccessController{
		readOnly:    readOnly,
		auditLogger: auditLogger,
	}
}

// IsReadOnly returns whether read-only mode is enabled.
func (ac *AccessController) IsReadOnly() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.readOnly
}

// SetReadOnly sets the read-only mode.
func (ac *AccessController) SetReadOnly(readOnly bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.readOnly = readOnly
}

// CheckPermission checks if an operation is allowed.
func (ac *AccessController) CheckPermission(ctx context.Context, op OperationType) error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.readOnly || !isWriteOperation(op) {
		return nil
	}

	if ac.auditLogger != nil {
		_ = ac.auditLogger.LogReadOnlyViolation(ctx, string(op))
	}
	return &ReadOnlyError{Operation: op}
}

// isWriteOperation returns true if the operation modifies state.
func isWriteOperation(op OperationType) bool {
	switch op {
	case OpPlaceOrder, OpCancelOrder, OpClaimLocation, OpBuildExtractor, OpSetSpeed:
		return true
	default:
		return false
	}
}

// WriteOperations returns a list of all write operations.
func WriteOperations() []OperationType {
	return []OperationType{
		OpPlaceOrder,
		OpCancelOrder,
		OpClaimLocation,
		OpBuildExtractor,
		OpSetSpeed,
	}
}

// OperationDescription returns a human-readable description of an operation.
func OperationDescription(op OperationType) string {
	switch op {
	case OpRead:
		return "Read data"
	case OpPlaceOrder:
		return "Place order"
	case OpCancelOrder:
		return "Cancel order"
	case OpClaimLocation:
		return "Claim location"
	case OpBuildExtractor:
		return "Build extractor"
	case OpSetSpeed:
		return "Change simulation speed"
	default:
		return string(op)
	}
}
