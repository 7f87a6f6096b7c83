package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order settlement and transitions.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorContractNotFound indicates no contract exists for the user and lounge.
	OrderErrorContractNotFound OrderErrorCode = "order_contract_not_found"
	// OrderErrorContractUnusable indicates the contract is inactive or expired.
	OrderErrorContractUnusable OrderErrorCode = "order_contract_unusable"
	// OrderErrorInsufficientBalance indicates the order total exceeds the remaining contract balance.
	OrderErrorInsufficientBalance OrderErrorCode = "order_insufficient_balance"
	// OrderErrorStatusConflict indicates the stored status no longer matches the expected one.
	OrderErrorStatusConflict OrderErrorCode = "order_status_conflict"
)

// OrderError wraps order-specific persistence failures with machine readable codes.
type OrderError struct {
	Op      string
	Code    OrderErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
