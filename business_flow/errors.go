// Package businessflow contains business logic implementations for deposit operations
package businessflow

import (
	"errors"
	"fmt"
)

// Common business flow errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserInactive        = errors.New("user account is inactive")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrOrderNotFound       = errors.New("deposit order not found")
	ErrDuplicateReference  = errors.New("deposit reference already exists")
	ErrAmountTooLow        = errors.New("deposit amount below minimum")
	ErrAmountTooHigh       = errors.New("deposit amount above maximum")
	ErrInvalidAmount       = errors.New("deposit amount must be positive")
	ErrInvalidFeePercent   = errors.New("fee percent must be between 0 and 100")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidSignature    = errors.New("webhook signature verification failed")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrOrderFinal          = errors.New("deposit order already in a final state")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
)

// BusinessError represents a business logic error with context
type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsWalletNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound)
}

func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

func IsDuplicateReference(err error) bool {
	return errors.Is(err, ErrDuplicateReference)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrAmountTooLow) ||
		errors.Is(err, ErrAmountTooHigh) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidFeePercent) ||
		errors.Is(err, ErrUnsupportedCurrency)
}

func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
