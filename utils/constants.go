package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Deposit constants
const (
	// USDCurrency is the only fiat currency deposits are accepted in
	USDCurrency = "USD"

	// DepositReferencePrefix prefixes every client-visible order reference
	DepositReferencePrefix = "DEP"

	// MinDepositAmountCents is the smallest accepted deposit (USD 1.00)
	MinDepositAmountCents int64 = 100

	// MaxDepositAmountCents caps a single deposit (USD 50,000.00)
	MaxDepositAmountCents int64 = 5_000_000

	// DefaultDepositTTL is how long an order may stay pending before the
	// sweeper expires it
	DefaultDepositTTL = 60 * time.Minute
)

// ContextKey is the type for context keys used across the application
type ContextKey string

// EndpointKey carries the matched endpoint path through request contexts
const EndpointKey ContextKey = "endpoint"
