package client

import (
	"context"
	"errors"
	"net"

	"github.com/kjstillabower/skycast/internal/circuitbreaker"
	"github.com/kjstillabower/skycast/internal/models"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the weatherApiErrorsTotal category label.
const (
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryRateLimited    ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx    ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx    ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen    ErrorCategory = "circuit_open"
	ErrorCategoryDecode         ErrorCategory = "decode"
	ErrorCategoryLengthMismatch ErrorCategory = "length_mismatch"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		switch {
		case fe.StatusCode == 429:
			return ErrorCategoryRateLimited
		case fe.StatusCode >= 500:
			return ErrorCategoryUpstream5xx
		default:
			return ErrorCategoryUpstream4xx
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, models.ErrLengthMismatch) {
		return ErrorCategoryLengthMismatch
	}
	if errors.Is(err, models.ErrDecode) {
		return ErrorCategoryDecode
	}
	if errors.Is(err, models.ErrNetwork) {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
