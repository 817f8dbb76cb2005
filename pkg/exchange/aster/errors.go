package aster

import (
	"errors"
	"fmt"
)

// Venue error codes we branch on. The full list follows the Binance
// futures numbering that Aster reuses.
const (
	codeInvalidTimestamp    = -1021
	codeInvalidSignature    = -1022
	codeInvalidSymbol       = -1121
	codeMarginInsufficient  = -2019
	codeReduceOnlyRejected  = -2022
	codeMinNotionalRejected = -4164
)

// APIError is a non-2xx response from the venue, carrying both the HTTP
// status and the venue's own error code.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aster: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether replaying the request may help. Only server
// faults and rate limiting qualify; 4xx responses reflect the request
// itself and will fail the same way again.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429 || e.Code == codeInvalidTimestamp
}

// IsAuthError reports whether err is a signature or permission failure.
// These abort the cycle: every subsequent request would fail identically.
func IsAuthError(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == 401 || ae.Status == 403 || ae.Code == codeInvalidSignature
}

// IsMarginInsufficient reports whether the venue rejected the order for
// lack of margin.
func IsMarginInsufficient(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == codeMarginInsufficient
}

// IsInvalidSymbol reports whether the symbol is unknown to the venue,
// which also means any cached precision for it is stale.
func IsInvalidSymbol(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == codeInvalidSymbol
}
