package repository

import "errors"

// Sentinel errors returned by the repositories. API handlers match on
// these with errors.Is to choose response codes.
var (
	ErrAddressNotFound = errors.New("address not found")
	ErrRuleNotFound    = errors.New("rule not found")
	ErrInvalidRule     = errors.New("invalid rule")
)
