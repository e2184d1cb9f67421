package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyAccepted  = errors.New("offer already accepted")
	ErrUpstream         = errors.New("upstream api error")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrLockHeld         = errors.New("lock already held")
	ErrRateLimited      = errors.New("rate limited")
	ErrSigningFailed    = errors.New("signing failed")
)
