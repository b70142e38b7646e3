package rate

import "errors"

var (
	// ErrRateLimited is returned by Allow once a key is over budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
