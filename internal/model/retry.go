package model

import "time"

// RetryConfig defines retry behavior for API extraction.
// Attempt n (zero-based) waits Delay * 2^n before the next attempt.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	Delay      time.Duration `json:"retry_delay"`
}

// Backoff returns the wait after the given zero-based attempt.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	return c.Delay * time.Duration(1<<uint(attempt))
}
