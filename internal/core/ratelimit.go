package core

import "time"

// RateLimitInfo captures the upstream call budget for one endpoint key.
type RateLimitInfo struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitSnapshot is the diagnostic view of a tracked endpoint.
type RateLimitSnapshot struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
	WaitSec   int64     `json:"wait_sec"`
}
