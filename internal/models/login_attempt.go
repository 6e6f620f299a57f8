package models

import "time"

// Identifier types tracked by the login guard. Usernames and client IPs
// accumulate failures independently.
const (
	IdentifierUsername = "username"
	IdentifierIP       = "ip"
)

// LoginAttempt is the single failure-tracking row for one
// (identifier, identifier_type) pair. AttemptCount counts failures since
// WindowStart; the row is deleted entirely on successful login.
type LoginAttempt struct {
	Identifier     string     `db:"identifier"`
	IdentifierType string     `db:"identifier_type"`
	AttemptCount   int        `db:"attempt_count"`
	WindowStart    time.Time  `db:"window_start"`
	LastAttempt    time.Time  `db:"last_attempt"`
	LockedUntil    *time.Time `db:"locked_until"`
}

// CheckResult is the login guard's admit/deny decision for one identifier.
type CheckResult struct {
	Allowed          bool
	Reason           string // "account_locked" or "rate_limit_exceeded"
	LockReason       string // which threshold fired, e.g. "5+ attempts in 15 minutes"
	UnlockTime       *time.Time
	MinutesRemaining int
	Attempts         int
}

// Check denial reasons
const (
	ReasonAccountLocked     = "account_locked"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
)
