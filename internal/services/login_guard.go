package services

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/brasshelm/birdtext/internal/models"
)

// Lockout tiers, most severe first. A single window_start/attempt_count pair
// approximates all three trailing windows: the recorded count applies to
// every bucket whose span still contains window_start. A streak begun almost
// 24 hours ago is therefore judged only against the day bucket even when the
// last few failures landed minutes apart. Kept as-is from the original
// deployment; a precise per-attempt log would change lockout timing.
const (
	threshold15Min  = 5
	threshold1Hour  = 10
	threshold24Hour = 20

	lockDuration15Min  = 15 * time.Minute
	lockDuration1Hour  = 1 * time.Hour
	lockDuration24Hour = 24 * time.Hour
)

// LoginAttemptStore defines the persistence interface for the login guard.
// All counters live in the shared store: instances share no memory, so an
// in-process map cannot provide these guarantees.
type LoginAttemptStore interface {
	GetActiveLock(ctx context.Context, identifier, identifierType string) (*models.LoginAttempt, error)
	Get(ctx context.Context, identifier, identifierType string) (*models.LoginAttempt, error)
	RecordAttempt(ctx context.Context, identifier, identifierType string) error
	SetLock(ctx context.Context, identifier, identifierType string, until time.Time) error
	Delete(ctx context.Context, identifier, identifierType string) error
	DeleteStale(ctx context.Context) (int64, error)
}

// SecurityAlerter notifies an operator about severe abuse events
type SecurityAlerter interface {
	SendLockoutAlert(ctx context.Context, identifier, identifierType string, attempts int) error
}

// LockoutAuditor records lockout escalations in the audit log
type LockoutAuditor interface {
	LogLockout(identifierType, identifier, lockReason string, attempts int)
}

// LoginGuard decides admit/deny for login attempts per identifier (username
// or client IP) and maintains failure history in the shared store.
//
// Escalation: 5 failures in 15 min locks 15 min, 10 in 1 hour locks 1 hour,
// 20 in 24 hours locks 24 hours and alerts the admin.
type LoginGuard struct {
	store   LoginAttemptStore
	alerter SecurityAlerter
	audit   LockoutAuditor
	logger  *slog.Logger
}

// NewLoginGuard creates a new LoginGuard. alerter and audit may be nil.
func NewLoginGuard(store LoginAttemptStore, alerter SecurityAlerter, audit LockoutAuditor, logger *slog.Logger) *LoginGuard {
	return &LoginGuard{
		store:   store,
		alerter: alerter,
		audit:   audit,
		logger:  logger,
	}
}

// Check decides whether a login attempt is allowed for the identifier.
// The only mutation it performs is stamping a new lock when a threshold is
// crossed; plain denied-while-locked and allowed paths have no side effects.
// Store errors propagate: the caller must treat them as internal errors, not
// as a denial and not as a failed attempt.
func (g *LoginGuard) Check(ctx context.Context, identifier, identifierType string) (*models.CheckResult, error) {
	identifier = normalizeIdentifier(identifier, identifierType)

	// An identifier under an unexpired lock is denied outright
	locked, err := g.store.GetActiveLock(ctx, identifier, identifierType)
	if err != nil {
		return nil, err
	}
	if locked != nil && locked.LockedUntil != nil {
		return &models.CheckResult{
			Allowed:          false,
			Reason:           models.ReasonAccountLocked,
			UnlockTime:       locked.LockedUntil,
			MinutesRemaining: minutesUntil(*locked.LockedUntil, time.Now()),
			Attempts:         locked.AttemptCount,
		}, nil
	}

	record, err := g.store.Get(ctx, identifier, identifierType)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.CheckResult{Allowed: true}, nil
	}

	now := time.Now()

	// Bucket the streak count into each trailing window that still contains
	// the streak's start; a young window contributes to all three.
	var last15Min, lastHour, lastDay int
	if record.WindowStart.After(now.Add(-24 * time.Hour)) {
		lastDay = record.AttemptCount
	}
	if record.WindowStart.After(now.Add(-1 * time.Hour)) {
		lastHour = record.AttemptCount
	}
	if record.WindowStart.After(now.Add(-15 * time.Minute)) {
		last15Min = record.AttemptCount
	}

	var lockDuration time.Duration
	var lockReason string

	switch {
	case lastDay >= threshold24Hour:
		lockDuration = lockDuration24Hour
		lockReason = "20+ attempts in 24 hours"
	case lastHour >= threshold1Hour:
		lockDuration = lockDuration1Hour
		lockReason = "10+ attempts in 1 hour"
	case last15Min >= threshold15Min:
		lockDuration = lockDuration15Min
		lockReason = "5+ attempts in 15 minutes"
	default:
		return &models.CheckResult{Allowed: true}, nil
	}

	lockUntil := now.Add(lockDuration)
	if err := g.store.SetLock(ctx, identifier, identifierType, lockUntil); err != nil {
		return nil, err
	}

	g.logger.Warn("login locked",
		slog.String("identifier_type", identifierType),
		slog.String("identifier", identifier),
		slog.String("lock_reason", lockReason),
		slog.Time("locked_until", lockUntil),
	)
	if g.audit != nil {
		g.audit.LogLockout(identifierType, identifier, lockReason, record.AttemptCount)
	}

	if lockDuration == lockDuration24Hour {
		g.logger.Error("security alert: sustained brute force",
			slog.String("identifier_type", identifierType),
			slog.String("identifier", identifier),
			slog.Int("failed_attempts", lastDay),
		)
		if g.alerter != nil {
			if alertErr := g.alerter.SendLockoutAlert(ctx, identifier, identifierType, lastDay); alertErr != nil {
				g.logger.Error("failed to send lockout alert", slog.Any("error", alertErr))
			}
		}
	}

	return &models.CheckResult{
		Allowed:          false,
		Reason:           models.ReasonRateLimitExceeded,
		LockReason:       lockReason,
		UnlockTime:       &lockUntil,
		MinutesRemaining: minutesUntil(lockUntil, now),
	}, nil
}

// Record stores one failed login for the identifier. Called once per
// identifier per failure, so twice per failed login overall (username + IP).
func (g *LoginGuard) Record(ctx context.Context, identifier, identifierType string) error {
	identifier = normalizeIdentifier(identifier, identifierType)

	if err := g.store.RecordAttempt(ctx, identifier, identifierType); err != nil {
		return err
	}

	g.logger.Info("failed login attempt recorded",
		slog.String("identifier_type", identifierType),
		slog.String("identifier", identifier),
	)
	return nil
}

// Clear wipes the failure history for the identifier. Called on successful
// login; idempotent.
func (g *LoginGuard) Clear(ctx context.Context, identifier, identifierType string) error {
	identifier = normalizeIdentifier(identifier, identifierType)
	return g.store.Delete(ctx, identifier, identifierType)
}

// Cleanup purges rows whose window started over 24 hours ago and that carry
// no active lock. Runs out-of-band, never on the request path.
func (g *LoginGuard) Cleanup(ctx context.Context) (int64, error) {
	removed, err := g.store.DeleteStale(ctx)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		g.logger.Info("cleaned up stale login attempts", slog.Int64("rows_removed", removed))
	}
	return removed, nil
}

// Usernames are tracked case-insensitively; IPs pass through untouched
func normalizeIdentifier(identifier, identifierType string) string {
	if identifierType == models.IdentifierUsername {
		return strings.ToLower(strings.TrimSpace(identifier))
	}
	return identifier
}

func minutesUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Minutes()))
}
