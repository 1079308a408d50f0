// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

// Package ratelimit implements sliding-window rate limiting with
// progressive blocking and global IP-level response.
//
// A Limiter tracks attempts per identifier (email, user ID, API key)
// within a fixed window. Identifiers that exceed the window budget are
// blocked for a base duration that doubles on each consecutive block
// when progressive mode is enabled. IPs that keep hammering a blocked
// identifier are placed in a global block set that denies every
// identifier arriving from that IP.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/arcadia-commerce/sentinel/internal/logging"
)

// MaxProgressiveMultiplier caps exponential block growth.
const MaxProgressiveMultiplier = 16

// suspiciousAttemptFactor is multiplied by MaxAttempts to decide when an
// IP graduates from per-identifier blocking to the global IP block set.
const suspiciousAttemptFactor = 3

// Config holds configuration for a Limiter.
type Config struct {
	// Name identifies the limiter in logs and stats (e.g. "auth", "api").
	Name string `json:"name"`

	// MaxAttempts is the number of attempts allowed per window.
	MaxAttempts int `json:"max_attempts"`

	// Window is the sliding attempt window.
	Window time.Duration `json:"window"`

	// BlockDuration is the base block period applied on overflow.
	BlockDuration time.Duration `json:"block_duration"`

	// Progressive doubles the block period on each consecutive block,
	// capped at MaxProgressiveMultiplier.
	Progressive bool `json:"progressive"`

	// IPBlockDuration is how long a suspicious IP stays globally blocked.
	IPBlockDuration time.Duration `json:"ip_block_duration"`

	// CleanupInterval is how often stale attempt records are swept.
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// AttemptRecord tracks rate-limit state for one identifier.
type AttemptRecord struct {
	Count                 int       `json:"count"`
	LastAttempt           time.Time `json:"last_attempt"`
	BlockedUntil          time.Time `json:"blocked_until,omitzero"`
	ProgressiveMultiplier int       `json:"progressive_multiplier"`
}

// Blocked returns true if the record has an active block at the given time.
func (r *AttemptRecord) Blocked(now time.Time) bool {
	return now.Before(r.BlockedUntil)
}

// BlockInfo is a read-only snapshot of an identifier's block state.
type BlockInfo struct {
	Blocked       bool          `json:"blocked"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
}

// Stats summarizes limiter state for the admin dashboard.
type Stats struct {
	Name           string `json:"name"`
	ActiveAttempts int    `json:"active_attempts"`
	BlockedUsers   int    `json:"blocked_users"`
	BlockedIPs     int    `json:"blocked_ips"`
}

// Limiter is a sliding-window rate limiter with progressive blocking.
// All methods are safe for concurrent use.
type Limiter struct {
	config Config

	mu         sync.Mutex
	records    map[string]*AttemptRecord
	blockedIPs map[string]time.Time // IP -> expiry

	// onBlock fires after an identifier transitions into a block.
	onBlock func(identifier string, duration time.Duration)

	// now is injectable for tests.
	now func() time.Time
}

// New creates a Limiter with the given configuration.
func New(config Config) *Limiter {
	if config.IPBlockDuration == 0 {
		config.IPBlockDuration = time.Hour
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	return &Limiter{
		config:     config,
		records:    make(map[string]*AttemptRecord),
		blockedIPs: make(map[string]time.Time),
		now:        time.Now,
	}
}

// NewAuthLimiter returns the limiter preset for login attempts:
// 5 attempts per 15 minutes, 15 minute progressive block.
func NewAuthLimiter() *Limiter {
	return New(Config{
		Name:          "auth",
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 15 * time.Minute,
		Progressive:   true,
	})
}

// NewAPILimiter returns the limiter preset for general API traffic:
// 100 attempts per minute, 5 minute non-progressive block.
func NewAPILimiter() *Limiter {
	return New(Config{
		Name:          "api",
		MaxAttempts:   100,
		Window:        time.Minute,
		BlockDuration: 5 * time.Minute,
		Progressive:   false,
	})
}

// NewAdminLimiter returns the limiter preset for admin actions:
// 10 attempts per 10 minutes, 30 minute progressive block.
func NewAdminLimiter() *Limiter {
	return New(Config{
		Name:          "admin",
		MaxAttempts:   10,
		Window:        10 * time.Minute,
		BlockDuration: 30 * time.Minute,
		Progressive:   true,
	})
}

// SetOnBlock sets a callback fired when an identifier is blocked.
func (l *Limiter) SetOnBlock(fn func(identifier string, duration time.Duration)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onBlock = fn
}

// Allow reports whether the identifier may attempt an action. The ip is
// optional; pass an empty string when the caller has no client address.
//
// Denied attempts against an already-blocked identifier still count
// toward the suspicious-IP threshold, so an IP that keeps hammering a
// blocked identifier ends up in the global block set.
func (l *Limiter) Allow(identifier, ip string) bool {
	now := l.now()

	l.mu.Lock()

	// Globally blocked IPs are denied regardless of identifier state.
	if expiry, ok := l.blockedIPs[ip]; ok && ip != "" {
		if now.Before(expiry) {
			l.mu.Unlock()
			return false
		}
		delete(l.blockedIPs, ip)
	}

	rec, ok := l.records[identifier]
	if !ok {
		l.records[identifier] = &AttemptRecord{
			Count:                 1,
			LastAttempt:           now,
			ProgressiveMultiplier: 1,
		}
		l.mu.Unlock()
		return true
	}

	if rec.Blocked(now) {
		// Still bookkeep the attempt: sustained hammering of a blocked
		// identifier is the signal for the global IP block.
		rec.Count++
		rec.LastAttempt = now
		l.handleSuspiciousIP(ip, rec.Count, now)
		l.mu.Unlock()
		return false
	}

	// An expired block is cleared lazily on the next attempt. The
	// progressive multiplier survives so the next block in the cycle is
	// longer; only an explicit unblock resets it.
	if !rec.BlockedUntil.IsZero() {
		rec.BlockedUntil = time.Time{}
		rec.Count = 0
	}

	// Window elapsed: start a fresh count.
	if now.Sub(rec.LastAttempt) >= l.config.Window {
		rec.Count = 1
		rec.LastAttempt = now
		l.mu.Unlock()
		return true
	}

	rec.Count++
	rec.LastAttempt = now

	if rec.Count > l.config.MaxAttempts {
		duration := l.blockLocked(identifier, rec, now)
		l.handleSuspiciousIP(ip, rec.Count, now)
		onBlock := l.onBlock
		l.mu.Unlock()

		if onBlock != nil {
			onBlock(identifier, duration)
		}
		return false
	}

	l.mu.Unlock()
	return true
}

// blockLocked applies a block to the record and returns the block
// duration. Caller must hold l.mu.
func (l *Limiter) blockLocked(identifier string, rec *AttemptRecord, now time.Time) time.Duration {
	multiplier := 1
	if l.config.Progressive {
		multiplier = rec.ProgressiveMultiplier
		if multiplier < 1 {
			multiplier = 1
		}
	}

	duration := time.Duration(int64(l.config.BlockDuration) * int64(multiplier))
	rec.BlockedUntil = now.Add(duration)

	// Double for the next occurrence, capped.
	next := rec.ProgressiveMultiplier * 2
	if next > MaxProgressiveMultiplier {
		next = MaxProgressiveMultiplier
	}
	rec.ProgressiveMultiplier = next

	logging.Warn().
		Str("limiter", l.config.Name).
		Str("identifier", identifier).
		Dur("duration", duration).
		Int("attempts", rec.Count).
		Msg("Identifier blocked")

	return duration
}

// handleSuspiciousIP adds the IP to the global block set once the
// attempt count for a single identifier exceeds MaxAttempts*3.
// Caller must hold l.mu.
func (l *Limiter) handleSuspiciousIP(ip string, attemptCount int, now time.Time) {
	if ip == "" {
		return
	}
	if attemptCount <= l.config.MaxAttempts*suspiciousAttemptFactor {
		return
	}
	if _, ok := l.blockedIPs[ip]; ok {
		return
	}

	l.blockedIPs[ip] = now.Add(l.config.IPBlockDuration)

	logging.Warn().
		Str("limiter", l.config.Name).
		Str("ip", ip).
		Int("attempts", attemptCount).
		Dur("duration", l.config.IPBlockDuration).
		Msg("Suspicious IP globally blocked")
}

// GetBlockInfo returns the block status for an identifier without
// mutating any state.
func (l *Limiter) GetBlockInfo(identifier string) BlockInfo {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if !ok || !rec.Blocked(now) {
		return BlockInfo{Blocked: false}
	}

	return BlockInfo{
		Blocked:       true,
		TimeRemaining: rec.BlockedUntil.Sub(now),
	}
}

// IPBlocked reports whether the IP is currently in the global block set.
func (l *Limiter) IPBlocked(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.blockedIPs[ip]
	return ok && now.Before(expiry)
}

// UnblockUser clears the block state for an identifier. Calling it on
// an identifier that is not blocked is a no-op.
func (l *Limiter) UnblockUser(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if !ok {
		return
	}

	rec.BlockedUntil = time.Time{}
	rec.Count = 0
	rec.ProgressiveMultiplier = 1

	logging.Info().
		Str("limiter", l.config.Name).
		Str("identifier", identifier).
		Msg("Manually unblocked identifier")
}

// UnblockIP removes an IP from the global block set. No-op if absent.
func (l *Limiter) UnblockIP(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.blockedIPs[ip]; !ok {
		return
	}

	delete(l.blockedIPs, ip)

	logging.Info().
		Str("limiter", l.config.Name).
		Str("ip", ip).
		Msg("Manually unblocked IP")
}

// GetStats returns a snapshot of current limiter state.
func (l *Limiter) GetStats() Stats {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	blockedUsers := 0
	for _, rec := range l.records {
		if rec.Blocked(now) {
			blockedUsers++
		}
	}

	blockedIPs := 0
	for _, expiry := range l.blockedIPs {
		if now.Before(expiry) {
			blockedIPs++
		}
	}

	return Stats{
		Name:           l.config.Name,
		ActiveAttempts: len(l.records),
		BlockedUsers:   blockedUsers,
		BlockedIPs:     blockedIPs,
	}
}

// Name returns the limiter's configured name.
func (l *Limiter) Name() string {
	return l.config.Name
}

// cleanup removes stale attempt records and expired IP blocks. A record
// is stale when it is not blocked and its last attempt is older than
// both the window and the maximum block period.
func (l *Limiter) cleanup() int {
	now := l.now()
	staleAfter := l.config.Window
	maxBlock := time.Duration(int64(l.config.BlockDuration) * MaxProgressiveMultiplier)
	if maxBlock > staleAfter {
		staleAfter = maxBlock
	}
	threshold := now.Add(-staleAfter)

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for id, rec := range l.records {
		if !rec.Blocked(now) && rec.LastAttempt.Before(threshold) {
			delete(l.records, id)
			count++
		}
	}
	for ip, expiry := range l.blockedIPs {
		if !now.Before(expiry) {
			delete(l.blockedIPs, ip)
			count++
		}
	}

	return count
}

// StartCleanupRoutine sweeps stale records until the context is
// canceled. Without it the record map grows with distinct identifiers.
func (l *Limiter) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(l.config.CleanupInterval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if count := l.cleanup(); count > 0 {
					logging.Debug().
						Str("limiter", l.config.Name).
						Int("count", count).
						Msg("Cleaned up stale rate limit records")
				}
			}
		}
	}()
}
