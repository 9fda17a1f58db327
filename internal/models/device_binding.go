package models

import (
	"sort"
	"time"

	"deviceguard/internal/ratelimit"
	"deviceguard/pkg/domain"
)

// LockoutReason is reported while a protocol lockout is active.
const LockoutReason = "too many failed attempts"

// DeviceBinding — one row per device fingerprint, never hard-deleted.
// CodeHash and CodeExpiresAt are always set together or both nil.
type DeviceBinding struct {
	Fingerprint string  `json:"fingerprint"`
	Phone       string  `json:"phone"`
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`

	// Status holds the protocol status only (pending_verification or verified);
	// blocking is tracked separately and wins in EffectiveStatus.
	Status domain.BindingStatus `json:"status"`

	CodeHash             *string    `json:"-"` // bcrypt of the current code
	CodeExpiresAt        *time.Time `json:"code_expires_at,omitempty"`
	VerificationAttempts int        `json:"verification_attempts"`

	// Moderation block.
	IsBlocked   bool       `json:"is_blocked"`
	BlockReason *string    `json:"block_reason,omitempty"`
	BlockedBy   *string    `json:"blocked_by,omitempty"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`

	// Protocol lockout after MaxAttempts wrong codes.
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	PWAAccess []string `json:"pwa_access"`

	ResendCount  int        `json:"resend_count"`
	LastResendAt *time.Time `json:"last_resend_at,omitempty"`

	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LockedOut reports whether a protocol lockout is active at now.
func (b *DeviceBinding) LockedOut(now time.Time) bool {
	return b.LockedUntil != nil && now.Before(*b.LockedUntil)
}

// Blocked reports whether the device is denied at now, and why.
// A moderation block takes precedence over a lockout.
func (b *DeviceBinding) Blocked(now time.Time) (bool, string) {
	if b.IsBlocked {
		reason := "blocked by moderator"
		if b.BlockReason != nil && *b.BlockReason != "" {
			reason = *b.BlockReason
		}
		return true, reason
	}
	if b.LockedOut(now) {
		return true, LockoutReason
	}
	return false, ""
}

// EffectiveStatus folds blocking into the protocol status.
func (b *DeviceBinding) EffectiveStatus(now time.Time) domain.BindingStatus {
	if blocked, _ := b.Blocked(now); blocked {
		return domain.StatusBlocked
	}
	if b.Status == "" {
		return domain.StatusUnregistered
	}
	return b.Status
}

// IssueCode stores a fresh code hash and resets the attempt counter.
// An elapsed lockout is cleared with it.
func (b *DeviceBinding) IssueCode(hash string, expiresAt time.Time) {
	b.CodeHash = &hash
	b.CodeExpiresAt = &expiresAt
	b.VerificationAttempts = 0
	b.LockedUntil = nil
	b.Status = domain.StatusPendingVerification
}

// ClearCode invalidates the current code.
func (b *DeviceBinding) ClearCode() {
	b.CodeHash = nil
	b.CodeExpiresAt = nil
}

// CodeExpired is strict: a code at exactly CodeExpiresAt is expired.
func (b *DeviceBinding) CodeExpired(now time.Time) bool {
	return b.CodeExpiresAt == nil || !now.Before(*b.CodeExpiresAt)
}

// ResendState exposes the rolling-window counter to the rate limiter.
func (b *DeviceBinding) ResendState() ratelimit.State {
	return ratelimit.State{Count: b.ResendCount, LastAt: b.LastResendAt}
}

func (b *DeviceBinding) SetResendState(s ratelimit.State) {
	b.ResendCount = s.Count
	b.LastResendAt = s.LastAt
}

// GrantAccess merges entitlement tags into PWAAccess, deduplicated and sorted.
func (b *DeviceBinding) GrantAccess(tags []string) {
	set := make(map[string]struct{}, len(b.PWAAccess)+len(tags))
	for _, t := range b.PWAAccess {
		set[t] = struct{}{}
	}
	for _, t := range tags {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	b.PWAAccess = out
}

// Clone returns a deep copy so callers cannot alias stored state.
func (b *DeviceBinding) Clone() *DeviceBinding {
	c := *b
	c.Name = cloneString(b.Name)
	c.Email = cloneString(b.Email)
	c.CodeHash = cloneString(b.CodeHash)
	c.BlockReason = cloneString(b.BlockReason)
	c.BlockedBy = cloneString(b.BlockedBy)
	c.CodeExpiresAt = cloneTime(b.CodeExpiresAt)
	c.BlockedAt = cloneTime(b.BlockedAt)
	c.LockedUntil = cloneTime(b.LockedUntil)
	c.LastResendAt = cloneTime(b.LastResendAt)
	c.VerifiedAt = cloneTime(b.VerifiedAt)
	if b.PWAAccess != nil {
		c.PWAAccess = append([]string(nil), b.PWAAccess...)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
