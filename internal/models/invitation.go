package models

import (
	"time"

	"deviceguard/internal/ratelimit"
	"deviceguard/pkg/domain"
)

type InvitationStatus string

const (
	InvitationPending       InvitationStatus = "pending"
	InvitationFormSubmitted InvitationStatus = "form_submitted"
	InvitationCompleted     InvitationStatus = "completed"
)

// Invitation is owned by the invitation subsystem; the device protocol reads it
// and only writes its resend counter.
type Invitation struct {
	Token              string           `json:"token"`
	Name               string           `json:"name"`
	Phone              string           `json:"phone"`
	Email              *string          `json:"email,omitempty"`
	Status             InvitationStatus `json:"status"`
	VerificationMethod domain.Channel   `json:"verification_method"`
	PWAAccess          []string         `json:"pwa_access"`
	ExpiresAt          time.Time        `json:"expires_at"`
	ResendCount        int              `json:"resend_count"`
	LastResendAt       *time.Time       `json:"last_resend_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Expired is strict, like code expiry.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invitation) ResendState() ratelimit.State {
	return ratelimit.State{Count: i.ResendCount, LastAt: i.LastResendAt}
}

func (i *Invitation) SetResendState(s ratelimit.State) {
	i.ResendCount = s.Count
	i.LastResendAt = s.LastAt
}

func (i *Invitation) Clone() *Invitation {
	c := *i
	c.Email = cloneString(i.Email)
	c.LastResendAt = cloneTime(i.LastResendAt)
	if i.PWAAccess != nil {
		c.PWAAccess = append([]string(nil), i.PWAAccess...)
	}
	return &c
}
