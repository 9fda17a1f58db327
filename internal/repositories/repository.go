package repositories

import (
	"context"
	"errors"
	"strings"

	"deviceguard/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// BindingMutation edits a binding under the registry's row lock. exists is false
// for a fingerprint seen for the first time; b then carries only the fingerprint.
// Returning an error aborts the update and nothing is written.
type BindingMutation func(b *models.DeviceBinding, exists bool) error

// DeviceBindingRepository is the access registry.
type DeviceBindingRepository interface {
	Get(ctx context.Context, fingerprint string) (*models.DeviceBinding, error)
	// Update is the only write path: read, mutate and store happen atomically
	// with respect to every other Update on the same fingerprint.
	Update(ctx context.Context, fingerprint string, fn BindingMutation) (*models.DeviceBinding, error)
	ListBlocked(ctx context.Context) ([]*models.DeviceBinding, error)
}

// InvitationMutation edits an invitation under its row lock.
type InvitationMutation func(inv *models.Invitation) error

// InvitationRepository reads invitations owned by the invitation subsystem.
type InvitationRepository interface {
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	// FindLatestByPhone returns the newest invitation whose phone has the same
	// PhoneKey as phone. Invitation phones are stored as the invitation
	// subsystem wrote them, formatting included.
	FindLatestByPhone(ctx context.Context, phone string) (*models.Invitation, error)
	Update(ctx context.Context, token string, fn InvitationMutation) (*models.Invitation, error)
}

// PhoneKey reduces a phone number to its digits, so "+1 555 000-4444" and
// "+15550004444" match.
func PhoneKey(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
