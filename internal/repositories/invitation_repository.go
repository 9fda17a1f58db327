package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"deviceguard/internal/models"
	"deviceguard/pkg/domain"
)

var _ InvitationRepository = (*invitationRepository)(nil)

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

const invitationColumns = `
	token, name, phone, email, status, verification_method,
	pwa_access, expires_at, resend_count, last_resend_at, created_at`

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	var inv models.Invitation
	var status, method string
	var email sql.NullString
	var lastSent sql.NullTime
	var access pq.StringArray
	if err := row.Scan(
		&inv.Token, &inv.Name, &inv.Phone, &email, &status, &method,
		&access, &inv.ExpiresAt, &inv.ResendCount, &lastSent, &inv.CreatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = models.InvitationStatus(status)
	inv.VerificationMethod = domain.Channel(method)
	inv.Email = nullString(email)
	inv.LastResendAt = nullTime(lastSent)
	inv.PWAAccess = []string(access)
	return &inv, nil
}

func (r *invitationRepository) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (r *invitationRepository) FindLatestByPhone(ctx context.Context, phone string) (*models.Invitation, error) {
	key := PhoneKey(phone)
	if key == "" {
		return nil, ErrNotFound
	}
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE regexp_replace(phone, '[^0-9]', '', 'g') = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find invitation by phone: %w", err)
	}
	return inv, nil
}

// Update only persists the resend counter; every other column belongs to the
// invitation subsystem.
func (r *invitationRepository) Update(ctx context.Context, token string, fn InvitationMutation) (*models.Invitation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin invitation tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := scanInvitation(tx.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1 FOR UPDATE`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock invitation: %w", err)
	}
	if err := fn(inv); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE invitations SET resend_count = $2, last_resend_at = $3 WHERE token = $1`,
		token, inv.ResendCount, inv.LastResendAt,
	); err != nil {
		return nil, fmt.Errorf("update invitation resend state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invitation: %w", err)
	}
	return inv, nil
}
