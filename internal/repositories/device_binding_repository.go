package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"deviceguard/internal/models"
	"deviceguard/pkg/domain"
)

var _ DeviceBindingRepository = (*deviceBindingRepository)(nil)

type deviceBindingRepository struct {
	db *sql.DB
}

func NewDeviceBindingRepository(db *sql.DB) DeviceBindingRepository {
	return &deviceBindingRepository{db: db}
}

const bindingColumns = `
	fingerprint, phone, name, email, status,
	code_hash, code_expires_at, verification_attempts,
	is_blocked, block_reason, blocked_by, blocked_at, locked_until,
	pwa_access, resend_count, last_resend_at,
	verified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*models.DeviceBinding, error) {
	var b models.DeviceBinding
	var status string
	var name, email, codeHash, reason, blockedBy sql.NullString
	var expires, blockedAt, lockedUntil, lastSent, verifiedAt sql.NullTime
	var access pq.StringArray
	if err := row.Scan(
		&b.Fingerprint, &b.Phone, &name, &email, &status,
		&codeHash, &expires, &b.VerificationAttempts,
		&b.IsBlocked, &reason, &blockedBy, &blockedAt, &lockedUntil,
		&access, &b.ResendCount, &lastSent,
		&verifiedAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = domain.BindingStatus(status)
	b.Name = nullString(name)
	b.Email = nullString(email)
	b.CodeHash = nullString(codeHash)
	b.BlockReason = nullString(reason)
	b.BlockedBy = nullString(blockedBy)
	b.CodeExpiresAt = nullTime(expires)
	b.BlockedAt = nullTime(blockedAt)
	b.LockedUntil = nullTime(lockedUntil)
	b.LastResendAt = nullTime(lastSent)
	b.VerifiedAt = nullTime(verifiedAt)
	b.PWAAccess = []string(access)
	return &b, nil
}

func (r *deviceBindingRepository) Get(ctx context.Context, fingerprint string) (*models.DeviceBinding, error) {
	q := `SELECT ` + bindingColumns + ` FROM device_bindings WHERE fingerprint = $1 AND status <> 'unregistered'`
	b, err := scanBinding(r.db.QueryRowContext(ctx, q, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device binding: %w", err)
	}
	return b, nil
}

// Update locks the row with SELECT ... FOR UPDATE. A placeholder row is inserted
// first so that two first-time requests for one fingerprint serialize on the same
// lock; it disappears with the rollback if fn aborts.
func (r *deviceBindingRepository) Update(ctx context.Context, fingerprint string, fn BindingMutation) (*models.DeviceBinding, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin device binding tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO device_bindings (fingerprint, phone, status, created_at, updated_at)
		VALUES ($1, '', 'unregistered', NOW(), NOW())
		ON CONFLICT (fingerprint) DO NOTHING
	`, fingerprint); err != nil {
		return nil, fmt.Errorf("reserve device binding: %w", err)
	}

	b, err := scanBinding(tx.QueryRowContext(ctx,
		`SELECT `+bindingColumns+` FROM device_bindings WHERE fingerprint = $1 FOR UPDATE`, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("lock device binding: %w", err)
	}
	exists := b.Status != domain.StatusUnregistered

	if err := fn(b, exists); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE device_bindings SET
			phone = $2, name = $3, email = $4, status = $5,
			code_hash = $6, code_expires_at = $7, verification_attempts = $8,
			is_blocked = $9, block_reason = $10, blocked_by = $11, blocked_at = $12, locked_until = $13,
			pwa_access = $14, resend_count = $15, last_resend_at = $16,
			verified_at = $17, updated_at = NOW()
		WHERE fingerprint = $1
		RETURNING `+bindingColumns,
		fingerprint, b.Phone, b.Name, b.Email, string(b.Status),
		b.CodeHash, b.CodeExpiresAt, b.VerificationAttempts,
		b.IsBlocked, b.BlockReason, b.BlockedBy, b.BlockedAt, b.LockedUntil,
		pq.Array(b.PWAAccess), b.ResendCount, b.LastResendAt,
		b.VerifiedAt,
	)
	stored, err := scanBinding(row)
	if err != nil {
		return nil, fmt.Errorf("update device binding: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit device binding: %w", err)
	}
	return stored, nil
}

func (r *deviceBindingRepository) ListBlocked(ctx context.Context) ([]*models.DeviceBinding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bindingColumns+`
		FROM device_bindings
		WHERE is_blocked = TRUE OR locked_until > $1
		ORDER BY updated_at DESC
	`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list blocked devices: %w", err)
	}
	defer rows.Close()

	var out []*models.DeviceBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked device: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blocked devices: %w", err)
	}
	return out, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
