package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"deviceguard/internal/models"
	"deviceguard/pkg/domain"
)

var (
	_ DeviceBindingRepository = (*MemoryDeviceBindingRepository)(nil)
	_ InvitationRepository    = (*MemoryInvitationRepository)(nil)
)

// MemoryDeviceBindingRepository keeps bindings in process memory. Used by tests
// and by storage.driver=memory.
type MemoryDeviceBindingRepository struct {
	mu   sync.Mutex
	rows map[string]*models.DeviceBinding
	now  func() time.Time
}

func NewMemoryDeviceBindingRepository() *MemoryDeviceBindingRepository {
	return &MemoryDeviceBindingRepository{rows: make(map[string]*models.DeviceBinding), now: time.Now}
}

// WithClock replaces the time source used for timestamps and ListBlocked.
func (r *MemoryDeviceBindingRepository) WithClock(now func() time.Time) *MemoryDeviceBindingRepository {
	r.now = now
	return r
}

func (r *MemoryDeviceBindingRepository) Get(_ context.Context, fingerprint string) (*models.DeviceBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (r *MemoryDeviceBindingRepository) Update(ctx context.Context, fingerprint string, fn BindingMutation) (*models.DeviceBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var work *models.DeviceBinding
	existing, exists := r.rows[fingerprint]
	if exists {
		work = existing.Clone()
	} else {
		work = &models.DeviceBinding{Fingerprint: fingerprint, Status: domain.StatusUnregistered}
	}
	if err := fn(work, exists); err != nil {
		return nil, err
	}

	now := r.now()
	if !exists {
		work.CreatedAt = now
	}
	work.UpdatedAt = now
	work.Fingerprint = fingerprint
	r.rows[fingerprint] = work
	return work.Clone(), nil
}

func (r *MemoryDeviceBindingRepository) ListBlocked(_ context.Context) ([]*models.DeviceBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []*models.DeviceBinding
	for _, b := range r.rows {
		if blocked, _ := b.Blocked(now); blocked {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// MemoryInvitationRepository keeps invitations in process memory.
type MemoryInvitationRepository struct {
	mu   sync.Mutex
	rows map[string]*models.Invitation
}

func NewMemoryInvitationRepository() *MemoryInvitationRepository {
	return &MemoryInvitationRepository{rows: make(map[string]*models.Invitation)}
}

// Put stores an invitation as the invitation subsystem would.
func (r *MemoryInvitationRepository) Put(inv *models.Invitation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[inv.Token] = inv.Clone()
}

func (r *MemoryInvitationRepository) GetByToken(_ context.Context, token string) (*models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[token]
	if !ok {
		return nil, ErrNotFound
	}
	return inv.Clone(), nil
}

func (r *MemoryInvitationRepository) FindLatestByPhone(_ context.Context, phone string) (*models.Invitation, error) {
	key := PhoneKey(phone)
	if key == "" {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Invitation
	for _, inv := range r.rows {
		if PhoneKey(inv.Phone) != key {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (r *MemoryInvitationRepository) Update(ctx context.Context, token string, fn InvitationMutation) (*models.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[token]
	if !ok {
		return nil, ErrNotFound
	}
	work := inv.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.Token = token
	r.rows[token] = work
	return work.Clone(), nil
}
