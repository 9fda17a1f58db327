package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"deviceguard/internal/models"
	"deviceguard/internal/notify"
	"deviceguard/internal/repositories"
	"deviceguard/pkg/domain"
)

type AccessService interface {
	// Check reports the access decision for a device. An unknown device is not
	// an error: it comes back as unregistered.
	Check(ctx context.Context, fingerprint string) (*domain.AccessStatus, error)
	Block(ctx context.Context, fingerprint, reason, moderator string) (*models.DeviceBinding, error)
	// Unblock lifts a moderation block and any active lockout.
	Unblock(ctx context.Context, fingerprint, moderator string) (*models.DeviceBinding, error)
	ListBlocked(ctx context.Context) ([]*models.DeviceBinding, error)
}

type accessService struct {
	deps   Deps
	set    Settings
	logger *zap.Logger
}

func NewAccessService(deps Deps, set Settings) AccessService {
	deps = deps.withDefaults()
	return &accessService{deps: deps, set: set, logger: deps.Logger.Named("access")}
}

func (s *accessService) Check(ctx context.Context, fingerprint string) (*domain.AccessStatus, error) {
	fp := strings.TrimSpace(fingerprint)
	if fp == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint is required")
	}
	b, err := s.deps.Bindings.Get(ctx, fp)
	if errors.Is(err, repositories.ErrNotFound) {
		return &domain.AccessStatus{Fingerprint: fp, Status: domain.StatusUnregistered}, nil
	}
	if err != nil {
		return nil, storageError(s.logger, "[device][access]", err)
	}
	return AccessStatusOf(b, s.deps.Now()), nil
}

// AccessStatusOf derives the check_access answer. A block wins over every
// other field of the binding.
func AccessStatusOf(b *models.DeviceBinding, now time.Time) *domain.AccessStatus {
	st := &domain.AccessStatus{
		Fingerprint: b.Fingerprint,
		Status:      b.EffectiveStatus(now),
		Phone:       domain.MaskPhone(b.Phone),
	}
	if blocked, reason := b.Blocked(now); blocked {
		st.IsBlocked = true
		st.BlockReason = reason
		return st
	}
	switch b.Status {
	case domain.StatusVerified:
		st.HasAccess = true
		st.PWAAccess = append([]string{}, b.PWAAccess...)
	case domain.StatusPendingVerification:
		st.NeedsVerification = true
	}
	return st
}

func (s *accessService) Block(ctx context.Context, fingerprint, reason, moderator string) (*models.DeviceBinding, error) {
	fp := strings.TrimSpace(fingerprint)
	reason = strings.TrimSpace(reason)
	if fp == "" || reason == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint and reason are required")
	}
	now := s.deps.Now()
	b, err := s.deps.Bindings.Update(ctx, fp, func(b *models.DeviceBinding, exists bool) error {
		if !exists {
			return domain.NewError(domain.KindNotRegistered, "device is not registered")
		}
		b.IsBlocked = true
		b.BlockReason = &reason
		b.BlockedBy = models.StringPtr(moderator)
		b.BlockedAt = &now
		return nil
	})
	if err != nil {
		return nil, storageError(s.logger, "[moderation][block]", err)
	}
	s.logger.Info("[moderation][block] device blocked",
		zap.String("fp", fp), zap.String("by", moderator), zap.String("reason", reason))
	s.alert(notify.BlockAlert(fp, moderator, reason, true))
	return b, nil
}

func (s *accessService) Unblock(ctx context.Context, fingerprint, moderator string) (*models.DeviceBinding, error) {
	fp := strings.TrimSpace(fingerprint)
	if fp == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint is required")
	}
	b, err := s.deps.Bindings.Update(ctx, fp, func(b *models.DeviceBinding, exists bool) error {
		if !exists {
			return domain.NewError(domain.KindNotRegistered, "device is not registered")
		}
		b.IsBlocked = false
		b.BlockReason = nil
		b.BlockedBy = nil
		b.BlockedAt = nil
		b.LockedUntil = nil
		return nil
	})
	if err != nil {
		return nil, storageError(s.logger, "[moderation][unblock]", err)
	}
	s.logger.Info("[moderation][unblock] device unblocked", zap.String("fp", fp), zap.String("by", moderator))
	s.alert(notify.BlockAlert(fp, moderator, "lifted", false))
	return b, nil
}

func (s *accessService) ListBlocked(ctx context.Context) ([]*models.DeviceBinding, error) {
	list, err := s.deps.Bindings.ListBlocked(ctx)
	if err != nil {
		return nil, storageError(s.logger, "[moderation][list]", err)
	}
	return list, nil
}

func (s *accessService) alert(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.set.Protocol.DispatchTimeout)
		defer cancel()
		if err := s.deps.Alerter.Alert(ctx, text); err != nil {
			s.logger.Warn("[moderation] alert failed", zap.Error(err))
		}
	}()
}
