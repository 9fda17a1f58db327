package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"deviceguard/internal/models"
	"deviceguard/internal/notify"
	"deviceguard/internal/repositories"
	"deviceguard/pkg/domain"
)

type VerificationService interface {
	// Verify checks code against the device's current code. Wrong guesses are
	// counted atomically; reaching the attempt limit locks the device out.
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
}

type verificationService struct {
	deps   Deps
	set    Settings
	logger *zap.Logger
}

func NewVerificationService(deps Deps, set Settings) VerificationService {
	deps = deps.withDefaults()
	return &verificationService{deps: deps, set: set, logger: deps.Logger.Named("verification")}
}

// precheck runs the ordered preconditions that do not depend on the code.
func (s *verificationService) precheck(b *models.DeviceBinding, now time.Time) error {
	if blocked, reason := b.Blocked(now); blocked {
		return blockedError(reason)
	}
	if b.Status != domain.StatusPendingVerification || b.CodeHash == nil {
		return domain.NewError(domain.KindCodeInvalid, "no code is pending for this device")
	}
	if b.CodeExpired(now) {
		return domain.NewError(domain.KindCodeExpired, "code has expired, request a new one")
	}
	if b.VerificationAttempts >= s.set.Protocol.MaxAttempts {
		return domain.NewError(domain.KindCodeInvalid, "too many attempts, request a new code")
	}
	return nil
}

func (s *verificationService) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	fp := strings.TrimSpace(req.Fingerprint)
	code := strings.TrimSpace(req.Code)
	if fp == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint is required")
	}
	if !domain.ValidCode(code, s.set.Protocol.CodeLength) {
		return nil, domain.NewError(domain.KindInvalidInput, "code must be %d digits", s.set.Protocol.CodeLength)
	}

	now := s.deps.Now()
	snap, err := s.deps.Bindings.Get(ctx, fp)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NewError(domain.KindNotRegistered, "device is not registered")
	}
	if err != nil {
		return nil, storageError(s.logger, "[device][verify]", err)
	}
	if err := s.precheck(snap, now); err != nil {
		return nil, err
	}
	// Compare outside the lock, then commit only if the code was not reissued meanwhile.
	snapHash := *snap.CodeHash
	match := bcrypt.CompareHashAndPassword([]byte(snapHash), []byte(code)) == nil

	var (
		verdict   error
		lockedOut bool
	)
	stored, err := s.deps.Bindings.Update(ctx, fp, func(b *models.DeviceBinding, exists bool) error {
		if !exists {
			return domain.NewError(domain.KindNotRegistered, "device is not registered")
		}
		if err := s.precheck(b, now); err != nil {
			return err
		}
		if *b.CodeHash != snapHash {
			return domain.NewError(domain.KindCodeInvalid, "code was replaced by a newer one")
		}

		if !match {
			b.VerificationAttempts++
			left := s.set.Protocol.MaxAttempts - b.VerificationAttempts
			if left <= 0 {
				until := now.Add(s.set.Protocol.LockoutDuration)
				b.LockedUntil = &until
				lockedOut = true
				left = 0
				verdict = &domain.Error{
					Kind:         domain.KindCodeInvalid,
					Message:      "invalid code, device locked after too many failed attempts",
					AttemptsLeft: &left,
				}
				return nil
			}
			verdict = &domain.Error{Kind: domain.KindCodeInvalid, Message: "invalid code", AttemptsLeft: &left}
			return nil
		}

		tags, err := s.entitlements(ctx, b.Phone, now)
		if err != nil {
			return err
		}
		b.ClearCode()
		b.Status = domain.StatusVerified
		b.VerificationAttempts = 0
		b.LockedUntil = nil
		b.VerifiedAt = &now
		b.GrantAccess(tags)
		return nil
	})
	if err != nil {
		return nil, storageError(s.logger, "[device][verify]", err)
	}

	if verdict != nil {
		s.logger.Info("[device][verify] wrong code",
			zap.String("fp", fp),
			zap.Int("attempts", stored.VerificationAttempts))
		if lockedOut {
			s.alertLockout(stored)
		}
		return nil, verdict
	}

	s.logger.Info("[device][verify] verified",
		zap.String("fp", fp),
		zap.Strings("pwa_access", stored.PWAAccess))
	access := stored.PWAAccess
	if access == nil {
		access = []string{}
	}
	return &domain.VerifyResult{Success: true, PWAAccess: access}, nil
}

// entitlements come from the newest unexpired invitation for the phone.
func (s *verificationService) entitlements(ctx context.Context, phone string, now time.Time) ([]string, error) {
	if s.deps.Invitations == nil {
		return nil, nil
	}
	inv, err := s.deps.Invitations.FindLatestByPhone(ctx, phone)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inv.Expired(now) {
		return nil, nil
	}
	return inv.PWAAccess, nil
}

func (s *verificationService) alertLockout(b *models.DeviceBinding) {
	s.logger.Warn("[device][verify] locked out",
		zap.String("fp", b.Fingerprint),
		zap.String("phone", domain.MaskPhone(b.Phone)),
		zap.Timep("locked_until", b.LockedUntil))
	text := notify.LockoutAlert(b.Fingerprint, domain.MaskPhone(b.Phone), b.VerificationAttempts)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.set.Protocol.DispatchTimeout)
		defer cancel()
		if err := s.deps.Alerter.Alert(ctx, text); err != nil {
			s.logger.Warn("[device][verify] lockout alert failed", zap.Error(err))
		}
	}()
}
