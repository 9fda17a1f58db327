package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"deviceguard/internal/models"
	"deviceguard/internal/notify"
	"deviceguard/internal/ratelimit"
	"deviceguard/internal/repositories"
	"deviceguard/pkg/domain"
)

type RegistrationService interface {
	// Register binds phone to the device and sends a fresh code. Calling it
	// again before verification reissues the code and invalidates the old one.
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error)
	// Resend sends a new device code, or re-sends an invitation link when
	// req.InvitationToken is set.
	Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error)
}

type registrationService struct {
	deps   Deps
	set    Settings
	policy ratelimit.Policy
	logger *zap.Logger
}

func NewRegistrationService(deps Deps, set Settings) RegistrationService {
	deps = deps.withDefaults()
	return &registrationService{
		deps:   deps,
		set:    set,
		policy: set.resendPolicy(),
		logger: deps.Logger.Named("registration"),
	}
}

func (s *registrationService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	fp := strings.TrimSpace(req.Fingerprint)
	if fp == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint is required")
	}
	phone, err := domain.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, domain.NewError(domain.KindInvalidInput, "email is not valid")
	}
	name := strings.TrimSpace(req.Name)

	// Hash before taking the row lock.
	code, hash, err := s.set.newCode()
	if err != nil {
		return nil, storageError(s.logger, "[device][register]", err)
	}

	now := s.deps.Now()
	expiresAt := now.Add(s.set.Protocol.CodeTTL)
	stored, err := s.deps.Bindings.Update(ctx, fp, func(b *models.DeviceBinding, exists bool) error {
		if exists {
			if blocked, reason := b.Blocked(now); blocked {
				return blockedError(reason)
			}
		}
		b.Phone = phone
		b.Name = models.StringPtr(name)
		b.Email = models.StringPtr(email)
		b.IssueCode(hash, expiresAt)
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindDeviceBlocked {
			s.logger.Info("[device][register] refused, device blocked", zap.String("fp", fp))
		}
		return nil, storageError(s.logger, "[device][register]", err)
	}
	s.logger.Info("[device][register] code issued",
		zap.String("fp", fp),
		zap.String("phone", domain.MaskPhone(phone)),
		zap.Time("expires_at", expiresAt))

	delivery := dispatchCode(context.WithoutCancel(ctx), s.deps, s.set, stored, code)
	return &domain.RegisterResult{
		Success:   true,
		Status:    string(domain.StatusPendingVerification),
		ExpiresIn: seconds(s.set.Protocol.CodeTTL),
		Delivery:  delivery,
	}, nil
}

func (s *registrationService) Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error) {
	fp := strings.TrimSpace(req.Fingerprint)
	token := strings.TrimSpace(req.InvitationToken)
	switch {
	case fp != "" && token != "":
		return nil, domain.NewError(domain.KindInvalidInput, "send either fingerprint or invitation_token, not both")
	case token != "":
		return s.resendInvitation(ctx, token)
	case fp != "":
		return s.resendDevice(ctx, fp)
	default:
		return nil, domain.NewError(domain.KindInvalidInput, "fingerprint or invitation_token is required")
	}
}

func (s *registrationService) resendDevice(ctx context.Context, fp string) (*domain.ResendResult, error) {
	code, hash, err := s.set.newCode()
	if err != nil {
		return nil, storageError(s.logger, "[device][resend]", err)
	}

	now := s.deps.Now()
	expiresAt := now.Add(s.set.Protocol.CodeTTL)
	var next time.Duration
	stored, err := s.deps.Bindings.Update(ctx, fp, func(b *models.DeviceBinding, exists bool) error {
		if !exists {
			return domain.NewError(domain.KindNotRegistered, "device is not registered")
		}
		if blocked, reason := b.Blocked(now); blocked {
			return blockedError(reason)
		}
		if b.Status != domain.StatusPendingVerification {
			return domain.NewError(domain.KindInvalidInput, "device has no pending verification")
		}
		d := s.policy.Check(b.ResendState(), now)
		if !d.Allowed {
			return rateLimited(d)
		}
		state := s.policy.Record(b.ResendState(), now)
		b.SetResendState(state)
		b.IssueCode(hash, expiresAt)
		next = s.policy.NextAllowed(state, now)
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindRateLimited {
			s.logger.Info("[device][resend] throttled", zap.String("fp", fp), zap.Error(err))
		}
		return nil, storageError(s.logger, "[device][resend]", err)
	}
	s.logger.Info("[device][resend] code reissued",
		zap.String("fp", fp),
		zap.String("phone", domain.MaskPhone(stored.Phone)),
		zap.Int("resend_count", stored.ResendCount))

	delivery := dispatchCode(context.WithoutCancel(ctx), s.deps, s.set, stored, code)
	return &domain.ResendResult{
		Success:    true,
		Channel:    delivery.Channel,
		RetryAfter: seconds(next),
		ExpiresIn:  seconds(s.set.Protocol.CodeTTL),
		Delivery:   delivery,
	}, nil
}

func (s *registrationService) resendInvitation(ctx context.Context, token string) (*domain.ResendResult, error) {
	if s.deps.Invitations == nil {
		return nil, domain.NewError(domain.KindInviteInvalid, "invitation not found")
	}
	now := s.deps.Now()
	var next time.Duration
	inv, err := s.deps.Invitations.Update(ctx, token, func(inv *models.Invitation) error {
		if inv.Status == models.InvitationCompleted {
			return domain.NewError(domain.KindInviteUsed, "invitation has already been used")
		}
		if inv.Expired(now) {
			return domain.NewError(domain.KindInviteExpired, "invitation has expired")
		}
		d := s.policy.Check(inv.ResendState(), now)
		if !d.Allowed {
			return rateLimited(d)
		}
		state := s.policy.Record(inv.ResendState(), now)
		inv.SetResendState(state)
		next = s.policy.NextAllowed(state, now)
		return nil
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, domain.NewError(domain.KindInviteInvalid, "invitation not found")
	}
	if err != nil {
		return nil, storageError(s.logger, "[invite][resend]", err)
	}

	r := notify.Recipient{Name: inv.Name, Phone: inv.Phone}
	if inv.Email != nil {
		r.Email = *inv.Email
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.set.Protocol.DispatchTimeout)
	defer cancel()
	out := s.deps.Dispatcher.Dispatch(dctx, notify.Message{
		Recipient:  r,
		TemplateID: notify.TemplateInvitationResend,
		Variables: map[string]string{
			"app":  s.set.AppName,
			"name": inv.Name,
			"link": s.set.InvitationBaseURL + inv.Token,
		},
		PreferredChannel: inv.VerificationMethod,
	})
	delivery := deliveryOf(s.logger, "invite", out)
	s.logger.Info("[invite][resend] link sent",
		zap.String("phone", domain.MaskPhone(inv.Phone)),
		zap.String("channel", string(delivery.Channel)),
		zap.Int("resend_count", inv.ResendCount))

	return &domain.ResendResult{
		Success:    true,
		Channel:    delivery.Channel,
		RetryAfter: seconds(next),
		Delivery:   delivery,
	}, nil
}

func rateLimited(d ratelimit.Decision) error {
	msg := "please wait before requesting another code"
	if d.Reason == ratelimit.ReasonWindow {
		msg = "too many codes requested, try again later"
	}
	return domain.RateLimited(d.RetryAfterSeconds(), msg)
}

// seconds rounds up; zero stays zero.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
