package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"deviceguard/internal/config"
	"deviceguard/internal/models"
	"deviceguard/internal/notify"
	"deviceguard/internal/ratelimit"
	"deviceguard/internal/repositories"
	"deviceguard/internal/utils"
	"deviceguard/pkg/domain"
)

// Deps are the collaborators shared by the protocol services.
type Deps struct {
	Bindings    repositories.DeviceBindingRepository
	Invitations repositories.InvitationRepository
	Dispatcher  notify.Dispatcher
	Alerter     notify.Alerter
	Logger      *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Settings are the protocol constants plus presentation bits used in messages.
type Settings struct {
	Protocol          config.ProtocolConfig
	AppName           string
	InvitationBaseURL string
	DefaultChannel    domain.Channel
}

// SettingsFromConfig picks the service settings out of the app config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Protocol:          cfg.Protocol,
		AppName:           cfg.AppName,
		InvitationBaseURL: cfg.InvitationBaseURL,
		DefaultChannel:    domain.Channel(cfg.Channels.Default),
	}
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Alerter == nil {
		d.Alerter = notify.NopAlerter{}
	}
	return d
}

func (s Settings) resendPolicy() ratelimit.Policy {
	return ratelimit.Policy{
		Cooldown:     s.Protocol.ResendCooldown,
		Window:       s.Protocol.ResendWindow,
		MaxPerWindow: s.Protocol.MaxResends,
	}
}

func (s Settings) channel() domain.Channel {
	if s.DefaultChannel.Valid() {
		return s.DefaultChannel
	}
	return domain.ChannelWhatsApp
}

// newCode returns a fresh code and its bcrypt hash.
func (s Settings) newCode() (code, hash string, err error) {
	code, err = utils.RandomDigits(s.Protocol.CodeLength)
	if err != nil {
		return "", "", fmt.Errorf("generate code: %w", err)
	}
	cost := s.Protocol.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", "", fmt.Errorf("bcrypt generate: %w", err)
	}
	return code, string(h), nil
}

// storageError keeps *domain.Error values and turns everything else into
// BACKEND_UNAVAILABLE, logging the cause.
func storageError(logger *zap.Logger, tag string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn(tag+" request aborted", zap.Error(err))
	} else {
		logger.Error(tag+" registry failure", zap.Error(err))
	}
	return domain.NewError(domain.KindBackendUnavailable, "access registry unavailable, try again")
}

func blockedError(reason string) error {
	return domain.NewError(domain.KindDeviceBlocked, "device is blocked: %s", reason)
}

func recipientOf(b *models.DeviceBinding) notify.Recipient {
	r := notify.Recipient{Phone: b.Phone}
	if b.Name != nil {
		r.Name = *b.Name
	}
	if b.Email != nil {
		r.Email = *b.Email
	}
	return r
}

func ttlMinutes(ttl time.Duration) string {
	m := int((ttl + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return strconv.Itoa(m)
}

// dispatchCode hands the code to the dispatcher after the registry write has
// committed. Failure is reported as a DELIVERY_FAILED warning, never an error.
func dispatchCode(ctx context.Context, deps Deps, set Settings, b *models.DeviceBinding, code string) domain.Delivery {
	ctx, cancel := context.WithTimeout(ctx, set.Protocol.DispatchTimeout)
	defer cancel()

	out := deps.Dispatcher.Dispatch(ctx, notify.Message{
		Recipient:  recipientOf(b),
		TemplateID: notify.TemplateVerificationCode,
		Variables: map[string]string{
			"app":         set.AppName,
			"code":        code,
			"ttl_minutes": ttlMinutes(set.Protocol.CodeTTL),
		},
		PreferredChannel: set.channel(),
	})
	return deliveryOf(deps.Logger, b.Fingerprint, out)
}

func deliveryOf(logger *zap.Logger, key string, out notify.Outcome) domain.Delivery {
	if !out.Success {
		logger.Warn("[dispatch] delivery failed", zap.String("key", key), zap.Error(out.Err))
		return domain.Delivery{
			Warning: domain.KindDeliveryFailed,
			Message: "message could not be delivered, request a resend",
		}
	}
	return domain.Delivery{Sent: true, Channel: out.ChannelUsed, Message: "sent via " + string(out.ChannelUsed)}
}
