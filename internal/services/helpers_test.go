package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"deviceguard/internal/config"
	"deviceguard/internal/models"
	"deviceguard/internal/notify"
	"deviceguard/internal/repositories"
	"deviceguard/pkg/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// captureDispatcher records messages; it is where tests read issued codes from.
type captureDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail bool
	// via overrides the channel reported as used.
	via domain.Channel
}

func (d *captureDispatcher) Dispatch(_ context.Context, msg notify.Message) notify.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	if d.fail {
		return notify.Outcome{Err: notify.ErrNoChannel}
	}
	used := msg.PreferredChannel
	if d.via != "" {
		used = d.via
	}
	return notify.Outcome{Success: true, ChannelUsed: used}
}

func (d *captureDispatcher) last(t *testing.T) notify.Message {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.msgs, "nothing dispatched")
	return d.msgs[len(d.msgs)-1]
}

func (d *captureDispatcher) lastCode(t *testing.T) string {
	t.Helper()
	return d.last(t).Variables["code"]
}

type alertRecorder struct{ ch chan string }

func (a *alertRecorder) Alert(_ context.Context, text string) error {
	a.ch <- text
	return nil
}

type harness struct {
	clock       *testClock
	bindings    *repositories.MemoryDeviceBindingRepository
	invitations *repositories.MemoryInvitationRepository
	dispatcher  *captureDispatcher
	alerts      *alertRecorder
	set         Settings

	reg    RegistrationService
	verify VerificationService
	access AccessService
}

func newHarness(t *testing.T, tweak ...func(*config.ProtocolConfig)) *harness {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	proto := config.DefaultProtocol()
	proto.BcryptCost = bcrypt.MinCost
	for _, f := range tweak {
		f(&proto)
	}
	h := &harness{
		clock:       clk,
		bindings:    repositories.NewMemoryDeviceBindingRepository().WithClock(clk.Now),
		invitations: repositories.NewMemoryInvitationRepository(),
		dispatcher:  &captureDispatcher{},
		alerts:      &alertRecorder{ch: make(chan string, 16)},
		set: Settings{
			Protocol:          proto,
			AppName:           "Gate",
			InvitationBaseURL: "https://gate.test/invite/",
			DefaultChannel:    domain.ChannelWhatsApp,
		},
	}
	deps := Deps{
		Bindings:    h.bindings,
		Invitations: h.invitations,
		Dispatcher:  h.dispatcher,
		Alerter:     h.alerts,
		Now:         clk.Now,
	}
	h.reg = NewRegistrationService(deps, h.set)
	h.verify = NewVerificationService(deps, h.set)
	h.access = NewAccessService(deps, h.set)
	return h
}

// register returns the code that was dispatched.
func (h *harness) register(t *testing.T, fp, phone string) string {
	t.Helper()
	res, err := h.reg.Register(context.Background(), domain.RegisterRequest{Fingerprint: fp, Phone: phone})
	require.NoError(t, err)
	require.True(t, res.Success)
	return h.dispatcher.lastCode(t)
}

func (h *harness) binding(t *testing.T, fp string) *models.DeviceBinding {
	t.Helper()
	b, err := h.bindings.Get(context.Background(), fp)
	require.NoError(t, err)
	return b
}

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) *domain.Error {
	t.Helper()
	require.Error(t, err)
	e := domain.AsError(err)
	require.Equal(t, kind, e.Kind, e.Error())
	return e
}
