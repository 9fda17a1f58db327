package accessflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deviceguard/pkg/domain"
)

type fakeAPI struct {
	mu       sync.Mutex
	status   *domain.AccessStatus
	checkErr error
	regErr   error
	verErr   error
	resErr   error
	calls    []string
	// gate, when set, holds Verify until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) CheckAccess(_ context.Context, fp string) (*domain.AccessStatus, error) {
	f.record("check")
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.status, nil
}

func (f *fakeAPI) Register(_ context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error) {
	f.record("register:" + req.Phone)
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &domain.RegisterResult{Success: true, ExpiresIn: 120, Delivery: domain.Delivery{Sent: true, Channel: domain.ChannelSMS}}, nil
}

func (f *fakeAPI) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	f.record("verify:" + req.Code)
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.verErr != nil {
		return nil, f.verErr
	}
	return &domain.VerifyResult{Success: true, PWAAccess: []string{"academy"}}, nil
}

func (f *fakeAPI) Resend(_ context.Context, req domain.ResendRequest) (*domain.ResendResult, error) {
	f.record("resend:" + req.Fingerprint)
	if f.resErr != nil {
		return nil, f.resErr
	}
	return &domain.ResendResult{Success: true, RetryAfter: 60}, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSessionHappyPath(t *testing.T) {
	api := &fakeAPI{status: &domain.AccessStatus{Status: domain.StatusUnregistered}}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()

	m, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, StateNeedsRegistration, m.State)

	m, err = s.Register(ctx, Form{Name: " Ana ", Phone: " +15550001111 "})
	require.NoError(t, err)
	require.Equal(t, StateNeedsVerification, m.State)
	require.Equal(t, "Ana", m.Form.Name)

	m, err = s.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, 60, m.RetryAfter)

	m, err = s.Verify(ctx, "123456")
	require.NoError(t, err)
	require.Equal(t, StateVerified, m.State)
	require.Equal(t, []string{"academy"}, m.PWAAccess)

	require.Equal(t, []string{"check", "register:+15550001111", "resend:fp-1", "verify:123456"}, api.calls)
}

func TestSessionValidatesLocally(t *testing.T) {
	api := &fakeAPI{status: &domain.AccessStatus{NeedsVerification: true}}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	m, err := s.Verify(ctx, "12a")
	require.NoError(t, err)
	require.Equal(t, domain.KindInvalidInput, m.Err.Kind)
	require.Equal(t, StateNeedsVerification, m.State)

	m, err = s.Back()
	require.NoError(t, err)
	require.Equal(t, StateNeedsRegistration, m.State)

	m, err = s.Register(ctx, Form{Phone: "12"})
	require.NoError(t, err)
	require.Equal(t, StateNeedsRegistration, m.State)
	require.Equal(t, domain.KindInvalidInput, m.Err.Kind)
	require.Equal(t, 1, api.callCount(), "only the access check reached the server")
}

func TestSessionRejectsIllegalActions(t *testing.T) {
	api := &fakeAPI{status: &domain.AccessStatus{HasAccess: true}}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()

	_, err := s.Verify(ctx, "123456")
	require.ErrorIs(t, err, ErrNotAllowed)

	_, err = s.Load(ctx)
	require.NoError(t, err)
	_, err = s.Register(ctx, Form{Phone: "+15550001111"})
	require.ErrorIs(t, err, ErrNotAllowed)
	_, err = s.Refresh(ctx)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestSessionSingleRequestInFlight(t *testing.T) {
	api := &fakeAPI{
		status:  &domain.AccessStatus{NeedsVerification: true},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)

	done := make(chan Model, 1)
	go func() {
		m, _ := s.Verify(ctx, "123456")
		done <- m
	}()
	<-api.entered

	_, err = s.Resend(ctx)
	require.ErrorIs(t, err, domain.ErrInProgress)
	_, err = s.Verify(ctx, "123456")
	require.ErrorIs(t, err, domain.ErrInProgress)
	_, err = s.Back()
	require.ErrorIs(t, err, domain.ErrInProgress)
	require.Equal(t, OpVerify, s.Model().Pending)

	close(api.gate)
	select {
	case m := <-done:
		require.Equal(t, StateVerified, m.State)
	case <-time.After(2 * time.Second):
		t.Fatal("verify did not finish")
	}
}

func TestSessionCancellation(t *testing.T) {
	api := &fakeAPI{
		status:  &domain.AccessStatus{NeedsVerification: true},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := NewSession(api, "fp-1", 6)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Model, 1)
	go func() {
		m, _ := s.Verify(ctx, "123456")
		done <- m
	}()
	<-api.entered
	cancel()

	m := <-done
	require.Equal(t, StateNeedsVerification, m.State)
	require.Equal(t, domain.KindBackendUnavailable, m.Err.Kind)
	require.Equal(t, "request cancelled", m.Err.Message)
	require.Equal(t, OpNone, s.Model().Pending)
}

func TestSessionErrorThenRefresh(t *testing.T) {
	api := &fakeAPI{checkErr: errors.New("dial tcp: refused")}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()

	m, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, StateError, m.State)
	require.Equal(t, domain.KindBackendUnavailable, m.Err.Kind)

	api.checkErr = nil
	api.status = &domain.AccessStatus{IsBlocked: true, BlockReason: "fraud"}
	m, err = s.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, StateBlocked, m.State)
	require.Equal(t, "fraud", m.BlockReason)
}

func TestSessionLockoutEndsInBlocked(t *testing.T) {
	zero := 0
	api := &fakeAPI{
		status: &domain.AccessStatus{NeedsVerification: true},
		verErr: &domain.Error{Kind: domain.KindCodeInvalid, Message: "too many failed attempts", AttemptsLeft: &zero},
	}
	s := NewSession(api, "fp-1", 6)
	ctx := context.Background()
	_, err := s.Load(ctx)
	require.NoError(t, err)
	m, err := s.Verify(ctx, "000000")
	require.NoError(t, err)
	require.Equal(t, StateBlocked, m.State)
}
