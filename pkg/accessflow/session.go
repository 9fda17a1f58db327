package accessflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"deviceguard/pkg/domain"
)

// API is the server surface the session drives; *client.Client satisfies it.
type API interface {
	CheckAccess(ctx context.Context, fingerprint string) (*domain.AccessStatus, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResult, error)
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
	Resend(ctx context.Context, req domain.ResendRequest) (*domain.ResendResult, error)
}

// ErrNotAllowed is returned for an action the current state does not accept.
var ErrNotAllowed = errors.New("action not allowed in current state")

// Session runs one pass of the access flow for a device. At most one request
// is in flight; a second call while one is pending fails with OPERATION_IN_PROGRESS.
type Session struct {
	api         API
	fingerprint string
	codeLength  int

	mu    sync.Mutex
	model Model
	busy  bool
}

func NewSession(api API, fingerprint string, codeLength int) *Session {
	return &Session{api: api, fingerprint: fingerprint, codeLength: codeLength, model: Initial()}
}

// Model returns a snapshot of the current model.
func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// begin applies the start event and claims the in-flight slot.
func (s *Session) begin(start Event, want ...State) (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return s.model, domain.NewError(domain.KindOperationInProgress, "another request is still in progress")
	}
	ok := false
	for _, st := range want {
		ok = ok || s.model.State == st
	}
	if !ok {
		return s.model, ErrNotAllowed
	}
	if start != nil {
		s.model = Reduce(s.model, start)
	}
	s.busy = true
	return s.model, nil
}

func (s *Session) finish(ev Event) Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = Reduce(s.model, ev)
	s.busy = false
	return s.model
}

// Load performs the initial access check.
func (s *Session) Load(ctx context.Context) (Model, error) {
	if _, err := s.begin(nil, StateLoading); err != nil {
		return s.Model(), err
	}
	st, err := s.api.CheckAccess(ctx, s.fingerprint)
	if err != nil {
		return s.finish(LoadFailed{Err: asError(err)}), nil
	}
	return s.finish(AccessLoaded{Status: st}), nil
}

// Refresh restarts from loading after an error.
func (s *Session) Refresh(ctx context.Context) (Model, error) {
	s.mu.Lock()
	if s.busy || s.model.State != StateError {
		m := s.model
		s.mu.Unlock()
		return m, ErrNotAllowed
	}
	s.model = Reduce(s.model, Refresh{})
	s.mu.Unlock()
	return s.Load(ctx)
}

func (s *Session) Register(ctx context.Context, form Form) (Model, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Phone = strings.TrimSpace(form.Phone)
	form.Email = strings.TrimSpace(form.Email)
	if _, err := s.begin(RegisterStarted{Form: form}, StateNeedsRegistration); err != nil {
		return s.Model(), err
	}
	if _, err := domain.NormalizePhone(form.Phone); err != nil {
		return s.finish(RegisterFailed{Err: asError(err)}), nil
	}
	res, err := s.api.Register(ctx, domain.RegisterRequest{
		Fingerprint: s.fingerprint,
		Phone:       form.Phone,
		Name:        form.Name,
		Email:       form.Email,
	})
	if err != nil {
		return s.finish(RegisterFailed{Err: asError(err)}), nil
	}
	return s.finish(RegisterSucceeded{Result: res}), nil
}

func (s *Session) Verify(ctx context.Context, code string) (Model, error) {
	code = strings.TrimSpace(code)
	if _, err := s.begin(VerifyStarted{}, StateNeedsVerification); err != nil {
		return s.Model(), err
	}
	if s.codeLength > 0 && !domain.ValidCode(code, s.codeLength) {
		return s.finish(VerifyFailed{Err: domain.NewError(domain.KindInvalidInput, "enter the %d-digit code", s.codeLength)}), nil
	}
	res, err := s.api.Verify(ctx, domain.VerifyRequest{Fingerprint: s.fingerprint, Code: code})
	if err != nil {
		return s.finish(VerifyFailed{Err: asError(err)}), nil
	}
	return s.finish(VerifySucceeded{Result: res}), nil
}

func (s *Session) Resend(ctx context.Context) (Model, error) {
	if _, err := s.begin(ResendStarted{}, StateNeedsVerification); err != nil {
		return s.Model(), err
	}
	res, err := s.api.Resend(ctx, domain.ResendRequest{Fingerprint: s.fingerprint})
	if err != nil {
		return s.finish(ResendFailed{Err: asError(err)}), nil
	}
	return s.finish(ResendSucceeded{Result: res}), nil
}

// Back returns from code entry to the registration form. It has no server-side effect.
func (s *Session) Back() (Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return s.model, domain.NewError(domain.KindOperationInProgress, "another request is still in progress")
	}
	if s.model.State != StateNeedsVerification {
		return s.model, ErrNotAllowed
	}
	s.model = Reduce(s.model, Back{})
	return s.model, nil
}

func asError(err error) *domain.Error {
	if errors.Is(err, context.Canceled) {
		return domain.NewError(domain.KindBackendUnavailable, "request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindBackendUnavailable, "request timed out")
	}
	return domain.AsError(err)
}
