package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"deviceguard/internal/config"
	"deviceguard/internal/handlers"
	"deviceguard/internal/middleware"
	"deviceguard/internal/notify"
	"deviceguard/internal/pdf"
	"deviceguard/internal/ratelimit"
	"deviceguard/internal/repositories"
	"deviceguard/internal/routes"
	"deviceguard/internal/services"
	"deviceguard/pkg/domain"
)

const testSecret = "test-secret"

type codeSink struct {
	mu   sync.Mutex
	last string
}

func (s *codeSink) Dispatch(_ context.Context, msg notify.Message) notify.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = msg.Variables["code"]
	return notify.Outcome{Success: true, ChannelUsed: msg.PreferredChannel}
}

func (s *codeSink) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type stubReport struct{ rows []pdf.BlockedRow }

func (r *stubReport) BlockedDevicesReport(w io.Writer, data pdf.BlockedReport) error {
	r.rows = data.Rows
	_, err := w.Write([]byte("%PDF-stub"))
	return err
}

type server struct {
	router *gin.Engine
	sink   *codeSink
	report *stubReport
}

func newServer(t *testing.T, maxRegisters int) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	proto := config.DefaultProtocol()
	proto.BcryptCost = bcrypt.MinCost
	sink := &codeSink{}
	deps := services.Deps{
		Bindings:    repositories.NewMemoryDeviceBindingRepository(),
		Invitations: repositories.NewMemoryInvitationRepository(),
		Dispatcher:  sink,
	}
	set := services.Settings{Protocol: proto, AppName: "Gate", DefaultChannel: domain.ChannelSMS}
	access := services.NewAccessService(deps, set)
	report := &stubReport{}

	r := gin.New()
	routes.SetupRoutes(r,
		handlers.NewDeviceHandler(services.NewRegistrationService(deps, set), services.NewVerificationService(deps, set), access),
		handlers.NewModerationHandler(access, report, "Gate", nil),
		ratelimit.NewLimiter(ratelimit.Policy{Window: time.Hour, MaxPerWindow: maxRegisters}),
		routes.Auth{Secret: testSecret, Issuer: "deviceguard"},
	)
	return &server{router: r, sink: sink, report: report}
}

func (s *server) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) *domain.Error {
	t.Helper()
	var env domain.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	return env.Error
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := middleware.NewToken(testSecret, "deviceguard", "mod-1", role, "jti-1", time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func TestDeviceFlowOverHTTP(t *testing.T) {
	s := newServer(t, 20)

	w := s.do(t, http.MethodGet, "/devices/d1/access", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.AccessStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, domain.StatusUnregistered, st.Status)

	w = s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d1", Phone: "+15550001111"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), s.sink.code())

	w = s.do(t, http.MethodPost, "/devices/verify", domain.VerifyRequest{Fingerprint: "d1", Code: s.sink.code()}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var vr domain.VerifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vr))
	require.True(t, vr.Success)

	w = s.do(t, http.MethodGet, "/devices/d1/access", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.True(t, st.HasAccess)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t, 20)

	w := s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d1", Phone: "12"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, domain.KindInvalidInput, decodeErr(t, w).Kind)

	req := httptest.NewRequest(http.MethodPost, "/devices/verify", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	w = s.do(t, http.MethodPost, "/devices/verify", domain.VerifyRequest{Fingerprint: "ghost", Code: "123456"}, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, domain.KindNotRegistered, decodeErr(t, w).Kind)

	w = s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d1", Phone: "+15550001111"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	code := s.sink.code()
	bad := []byte(code)
	bad[0] = '0' + (bad[0]-'0'+1)%10
	w = s.do(t, http.MethodPost, "/devices/verify", domain.VerifyRequest{Fingerprint: "d1", Code: string(bad)}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeErr(t, w)
	require.Equal(t, domain.KindCodeInvalid, e.Kind)
	require.Equal(t, 2, *e.AttemptsLeft)

	w = s.do(t, http.MethodPost, "/devices/resend", domain.ResendRequest{Fingerprint: "d1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/devices/resend", domain.ResendRequest{Fingerprint: "d1"}, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Equal(t, domain.KindRateLimited, decodeErr(t, w).Kind)

	w = s.do(t, http.MethodPost, "/devices/resend", domain.ResendRequest{InvitationToken: "nope"}, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, domain.KindInviteInvalid, decodeErr(t, w).Kind)
}

func TestRegisterGuardPerAddress(t *testing.T) {
	s := newServer(t, 2)
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d1", Phone: "+15550001111"}, "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d2", Phone: "+15550002222"}, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	e := decodeErr(t, w)
	require.Equal(t, domain.KindRateLimited, e.Kind)
	require.Greater(t, e.RetryAfterSeconds, 0)
}

func TestModerationRequiresToken(t *testing.T) {
	s := newServer(t, 20)

	w := s.do(t, http.MethodGet, "/admin/devices/blocked", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, token(t, "viewer"))
	require.Equal(t, http.StatusForbidden, w.Code)

	expired, err := middleware.NewToken(testSecret, "deviceguard", "mod-1", "admin", "j", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, expired)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := middleware.NewToken("other-secret", "deviceguard", "mod-1", "admin", "j", time.Hour, time.Now())
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, forged)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlockListReportUnblock(t *testing.T) {
	s := newServer(t, 20)
	tok := token(t, "moderator")

	w := s.do(t, http.MethodPost, "/devices/register", domain.RegisterRequest{Fingerprint: "d1", Phone: "+15550001111"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/admin/devices/ghost/block", gin.H{"reason": "x"}, tok)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/admin/devices/d1/block", gin.H{"reason": "chargeback"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v handlers.BlockedDevice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.Equal(t, "chargeback", v.Reason)
	require.Equal(t, "mod-1", v.BlockedBy)
	require.Equal(t, "********1111", v.Phone)

	w = s.do(t, http.MethodGet, "/devices/d1/access", nil, "")
	var st domain.AccessStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.True(t, st.IsBlocked)

	w = s.do(t, http.MethodPost, "/devices/verify", domain.VerifyRequest{Fingerprint: "d1", Code: s.sink.code()}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, domain.KindDeviceBlocked, decodeErr(t, w).Kind)

	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var list []handlers.BlockedDevice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = s.do(t, http.MethodGet, "/admin/devices/blocked/report.pdf", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "blocked-devices-")
	require.Len(t, s.report.rows, 1)
	require.Equal(t, "********1111", s.report.rows[0].Phone)

	w = s.do(t, http.MethodDelete, "/admin/devices/d1/block", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/admin/devices/blocked", nil, tok)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Empty(t, list)
}
