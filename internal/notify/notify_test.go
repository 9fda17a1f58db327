package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"deviceguard/pkg/domain"
)

type fakeChannel struct {
	name domain.Channel
	err  error
	addr bool

	mu   sync.Mutex
	sent []Content
}

func (f *fakeChannel) Name() domain.Channel { return f.name }

func (f *fakeChannel) Address(r Recipient) (string, bool) {
	if !f.addr {
		return "", false
	}
	return r.Phone, true
}

func (f *fakeChannel) Send(_ context.Context, _ string, c Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return f.err
}

func newTestDispatcher(t *testing.T, channels ...Channel) *FallbackDispatcher {
	t.Helper()
	tpl, err := NewTemplates()
	require.NoError(t, err)
	return NewFallbackDispatcher(tpl, zap.NewNop(), channels)
}

func codeMessage(preferred domain.Channel) Message {
	return Message{
		Recipient:        Recipient{Phone: "+15550001111"},
		TemplateID:       TemplateVerificationCode,
		Variables:        map[string]string{"app": "Gate", "code": "123456", "ttl_minutes": "2"},
		PreferredChannel: preferred,
	}
}

func TestDispatchPreferredChannel(t *testing.T) {
	wa := &fakeChannel{name: domain.ChannelWhatsApp, addr: true}
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true}
	d := newTestDispatcher(t, wa, sms)

	out := d.Dispatch(context.Background(), codeMessage(domain.ChannelWhatsApp))
	require.True(t, out.Success)
	require.Equal(t, domain.ChannelWhatsApp, out.ChannelUsed)
	require.Len(t, wa.sent, 1)
	require.Contains(t, wa.sent[0].Text, "123456")
	require.Empty(t, sms.sent)
}

func TestDispatchFallsBackAndReportsChannelUsed(t *testing.T) {
	wa := &fakeChannel{name: domain.ChannelWhatsApp, addr: true, err: errors.New("template not approved")}
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true}
	d := newTestDispatcher(t, wa, sms)

	out := d.Dispatch(context.Background(), codeMessage(domain.ChannelWhatsApp))
	require.True(t, out.Success)
	require.Equal(t, domain.ChannelSMS, out.ChannelUsed)
}

func TestDispatchSkipsUnaddressableChannels(t *testing.T) {
	email := &fakeChannel{name: domain.ChannelEmail, addr: false}
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true}
	d := newTestDispatcher(t, email, sms)

	out := d.Dispatch(context.Background(), codeMessage(domain.ChannelEmail))
	require.True(t, out.Success)
	require.Equal(t, domain.ChannelSMS, out.ChannelUsed)
	require.Empty(t, email.sent)
}

type hangingChannel struct{ name domain.Channel }

func (h hangingChannel) Name() domain.Channel { return h.name }

func (h hangingChannel) Address(r Recipient) (string, bool) { return r.Phone, true }

func (h hangingChannel) Send(ctx context.Context, _ string, _ Content) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatchHungChannelStillFallsBack(t *testing.T) {
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true}
	tpl, err := NewTemplates()
	require.NoError(t, err)
	d := NewFallbackDispatcher(tpl, zap.NewNop(),
		[]Channel{hangingChannel{name: domain.ChannelWhatsApp}, sms},
		WithTimeout(50*time.Millisecond))

	out := d.Dispatch(context.Background(), codeMessage(domain.ChannelWhatsApp))
	require.True(t, out.Success, "%v", out.Err)
	require.Equal(t, domain.ChannelSMS, out.ChannelUsed)
	require.Len(t, sms.sent, 1)
}

func TestDispatchStopsWhenCallerGivesUp(t *testing.T) {
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true}
	d := newTestDispatcher(t, hangingChannel{name: domain.ChannelWhatsApp}, sms)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := d.Dispatch(ctx, codeMessage(domain.ChannelWhatsApp))
	require.False(t, out.Success)
	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
	require.Empty(t, sms.sent)
}

func TestDispatchAllChannelsFail(t *testing.T) {
	wa := &fakeChannel{name: domain.ChannelWhatsApp, addr: true, err: errors.New("down")}
	sms := &fakeChannel{name: domain.ChannelSMS, addr: true, err: errors.New("also down")}
	d := newTestDispatcher(t, wa, sms)

	out := d.Dispatch(context.Background(), codeMessage(domain.ChannelWhatsApp))
	require.False(t, out.Success)
	require.Empty(t, out.ChannelUsed)
	require.ErrorContains(t, out.Err, "also down")
}

func TestDispatchNoChannels(t *testing.T) {
	d := newTestDispatcher(t)
	out := d.Dispatch(context.Background(), codeMessage(""))
	require.False(t, out.Success)
	require.ErrorIs(t, out.Err, ErrNoChannel)
}

func TestDispatchUnknownTemplate(t *testing.T) {
	d := newTestDispatcher(t, &fakeChannel{name: domain.ChannelSMS, addr: true})
	msg := codeMessage(domain.ChannelSMS)
	msg.TemplateID = "nope"
	out := d.Dispatch(context.Background(), msg)
	require.False(t, out.Success)
	require.ErrorContains(t, out.Err, "unknown template")
}

func TestTemplatesRender(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	c, err := tpl.Render(TemplateInvitationResend, map[string]string{"app": "Gate", "link": "https://x/i/abc"})
	require.NoError(t, err)
	require.Equal(t, "Your Gate invitation", c.Subject)
	require.Equal(t, "your Gate invitation: https://x/i/abc", c.Text)
	require.Contains(t, c.HTML, `href="https://x/i/abc"`)

	c, err = tpl.Render(TemplateInvitationResend, map[string]string{"app": "Gate", "name": "Ana", "link": "l"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(c.Text, "Ana, "))
}

func TestSMSChannelMobizon(t *testing.T) {
	var got map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]string{"messageId": "42"}}) //nolint:errcheck
	}))
	defer srv.Close()

	ch := NewSMSChannel("key", "GATE", false, zap.NewNop())
	ch.BaseURL = srv.URL

	to, ok := ch.Address(Recipient{Phone: "+15550001111"})
	require.True(t, ok)
	require.Equal(t, "15550001111", to)

	require.NoError(t, ch.Send(context.Background(), to, Content{Text: "code 1"}))
	require.Equal(t, []string{"15550001111"}, got["recipient"])
	require.Equal(t, []string{"GATE"}, got["from"])
	require.Equal(t, []string{"code 1"}, got["text"])
}

func TestSMSChannelMobizonErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 8, "message": "no balance"}) //nolint:errcheck
	}))
	defer srv.Close()

	ch := NewSMSChannel("key", "", false, zap.NewNop())
	ch.BaseURL = srv.URL
	err := ch.Send(context.Background(), "15550001111", Content{Text: "x"})
	require.ErrorContains(t, err, "error code 8")
}

func TestSMSChannelDryRun(t *testing.T) {
	ch := NewSMSChannel("", "", false, zap.NewNop())
	ch.BaseURL = "http://127.0.0.1:1"
	require.NoError(t, ch.Send(context.Background(), "15550001111", Content{Text: "x"}))
}

func TestWhatsAppChannel(t *testing.T) {
	var body map[string]any
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWhatsAppChannel("tok", "999", "v20.0", false, zap.NewNop())
	ch.BaseURL = srv.URL
	require.NoError(t, ch.Send(context.Background(), "15550001111", Content{Text: "hello"}))
	require.Equal(t, "/v20.0/999/messages", path)
	require.Equal(t, "Bearer tok", auth)
	require.Equal(t, "15550001111", body["to"])
}

func TestWhatsAppChannelAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad number"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	ch := NewWhatsAppChannel("tok", "999", "", false, zap.NewNop())
	ch.BaseURL = srv.URL
	err := ch.Send(context.Background(), "1", Content{Text: "hello"})
	var apiErr WhatsAppAPIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestWhatsAppChannelNotConfigured(t *testing.T) {
	ch := NewWhatsAppChannel("", "", "", false, zap.NewNop())
	require.Error(t, ch.Send(context.Background(), "1", Content{Text: "x"}))
}

type fakeMailer struct {
	msgs []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.msgs = append(f.msgs, m...)
	return f.err
}

func TestEmailChannel(t *testing.T) {
	mailer := &fakeMailer{}
	ch := &EmailChannel{dialer: mailer, from: "noreply@gate.test", logger: zap.NewNop()}

	_, ok := ch.Address(Recipient{Email: "not-an-email"})
	require.False(t, ok)
	to, ok := ch.Address(Recipient{Email: " ana@example.com "})
	require.True(t, ok)

	require.NoError(t, ch.Send(context.Background(), to, Content{Subject: "s", Text: "t", HTML: "<p>t</p>"}))
	require.Len(t, mailer.msgs, 1)
	require.Equal(t, []string{"ana@example.com"}, mailer.msgs[0].GetHeader("To"))

	mailer.err = errors.New("smtp 421")
	require.ErrorContains(t, ch.Send(context.Background(), to, Content{}), "smtp 421")
}

func TestEmailChannelHonoursCancelledContext(t *testing.T) {
	ch := &EmailChannel{dialer: &fakeMailer{}, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ch.Send(ctx, "a@b.c", Content{}), context.Canceled)
}

func TestTelegramAlerter(t *testing.T) {
	var sentChat, sentText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"gate","username":"gate_bot"}}`)) //nolint:errcheck
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sentChat = r.FormValue("chat_id")
			sentText = r.FormValue("text")
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"group"}}}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := NewTelegramAlerter("123:abc", -100, srv.URL+"/bot%s/%s", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Alert(ctx, LockoutAlert("abcdef0123456789abcdef", "****1111", 3)))
	require.Equal(t, "-100", sentChat)
	require.Contains(t, sentText, "Device locked out")
	require.Contains(t, sentText, "abcdef0123456789…")
}

func TestTelegramAlerterRequiresConfig(t *testing.T) {
	_, err := NewTelegramAlerter("", 0, "", zap.NewNop())
	require.Error(t, err)
	require.NoError(t, NopAlerter{}.Alert(context.Background(), "x"))
}

func TestBlockAlertEscapes(t *testing.T) {
	text := BlockAlert("fp", "mod<1>", "spam & abuse", true)
	require.Contains(t, text, "mod&lt;1&gt;")
	require.Contains(t, text, "spam &amp; abuse")
	require.Contains(t, BlockAlert("fp", "m", "r", false), "unblocked")
}
