// Package tui renders the access flow for accessctl.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"deviceguard/pkg/accessflow"
	"deviceguard/pkg/domain"
)

const requestTimeout = 20 * time.Second

const (
	fieldName = iota
	fieldPhone
	fieldEmail
	fieldCount
)

type flowMsg struct {
	model accessflow.Model
	err   error
}

type copyMsg struct{ err error }

// App is the bubbletea model driving one accessflow.Session.
type App struct {
	session     *accessflow.Session
	fingerprint string
	codeLength  int

	flow   accessflow.Model
	busy   bool
	fields [fieldCount]string
	focus  int
	code   string
	status string

	// copy is swapped in tests.
	copy func(string) error
}

func NewApp(session *accessflow.Session, fingerprint string, codeLength int) App {
	return App{
		session:     session,
		fingerprint: fingerprint,
		codeLength:  codeLength,
		flow:        session.Model(),
		busy:        true,
		focus:       fieldPhone,
		copy:        clipboard.WriteAll,
	}
}

// Flow returns the last model reported by the session.
func (a App) Flow() accessflow.Model { return a.flow }

func (a App) Init() tea.Cmd {
	return a.run(func(ctx context.Context) (accessflow.Model, error) { return a.session.Load(ctx) })
}

func (a App) run(fn func(ctx context.Context) (accessflow.Model, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		m, err := fn(ctx)
		return flowMsg{model: m, err: err}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case flowMsg:
		a.busy = false
		a.flow = msg.model
		a.status = ""
		if msg.err != nil {
			a.status = actionError(msg.err)
		}
		if a.flow.State == accessflow.StateNeedsRegistration && a.fields[fieldPhone] == "" {
			a.fields[fieldName] = a.flow.Form.Name
			a.fields[fieldPhone] = a.flow.Form.Phone
			a.fields[fieldEmail] = a.flow.Form.Email
		}
		if a.flow.State != accessflow.StateNeedsVerification {
			a.code = ""
		}
		return a, nil
	case copyMsg:
		if msg.err != nil {
			a.status = "copy failed: " + msg.err.Error()
		} else {
			a.status = "device id copied"
		}
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) copyID() tea.Cmd {
	id, copyFn := a.fingerprint, a.copy
	return func() tea.Msg { return copyMsg{err: copyFn(id)} }
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return a, tea.Quit
	case "ctrl+y":
		return a, a.copyID()
	}
	if a.busy {
		return a, nil
	}

	switch a.flow.State {
	case accessflow.StateNeedsRegistration:
		return a.keyRegistration(key)
	case accessflow.StateNeedsVerification:
		return a.keyVerification(key)
	case accessflow.StateError:
		switch key {
		case "r", "ctrl+r", "enter":
			a.busy = true
			return a, a.run(a.session.Refresh)
		}
	}
	switch key {
	case "q", "esc":
		return a, tea.Quit
	case "c":
		return a, a.copyID()
	}
	return a, nil
}

func (a App) keyRegistration(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "tab", "down":
		a.focus = (a.focus + 1) % fieldCount
	case "shift+tab", "up":
		a.focus = (a.focus + fieldCount - 1) % fieldCount
	case "esc":
		return a, tea.Quit
	case "enter":
		form := accessflow.Form{Name: a.fields[fieldName], Phone: a.fields[fieldPhone], Email: a.fields[fieldEmail]}
		a.busy = true
		return a, a.run(func(ctx context.Context) (accessflow.Model, error) { return a.session.Register(ctx, form) })
	default:
		accept := anyRune
		if a.focus == fieldPhone {
			accept = phoneRune
		}
		a.fields[a.focus] = editRune(a.fields[a.focus], key, accept)
	}
	return a, nil
}

func (a App) keyVerification(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		m, err := a.session.Back()
		a.flow = m
		if err != nil {
			a.status = actionError(err)
		}
		a.code = ""
	case "r":
		a.busy = true
		return a, a.run(a.session.Resend)
	case "enter":
		code := a.code
		a.busy = true
		return a, a.run(func(ctx context.Context) (accessflow.Model, error) { return a.session.Verify(ctx, code) })
	default:
		if key != "backspace" && len(a.code) >= a.codeLength {
			return a, nil
		}
		a.code = editRune(a.code, key, isDigit)
	}
	return a, nil
}

func actionError(err error) string {
	if errors.Is(err, accessflow.ErrNotAllowed) {
		return "not available right now"
	}
	if errors.Is(err, domain.ErrInProgress) {
		return "still working on the previous request"
	}
	return err.Error()
}

func (a App) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DeviceGuard"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("device " + shortID(a.fingerprint)))
	b.WriteString("\n\n")

	f := a.flow
	switch f.State {
	case accessflow.StateLoading:
		b.WriteString("Checking access…")
	case accessflow.StateSendingCode:
		b.WriteString("Sending code…")
	case accessflow.StateBlocked:
		b.WriteString(errorStyle.Render("This device is blocked."))
		if f.BlockReason != "" {
			b.WriteString("\n" + dimStyle.Render("Reason: "+f.BlockReason))
		}
		b.WriteString("\n" + dimStyle.Render("Press c to copy the device id for support."))
	case accessflow.StateVerified:
		b.WriteString(noticeStyle.Render("Access granted."))
		if len(f.PWAAccess) > 0 {
			b.WriteString("\n" + dimStyle.Render("Entitlements: "+strings.Join(f.PWAAccess, ", ")))
		}
	case accessflow.StateError:
		b.WriteString(errorStyle.Render("Could not reach the server."))
		b.WriteString("\n" + dimStyle.Render("Press r to retry."))
	case accessflow.StateNeedsRegistration:
		b.WriteString(a.viewForm())
	case accessflow.StateNeedsVerification:
		b.WriteString(a.viewCode())
	}

	if f.Notice != "" {
		b.WriteString("\n\n" + noticeStyle.Render(f.Notice))
	}
	if f.Err != nil && f.State != accessflow.StateError {
		b.WriteString("\n\n" + errorStyle.Render(describe(f)))
	}
	if a.status != "" {
		b.WriteString("\n\n" + warnStyle.Render(a.status))
	}
	b.WriteString("\n\n" + dimStyle.Render(a.help()))
	return boxStyle.Render(b.String()) + "\n"
}

func (a App) viewForm() string {
	labels := [fieldCount]string{"Name", "Phone", "Email"}
	var rows []string
	for i, l := range labels {
		v := a.fields[i]
		if i == a.focus {
			rows = append(rows, labelStyle.Render(l)+focusStyle.Render(v+"█"))
			continue
		}
		if v == "" {
			v = dimStyle.Render("optional")
			if i == fieldPhone {
				v = dimStyle.Render("+15551234567")
			}
		}
		rows = append(rows, labelStyle.Render(l)+v)
	}
	return "Register this device with your phone number.\n\n" + strings.Join(rows, "\n")
}

func (a App) viewCode() string {
	slots := a.code + strings.Repeat("·", max(a.codeLength-len(a.code), 0))
	s := "Enter the code we sent you.\n\n" + codeStyle.Render(slots)
	if a.flow.ExpiresIn > 0 {
		s += "\n" + dimStyle.Render(fmt.Sprintf("The code is valid for %ds.", a.flow.ExpiresIn))
	}
	return s
}

func describe(f accessflow.Model) string {
	e := f.Err
	switch e.Kind {
	case domain.KindRateLimited:
		return fmt.Sprintf("%s. Try again in %ds.", e.Message, f.RetryAfter)
	case domain.KindCodeInvalid:
		if f.AttemptsLeft != nil {
			return fmt.Sprintf("%s (%d attempts left)", e.Message, *f.AttemptsLeft)
		}
	}
	return e.Message
}

func (a App) help() string {
	if a.busy {
		return "working…  ctrl+c quit"
	}
	switch a.flow.State {
	case accessflow.StateNeedsRegistration:
		return "tab next field · enter send code · ctrl+y copy device id · esc quit"
	case accessflow.StateNeedsVerification:
		return "enter verify · r resend · esc back · ctrl+y copy device id"
	case accessflow.StateError:
		return "r retry · q quit"
	}
	return "c copy device id · q quit"
}

func shortID(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
