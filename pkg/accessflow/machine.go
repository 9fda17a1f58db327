// Package accessflow is the client-side access state machine. Reduce is pure;
// Session performs the network calls and feeds their outcomes back as events.
package accessflow

import (
	"fmt"

	"deviceguard/pkg/domain"
)

type State string

const (
	StateLoading           State = "loading"
	StateBlocked           State = "blocked"
	StateNeedsRegistration State = "needs_registration"
	StateSendingCode       State = "sending_code"
	StateNeedsVerification State = "needs_verification"
	StateVerified          State = "verified"
	StateError             State = "error"
)

// Terminal states end the session; a new Session starts from loading.
func (s State) Terminal() bool {
	return s == StateBlocked || s == StateVerified
}

// Op is the request currently in flight.
type Op string

const (
	OpNone     Op = ""
	OpLoad     Op = "load"
	OpRegister Op = "register"
	OpVerify   Op = "verify"
	OpResend   Op = "resend"
)

// Form is what the user typed. It survives failed attempts.
type Form struct {
	Name  string
	Phone string
	Email string
}

type Model struct {
	State   State
	Form    Form
	Pending Op

	// Notice is positive feedback, e.g. which channel delivered the code.
	Notice string
	// Err is the last failure, cleared by the next successful step.
	Err          *domain.Error
	RetryAfter   int
	AttemptsLeft *int
	Channel      domain.Channel
	ExpiresIn    int

	BlockReason string
	PWAAccess   []string
}

// Initial is the model of a fresh session.
func Initial() Model {
	return Model{State: StateLoading, Pending: OpLoad}
}

type Event interface{ event() }

type (
	AccessLoaded struct{ Status *domain.AccessStatus }
	LoadFailed   struct{ Err *domain.Error }

	RegisterStarted   struct{ Form Form }
	RegisterSucceeded struct{ Result *domain.RegisterResult }
	RegisterFailed    struct{ Err *domain.Error }

	VerifyStarted   struct{}
	VerifySucceeded struct{ Result *domain.VerifyResult }
	VerifyFailed    struct{ Err *domain.Error }

	ResendStarted   struct{}
	ResendSucceeded struct{ Result *domain.ResendResult }
	ResendFailed    struct{ Err *domain.Error }

	Back    struct{}
	Refresh struct{}
)

func (AccessLoaded) event()      {}
func (LoadFailed) event()        {}
func (RegisterStarted) event()   {}
func (RegisterSucceeded) event() {}
func (RegisterFailed) event()    {}
func (VerifyStarted) event()     {}
func (VerifySucceeded) event()   {}
func (VerifyFailed) event()      {}
func (ResendStarted) event()     {}
func (ResendSucceeded) event()   {}
func (ResendFailed) event()      {}
func (Back) event()              {}
func (Refresh) event()           {}

// Reduce applies ev to m. Events that are not legal in m.State return m unchanged.
func Reduce(m Model, ev Event) Model {
	if m.State.Terminal() {
		return m
	}
	switch m.State {
	case StateLoading:
		return reduceLoading(m, ev)
	case StateNeedsRegistration:
		if e, ok := ev.(RegisterStarted); ok && m.Pending == OpNone {
			m.Form = e.Form
			m.State = StateSendingCode
			m.Pending = OpRegister
			m.clearFeedback()
		}
		return m
	case StateSendingCode:
		return reduceSending(m, ev)
	case StateNeedsVerification:
		return reduceVerification(m, ev)
	case StateError:
		if _, ok := ev.(Refresh); ok {
			return Model{State: StateLoading, Pending: OpLoad, Form: m.Form}
		}
		return m
	}
	return m
}

func reduceLoading(m Model, ev Event) Model {
	switch e := ev.(type) {
	case AccessLoaded:
		m.Pending = OpNone
		st := e.Status
		switch {
		case st == nil:
			return failed(m, domain.NewError(domain.KindBackendUnavailable, "empty access response"))
		case st.IsBlocked:
			m.State = StateBlocked
			m.BlockReason = st.BlockReason
		case st.HasAccess:
			m.State = StateVerified
			m.PWAAccess = st.PWAAccess
		case st.NeedsVerification:
			m.State = StateNeedsVerification
		default:
			m.State = StateNeedsRegistration
		}
		return m
	case LoadFailed:
		m.Pending = OpNone
		return failed(m, e.Err)
	}
	return m
}

func reduceSending(m Model, ev Event) Model {
	switch e := ev.(type) {
	case RegisterSucceeded:
		m.Pending = OpNone
		m.State = StateNeedsVerification
		m.clearFeedback()
		if e.Result != nil {
			m.ExpiresIn = e.Result.ExpiresIn
			m.applyDelivery(e.Result.Delivery)
		}
	case RegisterFailed:
		m.Pending = OpNone
		m.clearFeedback()
		m.Err = e.Err
		if blocks(e.Err) {
			m.State = StateBlocked
			m.BlockReason = e.Err.Message
			return m
		}
		m.State = StateNeedsRegistration
		if e.Err != nil && e.Err.Kind == domain.KindRateLimited {
			m.RetryAfter = e.Err.RetryAfterSeconds
		}
	}
	return m
}

func reduceVerification(m Model, ev Event) Model {
	switch e := ev.(type) {
	case VerifyStarted:
		if m.Pending == OpNone {
			m.Pending = OpVerify
		}
	case ResendStarted:
		if m.Pending == OpNone {
			m.Pending = OpResend
		}
	case Back:
		if m.Pending == OpNone {
			m.State = StateNeedsRegistration
			m.clearFeedback()
		}
	case VerifySucceeded:
		if m.Pending != OpVerify {
			return m
		}
		m.Pending = OpNone
		m.clearFeedback()
		m.State = StateVerified
		if e.Result != nil {
			m.PWAAccess = e.Result.PWAAccess
		}
	case VerifyFailed:
		if m.Pending != OpVerify {
			return m
		}
		m.Pending = OpNone
		m.clearFeedback()
		m.Err = e.Err
		if e.Err != nil {
			m.AttemptsLeft = e.Err.AttemptsLeft
		}
		if blocks(e.Err) || lockedOut(e.Err) {
			m.State = StateBlocked
			m.BlockReason = e.Err.Message
		}
	case ResendSucceeded:
		if m.Pending != OpResend {
			return m
		}
		m.Pending = OpNone
		m.clearFeedback()
		if e.Result != nil {
			m.RetryAfter = e.Result.RetryAfter
			m.ExpiresIn = e.Result.ExpiresIn
			m.applyDelivery(e.Result.Delivery)
		}
	case ResendFailed:
		if m.Pending != OpResend {
			return m
		}
		m.Pending = OpNone
		m.clearFeedback()
		m.Err = e.Err
		if blocks(e.Err) {
			m.State = StateBlocked
			m.BlockReason = e.Err.Message
		} else if e.Err != nil && e.Err.Kind == domain.KindRateLimited {
			m.RetryAfter = e.Err.RetryAfterSeconds
		}
	}
	return m
}

func failed(m Model, err *domain.Error) Model {
	if err == nil {
		err = domain.NewError(domain.KindBackendUnavailable, "service temporarily unavailable")
	}
	m.State = StateError
	m.Err = err
	return m
}

func (m *Model) clearFeedback() {
	m.Notice = ""
	m.Err = nil
	m.RetryAfter = 0
	m.AttemptsLeft = nil
}

func (m *Model) applyDelivery(d domain.Delivery) {
	m.Channel = d.Channel
	if d.Warning == domain.KindDeliveryFailed {
		m.Err = &domain.Error{Kind: domain.KindDeliveryFailed, Message: d.Message}
		m.Notice = "code could not be delivered, try resend"
		return
	}
	m.Notice = fmt.Sprintf("code sent via %s", channelLabel(d.Channel))
}

func blocks(err *domain.Error) bool {
	return err != nil && err.Kind == domain.KindDeviceBlocked
}

// lockedOut: the attempt that exhausts the limit comes back as CODE_INVALID with nothing left.
func lockedOut(err *domain.Error) bool {
	return err != nil && err.Kind == domain.KindCodeInvalid && err.AttemptsLeft != nil && *err.AttemptsLeft == 0
}

func channelLabel(c domain.Channel) string {
	switch c {
	case domain.ChannelSMS:
		return "SMS"
	case domain.ChannelWhatsApp:
		return "WhatsApp"
	case domain.ChannelEmail:
		return "email"
	}
	return string(c)
}
