package domain

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelSMS:
		return true
	}
	return false
}

// BindingStatus is the externally visible status of a device binding.
type BindingStatus string

const (
	StatusUnregistered        BindingStatus = "unregistered"
	StatusPendingVerification BindingStatus = "pending_verification"
	StatusVerified            BindingStatus = "verified"
	StatusBlocked             BindingStatus = "blocked"
)

// AccessStatus is the check_access response.
type AccessStatus struct {
	Fingerprint       string        `json:"fingerprint"`
	Status            BindingStatus `json:"status"`
	HasAccess         bool          `json:"has_access"`
	IsBlocked         bool          `json:"is_blocked"`
	BlockReason       string        `json:"block_reason,omitempty"`
	NeedsVerification bool          `json:"needs_verification"`
	PWAAccess         []string      `json:"pwa_access,omitempty"`
	// Phone is masked; it lets the client prefill the registration form.
	Phone string `json:"phone,omitempty"`
}

// Delivery describes how a code or link was (or was not) delivered.
type Delivery struct {
	Sent    bool    `json:"sent"`
	Channel Channel `json:"channel,omitempty"`
	// Warning is DELIVERY_FAILED when no channel accepted the message.
	Warning ErrorKind `json:"warning,omitempty"`
	Message string    `json:"message,omitempty"`
}

// RegisterRequest is the register_device payload.
type RegisterRequest struct {
	Fingerprint string `json:"fingerprint"`
	Phone       string `json:"phone"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// RegisterResult is a successful register_device response. The code itself is never returned.
type RegisterResult struct {
	Success   bool     `json:"success"`
	Status    string   `json:"status"`
	ExpiresIn int      `json:"expires_in"`
	Delivery  Delivery `json:"delivery"`
}

// VerifyRequest is the verify_device_code payload.
type VerifyRequest struct {
	Fingerprint string `json:"fingerprint"`
	Code        string `json:"code"`
}

// VerifyResult is a successful verify_device_code response.
type VerifyResult struct {
	Success   bool     `json:"success"`
	PWAAccess []string `json:"pwa_access"`
}

// ResendRequest is the resend_code payload; exactly one of the fields is set.
type ResendRequest struct {
	Fingerprint     string `json:"fingerprint,omitempty"`
	InvitationToken string `json:"invitation_token,omitempty"`
}

// ResendResult is a successful resend_code response.
type ResendResult struct {
	Success bool    `json:"success"`
	Channel Channel `json:"channel,omitempty"`
	// RetryAfter is the cooldown before the next resend is allowed.
	RetryAfter int      `json:"retry_after"`
	ExpiresIn  int      `json:"expires_in,omitempty"`
	Delivery   Delivery `json:"delivery"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error"`
}
