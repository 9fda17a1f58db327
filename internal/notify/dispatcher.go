package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deviceguard/pkg/domain"
)

// Recipient is whoever a message is for; channels pick the address they need.
type Recipient struct {
	Name  string
	Phone string
	Email string
}

// Message is one dispatch request.
type Message struct {
	Recipient        Recipient
	TemplateID       string
	Variables        map[string]string
	PreferredChannel domain.Channel
}

// Outcome reports which channel delivered. ChannelUsed is authoritative and may
// differ from the preferred channel after a fallback.
type Outcome struct {
	Success     bool
	ChannelUsed domain.Channel
	Err         error
}

// Dispatcher is the notification boundary the protocol depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) Outcome
}

// Channel delivers rendered messages over one medium.
type Channel interface {
	Name() domain.Channel
	// Address returns the destination for r, or false if r cannot be reached here.
	Address(r Recipient) (string, bool)
	Send(ctx context.Context, to string, content Content) error
}

var ErrNoChannel = errors.New("no delivery channel available for recipient")

// DefaultFallbacks lists, per preferred channel, what to try next.
var DefaultFallbacks = map[domain.Channel][]domain.Channel{
	domain.ChannelWhatsApp: {domain.ChannelSMS, domain.ChannelEmail},
	domain.ChannelSMS:      {domain.ChannelWhatsApp, domain.ChannelEmail},
	domain.ChannelEmail:    {domain.ChannelSMS, domain.ChannelWhatsApp},
}

// FallbackDispatcher tries the preferred channel, then its fallbacks, until one succeeds.
type FallbackDispatcher struct {
	channels       map[domain.Channel]Channel
	fallbacks      map[domain.Channel][]domain.Channel
	defaultChannel domain.Channel
	templates      *Templates
	timeout        time.Duration
	logger         *zap.Logger
}

type DispatcherOption func(*FallbackDispatcher)

func WithFallbacks(f map[domain.Channel][]domain.Channel) DispatcherOption {
	return func(d *FallbackDispatcher) { d.fallbacks = f }
}

func WithDefaultChannel(c domain.Channel) DispatcherOption {
	return func(d *FallbackDispatcher) { d.defaultChannel = c }
}

func WithTimeout(t time.Duration) DispatcherOption {
	return func(d *FallbackDispatcher) { d.timeout = t }
}

func NewFallbackDispatcher(templates *Templates, logger *zap.Logger, channels []Channel, opts ...DispatcherOption) *FallbackDispatcher {
	d := &FallbackDispatcher{
		channels:       make(map[domain.Channel]Channel, len(channels)),
		fallbacks:      DefaultFallbacks,
		defaultChannel: domain.ChannelWhatsApp,
		templates:      templates,
		timeout:        10 * time.Second,
		logger:         logger.Named("dispatch"),
	}
	for _, ch := range channels {
		if ch != nil {
			d.channels[ch.Name()] = ch
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *FallbackDispatcher) order(preferred domain.Channel) []domain.Channel {
	if !preferred.Valid() {
		preferred = d.defaultChannel
	}
	seen := map[domain.Channel]bool{}
	var out []domain.Channel
	for _, c := range append([]domain.Channel{preferred}, d.fallbacks[preferred]...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (d *FallbackDispatcher) Dispatch(ctx context.Context, msg Message) Outcome {
	content, err := d.templates.Render(msg.TemplateID, msg.Variables)
	if err != nil {
		return Outcome{Err: err}
	}

	lastErr := ErrNoChannel
	for _, name := range d.order(msg.PreferredChannel) {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		to, ok := ch.Address(msg.Recipient)
		if !ok {
			continue
		}
		if err := d.send(ctx, ch, to, content); err != nil {
			d.logger.Warn("[dispatch] channel failed",
				zap.String("channel", string(name)),
				zap.String("template", msg.TemplateID),
				zap.Error(err))
			lastErr = fmt.Errorf("%s: %w", name, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if name != msg.PreferredChannel && msg.PreferredChannel != "" {
			d.logger.Info("[dispatch] delivered via fallback",
				zap.String("preferred", string(msg.PreferredChannel)),
				zap.String("channel", string(name)))
		}
		return Outcome{Success: true, ChannelUsed: name}
	}
	return Outcome{Err: lastErr}
}

// send bounds one channel attempt so a hung channel leaves time for the fallbacks.
func (d *FallbackDispatcher) send(ctx context.Context, ch Channel, to string, content Content) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return ch.Send(ctx, to, content)
}
