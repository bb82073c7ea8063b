package convsync

import (
	"time"

	"go.uber.org/zap"
)

// PresencePolicy turns a last-seen age into an effective status.
type PresencePolicy struct {
	AwayAfter    time.Duration
	OfflineAfter time.Duration
}

// DefaultPresencePolicy marks peers away after 2m and offline after 10m without a refresh.
var DefaultPresencePolicy = PresencePolicy{AwayAfter: 2 * time.Minute, OfflineAfter: 10 * time.Minute}

type options struct {
	pollInterval     time.Duration
	typingTTL        time.Duration
	typingDebounce   time.Duration
	maxMessageLength int
	presence         PresencePolicy
	now              func() time.Time
	log              *zap.Logger
}

func defaultOptions() options {
	return options{
		pollInterval:     5 * time.Second,
		typingTTL:        5 * time.Second,
		typingDebounce:   3 * time.Second,
		maxMessageLength: 4000,
		presence:         DefaultPresencePolicy,
		now:              time.Now,
		log:              zap.NewNop(),
	}
}

type Option func(*options)

// WithPollInterval sets the background refetch period. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithTypingTTL sets how long a peer's typing indicator lives without a refresh.
func WithTypingTTL(d time.Duration) Option {
	return func(o *options) { o.typingTTL = d }
}

// WithTypingDebounce sets the window in which a repeated SetTyping(true) is suppressed.
func WithTypingDebounce(d time.Duration) Option {
	return func(o *options) { o.typingDebounce = d }
}

func WithMaxMessageLength(n int) Option {
	return func(o *options) { o.maxMessageLength = n }
}

func WithPresencePolicy(p PresencePolicy) Option {
	return func(o *options) { o.presence = p }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log.Named("convsync") }
}
