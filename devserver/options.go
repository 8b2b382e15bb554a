package devserver

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	noStreaming    bool
	upgradeDelay   time.Duration
	tokenDelay     time.Duration
	holdOpen       bool
	dropAfter      int
	rawFrames      [][]byte
	fallbackStatus int
	fallbackBody   *string
	log            *zerolog.Logger
}

type Option func(*options)

// WithoutStreaming removes the WebSocket endpoint, so only the fallback
// endpoint answers.
func WithoutStreaming() Option {
	return func(o *options) { o.noStreaming = true }
}

// WithUpgradeDelay waits before accepting a WebSocket upgrade.
func WithUpgradeDelay(d time.Duration) Option {
	return func(o *options) { o.upgradeDelay = d }
}

// WithTokenDelay pauses before every streamed token.
func WithTokenDelay(d time.Duration) Option {
	return func(o *options) { o.tokenDelay = d }
}

// WithHoldOpen keeps the socket open after the last token instead of closing
// it, like servers that never signal the end of an answer.
func WithHoldOpen() Option {
	return func(o *options) { o.holdOpen = true }
}

// WithDropAfter cuts the connection (without a close frame) after n tokens.
func WithDropAfter(n int) Option {
	return func(o *options) { o.dropAfter = n }
}

// WithRawFrames sends frames verbatim before the answer's tokens.
func WithRawFrames(frames ...string) Option {
	return func(o *options) {
		for _, f := range frames {
			o.rawFrames = append(o.rawFrames, []byte(f))
		}
	}
}

// WithFallbackStatus makes the fallback endpoint fail with code.
func WithFallbackStatus(code int) Option {
	return func(o *options) { o.fallbackStatus = code }
}

// WithFallbackBody makes the fallback endpoint reply with body verbatim.
func WithFallbackBody(body string) Option {
	return func(o *options) { o.fallbackBody = &body }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}
