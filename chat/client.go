// Package chat sends prompts to a model, streaming the answer when possible
// and falling back to a single request when not.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/blixt/nexus/stream"
	"github.com/blixt/nexus/transport"
)

// ErrBusy is returned when a conversation already has a request in flight.
var ErrBusy = errors.New("a response is already in progress for this conversation")

type Timeouts struct {
	// Connect bounds how long opening the stream may take before falling back.
	Connect time.Duration
	// Idle ends a stream that has gone quiet after at least one token.
	Idle time.Duration
	// Response is the ceiling for a whole response.
	Response time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:  5 * time.Second,
		Idle:     3 * time.Second,
		Response: 2 * time.Minute,
	}
}

type Request struct {
	ThreadID string
	Model    Model
	Prompt   string
}

type Client struct {
	streamer  transport.Streamer
	requester transport.Requester
	timeouts  Timeouts
	limiter   *rate.Limiter
	log       zerolog.Logger
	onStatus  func(threadID string, status Status)

	mu       sync.Mutex
	inflight map[string]bool
}

type Option func(*Client)

func WithTimeouts(t Timeouts) Option {
	return func(c *Client) { c.timeouts = t }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRateLimit allows at most perMinute requests per minute. Zero or less
// disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithStatus reports connection status changes of the streaming transport.
func WithStatus(fn func(threadID string, status Status)) Option {
	return func(c *Client) { c.onStatus = fn }
}

// New returns a client that tries streamer first and requester as fallback.
// A nil streamer means every request goes straight to the fallback.
func New(streamer transport.Streamer, requester transport.Requester, opts ...Option) *Client {
	c := &Client{
		streamer:  streamer,
		requester: requester,
		timeouts:  DefaultTimeouts(),
		log:       zerolog.Nop(),
		inflight:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send sends the prompt and feeds the answer to observe as it arrives. It
// returns once the response has completed or failed; exactly one of those
// happens per call. A failed response returns its *stream.Error alongside the
// final state, whose visible text is the user-facing failure message.
func (c *Client) Send(ctx context.Context, req Request, observe stream.Observer) (stream.State, error) {
	if !c.acquire(req.ThreadID) {
		return stream.State{}, ErrBusy
	}
	defer c.release(req.ThreadID)
	return c.send(ctx, req, observe)
}

// send is Send for a caller that already holds the thread.
func (c *Client) send(ctx context.Context, req Request, observe stream.Observer) (stream.State, error) {
	log := c.log.With().Str("thread", req.ThreadID).Str("model", string(req.Model)).Logger()
	acc := stream.New(observe)

	start := time.Now()
	c.run(ctx, req, acc, log)

	state := acc.State()
	if state.Failed {
		log.Warn().Err(state.Err).Dur("elapsed", time.Since(start)).Msg("response failed")
		return state, state.Err
	}
	log.Info().Int("chars", len(state.Raw)).Dur("elapsed", time.Since(start)).Msg("response complete")
	return state, nil
}

func (c *Client) run(ctx context.Context, req Request, acc *stream.Accumulator, log zerolog.Logger) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			acc.OnError(contextError(ctx, stream.Timeout, fmt.Errorf("waiting for rate limit: %w", err)))
			return
		}
	}

	if c.streamer != nil {
		s, err := c.open(ctx, req)
		if err == nil {
			c.consume(ctx, req, s, acc, log)
			return
		}
		if ctx.Err() != nil || stream.KindOf(err) != stream.ConnectionFailure {
			acc.OnError(contextError(ctx, stream.KindOf(err), err))
			return
		}
		log.Warn().Err(err).Msg("streaming unavailable, falling back to a single request")
	}
	c.fallback(ctx, req, acc, log)
}

func (c *Client) open(ctx context.Context, req Request) (transport.Stream, error) {
	c.status(req.ThreadID, StatusConnecting)
	openCtx, cancel := context.WithTimeout(ctx, c.timeouts.Connect)
	defer cancel()
	s, err := c.streamer.Open(openCtx, req.ThreadID, string(req.Model))
	if err != nil {
		c.status(req.ThreadID, StatusFailed)
		var e *stream.Error
		if !errors.As(err, &e) {
			err = stream.NewError(stream.ConnectionFailure, err)
		}
		return nil, err
	}
	c.status(req.ThreadID, StatusConnected)
	return s, nil
}

// fallback asks for the whole answer in one request. It is used at most once
// per Send.
func (c *Client) fallback(ctx context.Context, req Request, acc *stream.Accumulator, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Response)
	defer cancel()
	answer, err := c.requester.Complete(ctx, transport.Request{
		ThreadID: req.ThreadID,
		Model:    string(req.Model),
		Prompt:   req.Prompt,
	})
	if err != nil {
		acc.OnError(contextError(ctx, stream.KindOf(err), err))
		return
	}
	log.Debug().Int("chars", len(answer)).Msg("fallback answered")
	acc.OnFragment(answer)
	acc.OnComplete()
}

type frameResult struct {
	frame transport.Frame
	err   error
}

// consume reads tokens from an open stream until it ends, goes idle, runs
// past the response ceiling, or ctx is done. The stream is always closed
// before the final state is delivered.
func (c *Client) consume(ctx context.Context, req Request, s transport.Stream, acc *stream.Accumulator, log zerolog.Logger) {
	defer c.status(req.ThreadID, StatusDisconnected)
	defer s.Close()

	if err := s.Send(req.Prompt); err != nil {
		acc.OnError(err)
		return
	}

	frames := make(chan frameResult)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			f, err := s.Next()
			select {
			case frames <- frameResult{f, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ceiling := time.NewTimer(c.timeouts.Response)
	defer ceiling.Stop()
	var idleTimer *time.Timer
	var idle <-chan time.Time
	defer func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			acc.OnError(contextError(ctx, stream.Canceled, ctx.Err()))
			return
		case <-ceiling.C:
			s.Close()
			acc.OnError(stream.Errorf(stream.Timeout, "no complete response within %s", c.timeouts.Response))
			return
		case <-idle:
			log.Debug().Dur("idle", c.timeouts.Idle).Msg("closing quiet stream")
			s.Close()
			c.finish(acc)
			return
		case r := <-frames:
			if r.err != nil {
				c.end(s, acc, r.err, log)
				return
			}
			if !r.frame.HasToken() {
				log.Warn().Bytes("frame", r.frame.Raw).Msg("received frame without token")
				continue
			}
			acc.OnFragment(r.frame.Token)
			if idleTimer == nil {
				idleTimer = time.NewTimer(c.timeouts.Idle)
				idle = idleTimer.C
			} else {
				idleTimer.Reset(c.timeouts.Idle)
			}
		}
	}
}

// end handles the stream reporting an error (io.EOF for a normal close).
func (c *Client) end(s transport.Stream, acc *stream.Accumulator, err error, log zerolog.Logger) {
	s.Close()
	switch {
	case errors.Is(err, io.EOF):
		c.finish(acc)
	case stream.KindOf(err) == stream.MalformedPayload:
		acc.OnError(err)
	case hasContent(acc):
		// The answer got cut short, but what arrived is still worth keeping.
		log.Warn().Err(err).Msg("stream dropped after content")
		acc.OnComplete()
	default:
		acc.OnError(stream.NewError(stream.ConnectionLost, err))
	}
}

// finish completes a stream that ended without error, which is only a
// success if something was actually said.
func (c *Client) finish(acc *stream.Accumulator) {
	if hasContent(acc) {
		acc.OnComplete()
		return
	}
	acc.OnError(stream.Errorf(stream.EmptyResponse, "stream ended without content"))
}

func hasContent(acc *stream.Accumulator) bool {
	return strings.TrimSpace(acc.State().Raw) != ""
}

func (c *Client) status(threadID string, s Status) {
	if c.onStatus != nil {
		c.onStatus(threadID, s)
	}
}

func (c *Client) acquire(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[threadID] {
		return false
	}
	c.inflight[threadID] = true
	return true
}

// InFlight reports whether a request for threadID is still unresolved.
func (c *Client) InFlight(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[threadID]
}

func (c *Client) release(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, threadID)
}

// contextError classifies err by why ctx ended, if it has, and as kind
// otherwise.
func contextError(ctx context.Context, kind stream.ErrorKind, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return stream.NewError(stream.Canceled, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return stream.NewError(stream.Timeout, err)
	}
	var e *stream.Error
	if errors.As(err, &e) && e.Kind == kind {
		return e
	}
	return stream.NewError(kind, err)
}
