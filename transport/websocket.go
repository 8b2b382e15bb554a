package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/blixt/nexus/stream"
)

// Streamer opens streaming connections for a thread and model.
type Streamer interface {
	Open(ctx context.Context, threadID, model string) (Stream, error)
}

// Stream is one open streaming connection. Next returns io.EOF once the
// server has closed the connection normally.
type Stream interface {
	Send(prompt string) error
	Next() (Frame, error)
	Close() error
}

type WebSocket struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
	log     zerolog.Logger
}

type WebSocketOption func(*WebSocket)

func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(w *WebSocket) { w.dialer = d }
}

func WithHeader(h http.Header) WebSocketOption {
	return func(w *WebSocket) { w.header = h }
}

func WithWebSocketLogger(l zerolog.Logger) WebSocketOption {
	return func(w *WebSocket) { w.log = l }
}

// NewWebSocket returns a Streamer for a server at baseURL, e.g.
// "ws://127.0.0.1:8000". http(s) URLs are converted to ws(s).
func NewWebSocket(baseURL string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		baseURL: WebSocketURL(baseURL),
		// The handshake is bounded by the context passed to Open.
		dialer: &websocket.Dialer{
			Proxy: http.ProxyFromEnvironment,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open dials the streaming endpoint for threadID and model. Any failure to
// complete the handshake is a ConnectionFailure.
func (w *WebSocket) Open(ctx context.Context, threadID, model string) (Stream, error) {
	u := fmt.Sprintf("%s/ws/%s/%s", w.baseURL, url.PathEscape(threadID), url.PathEscape(model))
	w.log.Debug().Str("url", u).Msg("dialing stream")
	conn, resp, err := w.dialer.DialContext(ctx, u, w.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, stream.NewError(stream.ConnectionFailure, fmt.Errorf("dialing %s: %w", u, err))
	}
	return &wsStream{conn: conn, log: w.log}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	closeOnce sync.Once
	closeErr  error
}

func (s *wsStream) Send(prompt string) error {
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(prompt)); err != nil {
		return stream.NewError(stream.ConnectionLost, fmt.Errorf("sending prompt: %w", err))
	}
	return nil
}

func (s *wsStream) Next() (Frame, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return Frame{}, io.EOF
		}
		return Frame{}, stream.NewError(stream.ConnectionLost, err)
	}
	return DecodeFrame(data)
}

// Close sends a close frame (best effort) and closes the connection. It is
// safe to call from another goroutine while Next is blocked.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.log.Debug().Err(err).Msg("failed to send close frame")
		}
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// WebSocketURL converts an http(s) base URL to its ws(s) equivalent and strips
// any trailing slash.
func WebSocketURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base
}
