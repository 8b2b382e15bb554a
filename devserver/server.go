// Package devserver is a local stand-in for the remote model endpoints. It
// speaks the same wire format (a token-streaming WebSocket and a JSON
// request/response endpoint) but answers with whatever its Responder says.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Responder produces the tokens of an answer to prompt.
type Responder interface {
	Respond(ctx context.Context, threadID, model, prompt string) []string
}

type ResponderFunc func(ctx context.Context, threadID, model, prompt string) []string

func (f ResponderFunc) Respond(ctx context.Context, threadID, model, prompt string) []string {
	return f(ctx, threadID, model, prompt)
}

// Tokens always answers with the same tokens.
func Tokens(tokens ...string) Responder {
	return ResponderFunc(func(context.Context, string, string, string) []string {
		return tokens
	})
}

type Server struct {
	responder Responder
	opts      options
	log       zerolog.Logger

	server   *http.Server
	listener net.Listener

	streams   atomic.Int64
	fallbacks atomic.Int64
}

// Stats counts the requests each endpoint has received.
type Stats struct {
	Streams   int
	Fallbacks int
}

func New(responder Responder, opts ...Option) *Server {
	s := &Server{
		responder: responder,
		opts:      options{dropAfter: -1},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	if s.opts.log != nil {
		s.log = *s.opts.log
	}
	return s
}

// Handler returns the HTTP handler serving both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if !s.opts.noStreaming {
		mux.HandleFunc("GET /ws/{thread}/{model}", s.handleStream)
	}
	mux.HandleFunc("POST /ChatResponse/{model}", s.handleComplete)
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("dev server stopped")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("dev server listening")
	return nil
}

// Addr returns the address the server is listening on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

func (s *Server) Stats() Stats {
	return Stats{
		Streams:   int(s.streams.Load()),
		Fallbacks: int(s.fallbacks.Load()),
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.streams.Add(1)
	threadID, model := r.PathValue("thread"), r.PathValue("model")
	log := s.log.With().Str("thread", threadID).Str("model", model).Logger()

	if d := s.opts.upgradeDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	_, prompt, err := conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Msg("client left before sending a prompt")
		return
	}

	for _, frame := range s.opts.rawFrames {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	tokens := s.responder.Respond(r.Context(), threadID, model, string(prompt))
	for i, token := range tokens {
		if i == s.opts.dropAfter {
			// Vanish without a close frame.
			conn.NetConn().Close()
			return
		}
		if d := s.opts.tokenDelay; d > 0 {
			time.Sleep(d)
		}
		data, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Int("sent", i).Msg("client went away")
			return
		}
	}
	if s.opts.dropAfter >= len(tokens) {
		conn.NetConn().Close()
		return
	}

	if s.opts.holdOpen {
		// Leave it to the client to decide when the answer is over.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		log.Debug().Err(err).Msg("failed to send close frame")
	}
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.fallbacks.Add(1)
	if code := s.opts.fallbackStatus; code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	var req struct {
		Prompt   string `json:"prompt"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if s.opts.fallbackBody != nil {
		w.Write([]byte(*s.opts.fallbackBody))
		return
	}
	tokens := s.responder.Respond(r.Context(), req.ThreadID, r.PathValue("model"), req.Prompt)
	json.NewEncoder(w).Encode(map[string]string{"response": strings.Join(tokens, "")})
}
