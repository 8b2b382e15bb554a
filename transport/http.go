package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/blixt/nexus/stream"
)

// maxResponseSize bounds how much of a fallback response body is read.
const maxResponseSize = 4 << 20

// Requester sends a prompt and waits for the complete answer.
type Requester interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type HTTP struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

type HTTPOption func(*HTTP)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(h *HTTP) { h.log = l }
}

func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Complete posts the prompt to the request/response endpoint and returns the
// `response` field of the reply. Errors are always *stream.Error.
func (h *HTTP) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", stream.NewError(stream.MalformedPayload, fmt.Errorf("error encoding JSON: %w", err))
	}

	u := fmt.Sprintf("%s/ChatResponse/%s", h.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", stream.NewError(stream.ConnectionFailure, fmt.Errorf("error creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	h.log.Debug().Str("url", u).Str("thread", req.ThreadID).Msg("sending fallback request")
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", contextError(ctx, stream.ConnectionFailure, fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", contextError(ctx, stream.ConnectionLost, fmt.Errorf("error reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", stream.Errorf(stream.ServerError, "HTTP error! status: %s", resp.Status)
	}
	if !gjson.ValidBytes(data) {
		return "", stream.Errorf(stream.MalformedPayload, "invalid response body %q", preview(data))
	}
	answer := gjson.GetBytes(data, "response")
	if answer.Type != gjson.String {
		return "", stream.Errorf(stream.MalformedPayload, "response body has no response text: %q", preview(data))
	}
	if strings.TrimSpace(answer.String()) == "" {
		return "", stream.Errorf(stream.EmptyResponse, "received empty response from server")
	}
	return answer.String(), nil
}

// contextError classifies err as a timeout or cancellation if ctx ended,
// otherwise as kind.
func contextError(ctx context.Context, kind stream.ErrorKind, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return stream.NewError(stream.Timeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return stream.NewError(stream.Canceled, err)
	}
	return stream.NewError(kind, err)
}
