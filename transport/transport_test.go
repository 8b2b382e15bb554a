package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blixt/nexus/devserver"
	"github.com/blixt/nexus/stream"
	"github.com/blixt/nexus/transport"
)

func newServer(t *testing.T, responder devserver.Responder, opts ...devserver.Option) (*httptest.Server, *devserver.Server) {
	t.Helper()
	dev := devserver.New(responder, opts...)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)
	return ts, dev
}

func readAll(t *testing.T, s transport.Stream) ([]string, error) {
	t.Helper()
	var tokens []string
	for {
		f, err := s.Next()
		if err != nil {
			return tokens, err
		}
		if f.HasToken() {
			tokens = append(tokens, f.Token)
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	f, err := transport.DecodeFrame([]byte(`{"token":"hi"}`))
	require.NoError(t, err)
	assert.True(t, f.HasToken())
	assert.Equal(t, "hi", f.Token)

	f, err = transport.DecodeFrame([]byte(`{"status":"thinking"}`))
	require.NoError(t, err)
	assert.False(t, f.HasToken())

	f, err = transport.DecodeFrame([]byte(`{"token":42}`))
	require.NoError(t, err)
	assert.False(t, f.HasToken())

	_, err = transport.DecodeFrame([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, stream.MalformedPayload, stream.KindOf(err))
}

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8000", transport.WebSocketURL("http://127.0.0.1:8000/"))
	assert.Equal(t, "wss://example.com", transport.WebSocketURL("https://example.com"))
	assert.Equal(t, "ws://host", transport.WebSocketURL("ws://host"))
}

func TestWebSocketStreamsTokens(t *testing.T) {
	var gotThread, gotModel, gotPrompt string
	responder := devserver.ResponderFunc(func(_ context.Context, threadID, model, prompt string) []string {
		gotThread, gotModel, gotPrompt = threadID, model, prompt
		return []string{"Hello", " world"}
	})
	ts, _ := newServer(t, responder)

	ws := transport.NewWebSocket(ts.URL)
	s, err := ws.Open(context.Background(), "conv_1", "DeepSeek")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send("hi there"))
	tokens, err := readAll(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"Hello", " world"}, tokens)
	assert.Equal(t, "conv_1", gotThread)
	assert.Equal(t, "DeepSeek", gotModel)
	assert.Equal(t, "hi there", gotPrompt)
}

func TestWebSocketOpenFailure(t *testing.T) {
	ts, _ := newServer(t, devserver.Echo, devserver.WithoutStreaming())

	_, err := transport.NewWebSocket(ts.URL).Open(context.Background(), "t", "Gemini")
	require.Error(t, err)
	assert.Equal(t, stream.ConnectionFailure, stream.KindOf(err))
}

func TestWebSocketOpenRespectsContext(t *testing.T) {
	ts, _ := newServer(t, devserver.Echo, devserver.WithUpgradeDelay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := transport.NewWebSocket(ts.URL).Open(ctx, "t", "Gemini")
	require.Error(t, err)
	assert.Equal(t, stream.ConnectionFailure, stream.KindOf(err))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestWebSocketDroppedConnection(t *testing.T) {
	ts, _ := newServer(t, devserver.Tokens("a", "b", "c"), devserver.WithDropAfter(1))

	s, err := transport.NewWebSocket(ts.URL).Open(context.Background(), "t", "Gemini")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Send("go"))

	tokens, err := readAll(t, s)
	assert.Equal(t, []string{"a"}, tokens)
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
	assert.Equal(t, stream.ConnectionLost, stream.KindOf(err))
}

func TestWebSocketCloseUnblocksNext(t *testing.T) {
	ts, _ := newServer(t, devserver.Tokens("a"), devserver.WithHoldOpen())

	s, err := transport.NewWebSocket(ts.URL).Open(context.Background(), "t", "Gemini")
	require.NoError(t, err)
	require.NoError(t, s.Send("go"))

	f, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", f.Token)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()
	s.Close()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	// Closing twice is fine.
	s.Close()
}

func TestHTTPComplete(t *testing.T) {
	ts, dev := newServer(t, devserver.Tokens("<think>x</think>", "answer"))

	answer, err := transport.NewHTTP(ts.URL).Complete(context.Background(), transport.Request{
		ThreadID: "conv_1",
		Model:    "Gemini",
		Prompt:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "<think>x</think>answer", answer)
	assert.Equal(t, 1, dev.Stats().Fallbacks)
}

func TestHTTPCompleteErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []devserver.Option
		want stream.ErrorKind
	}{
		{"server error", []devserver.Option{devserver.WithFallbackStatus(http.StatusInternalServerError)}, stream.ServerError},
		{"invalid json", []devserver.Option{devserver.WithFallbackBody(`<html>`)}, stream.MalformedPayload},
		{"missing field", []devserver.Option{devserver.WithFallbackBody(`{"answer":"hi"}`)}, stream.MalformedPayload},
		{"blank answer", []devserver.Option{devserver.WithFallbackBody(`{"response":"  "}`)}, stream.EmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newServer(t, devserver.Echo, tt.opts...)
			_, err := transport.NewHTTP(ts.URL).Complete(context.Background(), transport.Request{Model: "Gemini", Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, stream.KindOf(err))
		})
	}
}

func TestHTTPCompleteUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := transport.NewHTTP(url).Complete(context.Background(), transport.Request{Model: "Gemini", Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, stream.ConnectionFailure, stream.KindOf(err))
}
