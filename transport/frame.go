// Package transport talks to the remote model endpoints: a WebSocket that
// streams tokens, and a plain HTTP endpoint that returns a whole answer.
package transport

import (
	"github.com/tidwall/gjson"

	"github.com/blixt/nexus/stream"
)

// Frame is one message received on the streaming endpoint.
type Frame struct {
	// Token is the text fragment carried by the frame. Frames without a
	// (non-empty) token carry nothing the client understands.
	Token string
	Raw   []byte
}

func (f Frame) HasToken() bool {
	return f.Token != ""
}

// DecodeFrame parses a `{"token": "..."}` frame.
func DecodeFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{Raw: data}, stream.Errorf(stream.MalformedPayload, "invalid frame %q", preview(data))
	}
	f := Frame{Raw: data}
	if token := gjson.GetBytes(data, "token"); token.Type == gjson.String {
		f.Token = token.String()
	}
	return f, nil
}

// Request is a prompt for a conversation thread on one model.
type Request struct {
	ThreadID string `json:"thread_id"`
	Model    string `json:"-"`
	Prompt   string `json:"prompt"`
}

func preview(data []byte) string {
	const max = 80
	if len(data) > max {
		return string(data[:max]) + "…"
	}
	return string(data)
}
