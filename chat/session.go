package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blixt/nexus/conversation"
	"github.com/blixt/nexus/stream"
	"github.com/blixt/nexus/think"
)

var ErrEmptyPrompt = errors.New("prompt is empty")

// Session ties a Client to the conversation history: prompts go into the
// active conversation and answers are written back into it as they stream.
type Session struct {
	client *Client
	book   *conversation.Book
	log    zerolog.Logger
	now    func() time.Time
}

func NewSession(client *Client, book *conversation.Book) *Session {
	return &Session{
		client: client,
		book:   book,
		log:    client.log,
		now:    time.Now,
	}
}

func (s *Session) Book() *conversation.Book {
	return s.book
}

// Ask sends prompt in the active conversation, starting a new one if none is
// active. An assistant placeholder is appended right away and replaced with
// every update, ending with the final answer (or failure message). observe,
// if not nil, also receives every update.
func (s *Session) Ask(ctx context.Context, prompt string, model Model, observe stream.Observer) (conversation.Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return conversation.Message{}, ErrEmptyPrompt
	}

	// The thread is held from before the prompt is recorded until the reply
	// is, so a concurrent Ask can't interleave its messages.
	c, ok := s.book.Active()
	if ok {
		if !s.client.acquire(c.ID) {
			return conversation.Message{}, ErrBusy
		}
	} else {
		var err error
		if c, err = s.book.Start(prompt, string(model)); err != nil {
			return conversation.Message{}, fmt.Errorf("failed to start conversation: %w", err)
		}
		if !s.client.acquire(c.ID) {
			return conversation.Message{}, ErrBusy
		}
	}
	defer s.client.release(c.ID)

	now := s.now()
	if err := s.book.Append(c.ID, conversation.Message{Role: conversation.RoleUser, Content: prompt, Timestamp: now}); err != nil {
		return conversation.Message{}, fmt.Errorf("failed to save prompt: %w", err)
	}
	placeholder := conversation.Message{Role: conversation.RoleAI, Model: string(model), Timestamp: now, Streaming: true}
	if err := s.book.Append(c.ID, placeholder); err != nil {
		return conversation.Message{}, err
	}

	state, err := s.client.send(ctx, Request{ThreadID: c.ID, Model: model, Prompt: prompt}, func(st stream.State) {
		if !st.Done() {
			// The conversation may have been deleted mid-stream; then there's
			// nothing left to update.
			s.book.ReplaceLast(c.ID, Reply(st, model, now))
		}
		if observe != nil {
			observe(st)
		}
	})

	reply := Reply(state, model, now)
	if saveErr := s.book.ReplaceLast(c.ID, reply); saveErr != nil && !errors.Is(saveErr, conversation.ErrNotFound) {
		s.log.Error().Err(saveErr).Str("thread", c.ID).Msg("failed to save reply")
		if err == nil {
			err = saveErr
		}
	}
	return reply, err
}

// Reply converts a response state into the assistant message shown for it.
// For models that reason inline, a completed answer without a thinking block
// is checked for an inline reasoning passage.
func Reply(s stream.State, model Model, at time.Time) conversation.Message {
	msg := conversation.Message{
		Role:      conversation.RoleAI,
		Content:   s.Visible,
		Model:     string(model),
		Timestamp: at,
		Thinking:  s.Thinking,
		Streaming: !s.Done(),
	}
	if s.Failed {
		msg.Thinking = ""
	}
	if s.Complete && msg.Thinking == "" && model.Heuristic() {
		if reasoning, ok := think.DetectReasoning(s.Visible); ok {
			msg.Thinking = reasoning
		}
	}
	return msg
}
