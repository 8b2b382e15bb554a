package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotFound = errors.New("conversation not found")

// Book is the list of conversations, newest first, plus which one is active.
// Every change is saved through the Store, except in-progress updates to a
// streaming message. A change whose save fails is undone, so memory never
// runs ahead of what was stored.
type Book struct {
	mu            sync.Mutex
	store         Store
	conversations []Conversation
	activeID      string
	now           func() time.Time
}

// Open loads the conversations from store.
func Open(store Store) (*Book, error) {
	conversations, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Book{store: store, conversations: conversations, now: time.Now}, nil
}

// All returns a copy of every conversation, newest first.
func (b *Book) All() []Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Conversation, len(b.conversations))
	for i, c := range b.conversations {
		out[i] = clone(c)
	}
	return out
}

func (b *Book) Get(id string) (Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return Conversation{}, false
	}
	return clone(b.conversations[i]), true
}

// Active returns the selected conversation, if any.
func (b *Book) Active() (Conversation, bool) {
	b.mu.Lock()
	id := b.activeID
	b.mu.Unlock()
	if id == "" {
		return Conversation{}, false
	}
	return b.Get(id)
}

func (b *Book) Select(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.activeID = id
	return nil
}

// Clear deselects the active conversation so the next prompt starts a new one.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeID = ""
}

// Start creates a conversation titled after prompt, makes it active and
// returns it.
func (b *Book) Start(prompt, model string) (Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	c := Conversation{
		ID:           NewID(now),
		Title:        Title(prompt),
		Messages:     []Message{},
		CreatedAt:    now,
		LastActivity: now,
		Model:        model,
	}
	prev, prevActive := b.snapshot(), b.activeID
	b.conversations = append([]Conversation{c}, b.conversations...)
	b.activeID = c.ID
	if err := b.commit(prev, prevActive); err != nil {
		return Conversation{}, err
	}
	return clone(c), nil
}

// Delete removes a conversation. Deleting the active one clears the selection.
func (b *Book) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev, prevActive := b.snapshot(), b.activeID
	b.conversations = append(b.conversations[:i], b.conversations[i+1:]...)
	if b.activeID == id {
		b.activeID = ""
	}
	return b.commit(prev, prevActive)
}

// DeleteAll removes every conversation.
func (b *Book) DeleteAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, prevActive := b.snapshot(), b.activeID
	b.conversations = nil
	b.activeID = ""
	return b.commit(prev, prevActive)
}

// Append adds msg to the end of a conversation.
func (b *Book) Append(id string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var prev []Conversation
	if !msg.Streaming {
		prev = b.snapshot()
	}
	c := &b.conversations[i]
	c.Messages = append(c.Messages, msg)
	c.LastActivity = b.now()
	if msg.Streaming {
		return nil
	}
	return b.commit(prev, b.activeID)
}

// ReplaceLast overwrites the last message of a conversation, which is how a
// streaming placeholder gets filled in.
func (b *Book) ReplaceLast(id string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var prev []Conversation
	if !msg.Streaming {
		prev = b.snapshot()
	}
	c := &b.conversations[i]
	if len(c.Messages) == 0 {
		c.Messages = append(c.Messages, msg)
	} else {
		c.Messages[len(c.Messages)-1] = msg
	}
	if msg.Streaming {
		return nil
	}
	return b.commit(prev, b.activeID)
}

func (b *Book) index(id string) int {
	for i := range b.conversations {
		if b.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot copies the conversations deeply enough to survive in-place edits.
func (b *Book) snapshot() []Conversation {
	if b.conversations == nil {
		return nil
	}
	out := make([]Conversation, len(b.conversations))
	for i, c := range b.conversations {
		out[i] = clone(c)
	}
	return out
}

// commit saves the current state, restoring prev and prevActive on failure.
func (b *Book) commit(prev []Conversation, prevActive string) error {
	if err := b.store.Save(b.conversations); err != nil {
		b.conversations, b.activeID = prev, prevActive
		return err
	}
	return nil
}

func clone(c Conversation) Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	return c
}
