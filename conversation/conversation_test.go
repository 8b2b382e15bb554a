package conversation

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blixt/nexus/store"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type failingStore struct{}

func (failingStore) Load() ([]Conversation, error) { return nil, nil }
func (failingStore) Save([]Conversation) error     { return errors.New("disk full") }

func openBook(t *testing.T, s Store) *Book {
	t.Helper()
	b, err := Open(s)
	require.NoError(t, err)
	b.now = func() time.Time { return testNow }
	return b
}

func TestNewID(t *testing.T) {
	id := NewID(testNow)
	assert.Regexp(t, regexp.MustCompile(`^conv_1749556800000_[0-9a-f]{9}$`), id)
	assert.NotEqual(t, id, NewID(testNow))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Short question", Title("  Short question "))
	long := strings.Repeat("a", 49) + " and then some more words"
	assert.Equal(t, strings.Repeat("a", 49)+"...", Title(long))
	assert.Equal(t, strings.Repeat("é", 50), Title(strings.Repeat("é", 50)))
	assert.Equal(t, strings.Repeat("é", 50)+"...", Title(strings.Repeat("é", 51)))
}

func TestRelativeDate(t *testing.T) {
	assert.Equal(t, "Today", RelativeDate(testNow.Add(-time.Hour), testNow))
	assert.Equal(t, "Today", RelativeDate(testNow, testNow))
	assert.Equal(t, "Yesterday", RelativeDate(testNow.Add(-30*time.Hour), testNow))
	assert.Equal(t, "3 days ago", RelativeDate(testNow.Add(-3*24*time.Hour-time.Hour), testNow))
	assert.Equal(t, "6 days ago", RelativeDate(testNow.Add(-6*24*time.Hour-time.Hour), testNow))
	old := testNow.Add(-30 * 24 * time.Hour)
	assert.Equal(t, old.Local().Format("2006-01-02"), RelativeDate(old, testNow))
}

func TestBookLifecycle(t *testing.T) {
	s := NewKVStore(store.NewMemory())
	b := openBook(t, s)

	_, ok := b.Active()
	assert.False(t, ok)

	first, err := b.Start("first question", "Gemini")
	require.NoError(t, err)
	second, err := b.Start("second question", "DeepSeek")
	require.NoError(t, err)

	active, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)

	require.NoError(t, b.Select(first.ID))
	active, _ = b.Active()
	assert.Equal(t, "first question", active.Title)

	assert.ErrorIs(t, b.Select("conv_missing"), ErrNotFound)

	b.Clear()
	_, ok = b.Active()
	assert.False(t, ok)

	require.NoError(t, b.Select(second.ID))
	require.NoError(t, b.Delete(second.ID))
	_, ok = b.Active()
	assert.False(t, ok, "deleting the active conversation clears the selection")
	assert.Len(t, b.All(), 1)
	assert.ErrorIs(t, b.Delete(second.ID), ErrNotFound)

	require.NoError(t, b.DeleteAll())
	assert.Empty(t, b.All())
	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestBookStreamingUpdatesAreNotPersisted(t *testing.T) {
	s := NewKVStore(store.NewMemory())
	b := openBook(t, s)

	c, err := b.Start("hi", "Gemini")
	require.NoError(t, err)
	require.NoError(t, b.Append(c.ID, Message{Role: RoleUser, Content: "hi", Timestamp: testNow}))
	require.NoError(t, b.Append(c.ID, Message{Role: RoleAI, Model: "Gemini", Streaming: true}))
	require.NoError(t, b.ReplaceLast(c.ID, Message{Role: RoleAI, Content: "Hel", Streaming: true}))

	saved, err := s.Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Len(t, saved[0].Messages, 1, "only the user message has been saved")

	inMemory, _ := b.Get(c.ID)
	last, ok := inMemory.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "Hel", last.Content)

	require.NoError(t, b.ReplaceLast(c.ID, Message{Role: RoleAI, Content: "Hello", Thinking: "hmm"}))
	saved, err = s.Load()
	require.NoError(t, err)
	require.Len(t, saved[0].Messages, 2)
	assert.Equal(t, "Hello", saved[0].Messages[1].Content)
	assert.Equal(t, "hmm", saved[0].Messages[1].Thinking)

	assert.ErrorIs(t, b.ReplaceLast("conv_gone", Message{}), ErrNotFound)
}

func TestBookReloads(t *testing.T) {
	kv := store.NewMemory()
	b := openBook(t, NewKVStore(kv))
	c, err := b.Start("persist me", "DeepSeek")
	require.NoError(t, err)
	require.NoError(t, b.Append(c.ID, Message{Role: RoleUser, Content: "persist me", Timestamp: testNow}))

	reopened := openBook(t, NewKVStore(kv))
	got, ok := reopened.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, "persist me", got.Title)
	assert.Equal(t, "DeepSeek", got.Model)
	require.Len(t, got.Messages, 1)
	assert.True(t, testNow.Equal(got.Messages[0].Timestamp))
	assert.True(t, testNow.Equal(got.LastActivity))
}

func TestBookReturnsCopies(t *testing.T) {
	b := openBook(t, NewKVStore(store.NewMemory()))
	c, err := b.Start("x", "Gemini")
	require.NoError(t, err)
	require.NoError(t, b.Append(c.ID, Message{Role: RoleUser, Content: "x"}))

	got, _ := b.Get(c.ID)
	got.Messages[0].Content = "changed"
	again, _ := b.Get(c.ID)
	assert.Equal(t, "x", again.Messages[0].Content)
}

func TestBookSaveErrors(t *testing.T) {
	b := openBook(t, failingStore{})
	_, err := b.Start("x", "Gemini")
	assert.EqualError(t, err, "disk full")
}

type switchableStore struct {
	Store
	fail bool
}

func (s *switchableStore) Save(conversations []Conversation) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.Save(conversations)
}

func TestBookUndoesChangesThatFailToSave(t *testing.T) {
	s := &switchableStore{Store: NewKVStore(store.NewMemory())}
	b := openBook(t, s)
	c, err := b.Start("keep me", "Gemini")
	require.NoError(t, err)
	require.NoError(t, b.Append(c.ID, Message{Role: RoleUser, Content: "hi"}))

	s.fail = true
	_, err = b.Start("lost", "Gemini")
	assert.Error(t, err)
	assert.Error(t, b.Append(c.ID, Message{Role: RoleAI, Content: "lost"}))
	assert.Error(t, b.ReplaceLast(c.ID, Message{Role: RoleUser, Content: "lost"}))
	assert.Error(t, b.Delete(c.ID))
	assert.Error(t, b.DeleteAll())

	active, ok := b.Active()
	require.True(t, ok)
	assert.Equal(t, c.ID, active.ID)
	require.Len(t, b.All(), 1)
	require.Len(t, active.Messages, 1)
	assert.Equal(t, "hi", active.Messages[0].Content)

	saved, err := s.Store.Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, c.ID, saved[0].ID)
	require.Len(t, saved[0].Messages, 1)
	assert.Equal(t, "hi", saved[0].Messages[0].Content)

	// Streaming updates are never saved, so they can't fail.
	assert.NoError(t, b.Append(c.ID, Message{Role: RoleAI, Streaming: true}))
}

func TestKVStoreUsesStorageKey(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, NewKVStore(kv).Save(nil))
	value, ok, err := kv.Get(StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", value)

	require.NoError(t, kv.Set(StorageKey, "not json"))
	_, err = NewKVStore(kv).Load()
	assert.Error(t, err)
}
