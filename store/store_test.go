package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blixt/nexus/store"
)

func testKV(t *testing.T, kv store.KV) {
	t.Helper()

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("a", `{"x":1}`))
	require.NoError(t, kv.Set("b", "two\nlines"))

	value, ok, err := kv.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"x":1}`, value)

	value, _, err = kv.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "two\nlines", value)

	require.NoError(t, kv.Delete("a"))
	require.NoError(t, kv.Delete("a"))
	_, ok, err = kv.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	testKV(t, store.NewMemory())
}

func TestFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	testKV(t, store.NewFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"two\nlines"}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	testKV(t, store.NewFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "b: "), string(data))

	// A second handle sees what the first one wrote.
	value, ok, err := store.NewFile(path).Get("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two\nlines", value)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0600))

	_, _, err := store.NewFile(path).Get("a")
	assert.Error(t, err)
}

func TestFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, ok, err := store.NewFile(path).Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}
