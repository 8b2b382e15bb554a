package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/blixt/nexus/store"
)

// StorageKey is the key the conversation list is kept under.
const StorageKey = "nexus_conversations"

// Store loads and saves the full conversation list.
type Store interface {
	Load() ([]Conversation, error)
	Save([]Conversation) error
}

// KVStore keeps the conversation list as one JSON value in a key/value store.
type KVStore struct {
	kv store.KV
}

func NewKVStore(kv store.KV) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Load() ([]Conversation, error) {
	value, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var conversations []Conversation
	if err := json.Unmarshal([]byte(value), &conversations); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	return conversations, nil
}

func (s *KVStore) Save(conversations []Conversation) error {
	if conversations == nil {
		conversations = []Conversation{}
	}
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	return s.kv.Set(StorageKey, string(data))
}
