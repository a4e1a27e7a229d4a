// Package prefs persists UI state between runs under a single app key.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AppKey is the key the UI state is stored under.
const AppKey = "app"

// AppState is everything the UI restores on start. New fields must tolerate
// being absent from older stored values.
type AppState struct {
	URL string `json:"url"`
}

// KV is the storage the store needs; repository.StateRepo satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Store loads and saves AppState.
type Store struct {
	kv       KV
	defaults AppState
}

func NewStore(kv KV, defaults AppState) *Store {
	return &Store{kv: kv, defaults: defaults}
}

// Defaults returns the state used when nothing was stored.
func (s *Store) Defaults() AppState { return s.defaults }

// Load returns the stored state with defaults filled in for missing or
// blank fields. A missing record yields the defaults.
func (s *Store) Load(ctx context.Context) (AppState, error) {
	state := s.defaults
	raw, ok, err := s.kv.Get(ctx, AppKey)
	if err != nil {
		return state, fmt.Errorf("load app state: %w", err)
	}
	if !ok {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return s.defaults, fmt.Errorf("decode app state: %w", err)
	}
	if strings.TrimSpace(state.URL) == "" {
		state.URL = s.defaults.URL
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state AppState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode app state: %w", err)
	}
	if err := s.kv.Set(ctx, AppKey, string(data)); err != nil {
		return fmt.Errorf("save app state: %w", err)
	}
	return nil
}
