package counting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// UserStats tracks one participant inside a counting channel.
type UserStats struct {
	Counts        int   `json:"counts"`
	Fails         int   `json:"fails"`
	WrongAttempts int   `json:"wrong_attempts"`
	LastSeen      int64 `json:"last_seen"`
}

// ChannelState is the full persisted state of one counting channel.
type ChannelState struct {
	CurrentCount       int                   `json:"current_count"`
	LastUser           string                `json:"last_user,omitempty"`
	TotalCounts        int                   `json:"total_counts"`
	HighestCount       int                   `json:"highest_count"`
	Resets             int                   `json:"resets"`
	LastCountMessageID string                `json:"last_count_message_id,omitempty"`
	LastCountValue     int                   `json:"last_count_value"`
	Users              map[string]*UserStats `json:"users"`
}

// Store owns the channel-state map and its JSON file. All mutation goes
// through Mutate so the read-modify-write of one transition is never
// interleaved with another.
type Store struct {
	path string

	mu     sync.Mutex
	states map[string]*ChannelState
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		states: make(map[string]*ChannelState),
	}
}

// Load reads the state file, repairing missing keys against defaults so
// older records keep working.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read counting state: %w", err)
	}

	states := make(map[string]*ChannelState)
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("parse counting state: %w", err)
	}

	for _, st := range states {
		repairState(st)
	}
	s.states = states
	return nil
}

func repairState(st *ChannelState) {
	if st.Users == nil {
		st.Users = make(map[string]*UserStats)
	}
	for id, u := range st.Users {
		if u == nil {
			st.Users[id] = &UserStats{}
		}
	}
	if st.CurrentCount < 0 {
		st.CurrentCount = 0
	}
	if st.HighestCount < st.CurrentCount {
		st.HighestCount = st.CurrentCount
	}
	if st.CurrentCount == 0 {
		st.LastUser = ""
	}
}

// Mutate runs fn with exclusive access to the channel's state (created lazily)
// and persists the whole map afterwards. Persistence errors are logged by the
// caller's logger contract: they are returned but the in-memory mutation
// stands either way.
func (s *Store) Mutate(channelID string, fn func(st *ChannelState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[channelID]
	if !ok {
		st = &ChannelState{Users: make(map[string]*UserStats)}
		s.states[channelID] = st
	}
	fn(st)
	return s.persistLocked()
}

// Snapshot returns a deep copy of one channel's state, or nil if absent.
func (s *Store) Snapshot(channelID string) *ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[channelID]
	if !ok {
		return nil
	}
	cp := *st
	cp.Users = make(map[string]*UserStats, len(st.Users))
	for id, u := range st.Users {
		uc := *u
		cp.Users[id] = &uc
	}
	return &cp
}

// Channels lists the tracked channel IDs.
func (s *Store) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	return ids
}

// persistLocked writes the whole map atomically (temp file + rename).
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal counting state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write counting state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace counting state: %w", err)
	}
	return nil
}
