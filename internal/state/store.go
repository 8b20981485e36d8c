package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"poolwarden/internal/model"
)

// Store owns the single durable state document. The heartbeat loads it at
// cycle start and persists it at cycle end; the health endpoint reads it
// concurrently, hence the mutex.
//
// Unknown top-level keys found in the file are preserved across save cycles
// so that older and newer builds can share a state file.
type Store struct {
	mu    sync.Mutex
	path  string
	doc   *model.AgentState
	extra map[string]json.RawMessage
}

// Open reads the state document, defaulting missing keys to zero values.
// A missing file yields a fresh state.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: &model.AgentState{}, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	if err := json.Unmarshal(data, s.doc); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}

	// Keep keys this build does not know about.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		known := knownKeys()
		for k, v := range raw {
			if !known[k] {
				s.extra[k] = v
			}
		}
	}
	return s, nil
}

func knownKeys() map[string]bool {
	data, _ := json.Marshal(&model.AgentState{
		Pools:          []*model.Pool{},
		Counters:       map[string]*model.DayCounters{},
		ContentHashes:  []string{},
		Platforms:      map[string]*model.PlatformFlags{},
		LastPostAt:     map[string]int64{},
		SuspendedUntil: map[string]int64{},
		LastHeartbeat:  1,
	})
	var m map[string]json.RawMessage
	_ = json.Unmarshal(data, &m)
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}

// State returns the live document. Callers run under the heartbeat's
// single-threaded cycle; concurrent readers must use View.
func (s *Store) State() *model.AgentState {
	return s.doc
}

// View runs fn with the store locked, for readers outside the heartbeat.
func (s *Store) View(fn func(st *model.AgentState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Save writes the document atomically: marshal pretty-printed, write to a
// temp file in the same directory, rename over the target.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.UpdatedAt = time.Now()

	merged, err := s.mergeExtra()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// mergeExtra folds preserved unknown keys back into the serialized document.
func (s *Store) mergeExtra() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("remarshal state: %w", err)
	}
	for k, v := range s.extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return merged, nil
}
