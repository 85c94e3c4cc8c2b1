package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State время последнего запуска каждой записи, хранится в JSON-файле.
type State struct {
	path string

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// LoadState читает файл состояния. Отсутствующий файл даёт пустое состояние.
func LoadState(path string) (*State, error) {
	const op = "scheduler.LoadState"
	s := &State{path: path, lastRun: make(map[string]time.Time)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("%s: %w", op, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.lastRun); err != nil {
		s.lastRun = make(map[string]time.Time)
		return s, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// LastRun время последнего запуска записи name.
func (s *State) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[name]
	return t, ok
}

// Record отмечает запуск и сохраняет файл.
func (s *State) Record(name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[name] = at.UTC()
	return s.saveLocked()
}

// Snapshot копия состояния.
func (s *State) Snapshot() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.lastRun))
	for k, v := range s.lastRun {
		out[k] = v
	}
	return out
}

func (s *State) saveLocked() error {
	const op = "scheduler.State.save"
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.lastRun, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
