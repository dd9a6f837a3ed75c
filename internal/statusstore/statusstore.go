// Package statusstore maintains the single live status record external
// monitors poll. See SPEC_FULL.md §4.E.
package statusstore

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

// Store rewrites a single JSON status record on every update. Unlike the
// other stores, updates are not lock-guarded: status is a best-effort,
// frequently-overwritten monitoring artifact, not a source of truth the
// loop reads back to make decisions.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Update overwrites the status record.
func (s *Store) Update(status *types.StatusInfo) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return rasenerr.Store("status store: marshal: %v", err)
	}
	if err := atomicstore.Write(s.path, data); err != nil {
		return rasenerr.Store("status store: write %s: %v", s.path, err)
	}
	return nil
}

// Load returns the current status, or nil if none has been written yet.
func (s *Store) Load() (*types.StatusInfo, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, rasenerr.Store("status store: read %s: %v", s.path, err)
	}
	var status types.StatusInfo
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, rasenerr.Store("status store: decode %s: %v", s.path, err)
	}
	return &status, nil
}

// MarkCompleted loads the current status and, if present, marks it
// completed. A no-op when no status has been recorded.
func (s *Store) MarkCompleted() error {
	status, err := s.Load()
	if err != nil {
		return err
	}
	if status == nil {
		return nil
	}
	status.Status = "completed"
	status.LastActivity = time.Now().UTC()
	return s.Update(status)
}

// SetPhase loads the current status and overwrites its CurrentPhase,
// creating a fresh record if none exists yet (the review/QA sub-loops and
// the Main Loop may run before any status has been written).
func (s *Store) SetPhase(phase string) error {
	status, err := s.Load()
	if err != nil {
		return err
	}
	if status == nil {
		status = &types.StatusInfo{}
	}
	status.CurrentPhase = phase
	status.LastActivity = time.Now().UTC()
	return s.Update(status)
}

// MarkFailed loads the current status and, if present, marks it failed
// with reason. A no-op when no status has been recorded.
func (s *Store) MarkFailed(reason string) error {
	status, err := s.Load()
	if err != nil {
		return err
	}
	if status == nil {
		return nil
	}
	status.Status = "failed: " + reason
	status.LastActivity = time.Now().UTC()
	return s.Update(status)
}
