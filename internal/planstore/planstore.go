// Package planstore persists the single ImplementationPlan for a task and
// exposes subtask lifecycle mutators. See SPEC_FULL.md §4.B.
package planstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

// Store persists an ImplementationPlan at <stateDir>/state.json.
type Store struct {
	path string
}

// New returns a Store rooted at stateDir.
func New(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, "state.json")}
}

// Load returns the persisted plan, or nil if none has been saved yet.
func (s *Store) Load() (*types.ImplementationPlan, error) {
	data, err := atomicstore.ReadLocked(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, rasenerr.Store("plan store: read %s: %v", s.path, err)
	}

	var plan types.ImplementationPlan
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return nil, rasenerr.Store("plan store: decode %s: %v", s.path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, rasenerr.Store("plan store: validate %s: %v", s.path, err)
	}

	return &plan, nil
}

// Save validates and persists plan, bumping UpdatedAt.
func (s *Store) Save(plan *types.ImplementationPlan) error {
	if err := plan.Validate(); err != nil {
		return rasenerr.Store("plan store: refusing to save invalid plan: %v", err)
	}
	plan.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return rasenerr.Store("plan store: marshal: %v", err)
	}

	if err := atomicstore.WriteLocked(s.path, data); err != nil {
		return rasenerr.Store("plan store: write %s: %v", s.path, err)
	}
	return nil
}

// HasPlan reports whether a plan has been persisted.
func (s *Store) HasPlan() (bool, error) {
	plan, err := s.Load()
	if err != nil {
		return false, err
	}
	return plan != nil, nil
}

// NextSubtask returns the first in_progress subtask if any (resume
// semantics), otherwise the first pending subtask, otherwise nil — in the
// plan's declared order. See spec Testable Property 4.
func NextSubtask(plan *types.ImplementationPlan) *types.Subtask {
	for i := range plan.Subtasks {
		if plan.Subtasks[i].Status == types.SubtaskInProgress {
			return &plan.Subtasks[i]
		}
	}
	for i := range plan.Subtasks {
		if plan.Subtasks[i].Status == types.SubtaskPending {
			return &plan.Subtasks[i]
		}
	}
	return nil
}

// NextSubtask loads the plan and returns the next subtask to work, per the
// package-level NextSubtask rule.
func (s *Store) NextSubtask() (*types.Subtask, error) {
	plan, err := s.Load()
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}
	return NextSubtask(plan), nil
}

// MarkInProgress transitions subtask id to in_progress.
func (s *Store) MarkInProgress(id string) error {
	return s.updateSubtask(id, func(st *types.Subtask) error {
		st.Status = types.SubtaskInProgress
		return nil
	})
}

// MarkComplete transitions subtask id to completed. A completed subtask
// must never transition back to pending (enforced by callers; this method
// does not itself guard re-entry since marking an already-completed
// subtask complete again is a harmless no-op).
func (s *Store) MarkComplete(id string) error {
	return s.updateSubtask(id, func(st *types.Subtask) error {
		st.Status = types.SubtaskCompleted
		return nil
	})
}

// MarkFailed transitions subtask id to failed.
func (s *Store) MarkFailed(id string) error {
	return s.updateSubtask(id, func(st *types.Subtask) error {
		st.Status = types.SubtaskFailed
		return nil
	})
}

// IncrementAttempts bumps the subtask's attempt counter and records its
// most recent approach string.
func (s *Store) IncrementAttempts(id, approach string) error {
	return s.updateSubtask(id, func(st *types.Subtask) error {
		st.Attempts++
		st.LastApproach = approach
		return nil
	})
}

// CompletionStats returns (completed, total) subtask counts for the
// persisted plan.
func (s *Store) CompletionStats() (completed, total int, err error) {
	plan, err := s.Load()
	if err != nil {
		return 0, 0, err
	}
	if plan == nil {
		return 0, 0, nil
	}
	completed, total = plan.CompletionStats()
	return completed, total, nil
}

// updateSubtask loads the plan, applies mutate to the named subtask, and
// saves. Fails with a "no plan" store error when the plan is absent, per
// spec §4.B ("Mutators fail with no-plan when the plan is absent").
func (s *Store) updateSubtask(id string, mutate func(*types.Subtask) error) error {
	plan, err := s.Load()
	if err != nil {
		return err
	}
	if plan == nil {
		return rasenerr.Store("plan store: no plan to update")
	}

	st := plan.FindSubtask(id)
	if st == nil {
		return rasenerr.Store("plan store: no subtask %q", id)
	}
	if err := mutate(st); err != nil {
		return err
	}

	return s.Save(plan)
}
