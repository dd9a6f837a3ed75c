// Package recoverystore tracks per-subtask attempt history and known-good
// commits so failed sessions can inject recovery context into the next
// attempt. See SPEC_FULL.md §4.C.
package recoverystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

type attemptHistory struct {
	Records []types.AttemptRecord `json:"records"`
}

type goodCommits struct {
	Commits []types.KnownGoodCommit `json:"commits"`
}

// Store persists attempt history and known-good commits under a state
// directory, each in its own file with its own lock.
type Store struct {
	historyPath string
	commitsPath string
}

func New(stateDir string) *Store {
	return &Store{
		historyPath: filepath.Join(stateDir, "attempt_history.json"),
		commitsPath: filepath.Join(stateDir, "good_commits.json"),
	}
}

// RecordAttempt appends one attempt record. errorMessage should be the last
// 500 bytes of session output on failure, and is ignored (left empty) for a
// successful attempt.
func (s *Store) RecordAttempt(subtaskID string, session int, success bool, approach, commitHash, errorMessage string) error {
	history, err := s.loadHistory()
	if err != nil {
		return err
	}
	record := types.AttemptRecord{
		SubtaskID:  subtaskID,
		Session:    session,
		Success:    success,
		Approach:   approach,
		CommitHash: commitHash,
		Timestamp:  time.Now().UTC(),
	}
	if !success {
		record.ErrorMessage = errorMessage
	}
	history.Records = append(history.Records, record)
	return s.saveHistory(history)
}

// FailedApproaches returns the approach strings of every failed attempt at
// subtaskID, in recorded order.
func (s *Store) FailedApproaches(subtaskID string) ([]string, error) {
	history, err := s.loadHistory()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range history.Records {
		if r.SubtaskID == subtaskID && !r.Success {
			out = append(out, r.Approach)
		}
	}
	return out, nil
}

// AttemptCount returns the total number of attempts recorded for subtaskID.
func (s *Store) AttemptCount(subtaskID string) (int, error) {
	history, err := s.loadHistory()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range history.Records {
		if r.SubtaskID == subtaskID {
			count++
		}
	}
	return count, nil
}

// RecordGoodCommit appends a known-good commit for later rollback.
func (s *Store) RecordGoodCommit(hash, subtaskID string) error {
	commits, err := s.loadCommits()
	if err != nil {
		return err
	}
	commits.Commits = append(commits.Commits, types.KnownGoodCommit{
		Hash:      hash,
		SubtaskID: subtaskID,
		Timestamp: time.Now().UTC(),
	})
	return s.saveCommits(commits)
}

// LastGoodCommit returns the most recently recorded good commit hash, or
// "" if none has been recorded.
func (s *Store) LastGoodCommit() (string, error) {
	commits, err := s.loadCommits()
	if err != nil {
		return "", err
	}
	if len(commits.Commits) == 0 {
		return "", nil
	}
	return commits.Commits[len(commits.Commits)-1].Hash, nil
}

// IsThrashing reports whether the last threshold records for subtaskID are
// all failures.
func (s *Store) IsThrashing(subtaskID string, threshold int) (bool, error) {
	history, err := s.loadHistory()
	if err != nil {
		return false, err
	}
	var subtaskRecords []types.AttemptRecord
	for _, r := range history.Records {
		if r.SubtaskID == subtaskID {
			subtaskRecords = append(subtaskRecords, r)
		}
	}
	return allFailed(subtaskRecords, threshold), nil
}

// RecoveryHints renders recovery context for prompt injection: attempt
// count, the last three attempts as "Attempt i: <approach> - SUCCESS|FAILED",
// a nudge to try a different strategy once at least two attempts exist, and,
// once the fraction of failed attempts exceeds circularFixThreshold, an
// extra note that the approach may be circular.
func (s *Store) RecoveryHints(subtaskID string, circularFixThreshold float64) ([]string, error) {
	history, err := s.loadHistory()
	if err != nil {
		return nil, err
	}
	var subtaskRecords []types.AttemptRecord
	for _, r := range history.Records {
		if r.SubtaskID == subtaskID {
			subtaskRecords = append(subtaskRecords, r)
		}
	}
	if len(subtaskRecords) == 0 {
		return []string{"This is the first attempt at this subtask"}, nil
	}

	hints := []string{fmtAttemptCount(len(subtaskRecords))}

	recent := subtaskRecords
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for i, r := range recent {
		status := "FAILED"
		if r.Success {
			status = "SUCCESS"
		}
		hints = append(hints, fmtAttempt(i+1, r.Approach, status))
	}

	if len(subtaskRecords) >= 2 {
		hints = append(hints, "IMPORTANT: Try a DIFFERENT approach than previous attempts")
		hints = append(hints, "Consider: different library, different pattern, or simpler implementation")
	}

	if circularFixThreshold > 0 && len(subtaskRecords) >= 2 && failedFraction(subtaskRecords) > circularFixThreshold {
		hints = append(hints, "This approach may be circular: most attempts at this subtask have failed, consider a fundamentally different strategy")
	}

	return hints, nil
}

// failedFraction returns the proportion of records that were not successful.
func failedFraction(records []types.AttemptRecord) float64 {
	failed := 0
	for _, r := range records {
		if !r.Success {
			failed++
		}
	}
	return float64(failed) / float64(len(records))
}

// allFailed reports whether the trailing threshold records are all failures.
func allFailed(records []types.AttemptRecord, threshold int) bool {
	if len(records) < threshold {
		return false
	}
	recent := records[len(records)-threshold:]
	for _, r := range recent {
		if r.Success {
			return false
		}
	}
	return true
}

func fmtAttemptCount(n int) string {
	return "Previous attempts: " + strconv.Itoa(n)
}

func fmtAttempt(i int, approach, status string) string {
	return "Attempt " + strconv.Itoa(i) + ": " + approach + " - " + status
}

func (s *Store) loadHistory() (*attemptHistory, error) {
	data, err := atomicstore.ReadLocked(s.historyPath)
	if os.IsNotExist(err) {
		return &attemptHistory{}, nil
	}
	if err != nil {
		return nil, rasenerr.Store("recovery store: read %s: %v", s.historyPath, err)
	}
	var history attemptHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, rasenerr.Store("recovery store: decode %s: %v", s.historyPath, err)
	}
	return &history, nil
}

func (s *Store) saveHistory(history *attemptHistory) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return rasenerr.Store("recovery store: marshal: %v", err)
	}
	if err := atomicstore.WriteLocked(s.historyPath, data); err != nil {
		return rasenerr.Store("recovery store: write %s: %v", s.historyPath, err)
	}
	return nil
}

func (s *Store) loadCommits() (*goodCommits, error) {
	data, err := atomicstore.ReadLocked(s.commitsPath)
	if os.IsNotExist(err) {
		return &goodCommits{}, nil
	}
	if err != nil {
		return nil, rasenerr.Store("recovery store: read %s: %v", s.commitsPath, err)
	}
	var commits goodCommits
	if err := json.Unmarshal(data, &commits); err != nil {
		return nil, rasenerr.Store("recovery store: decode %s: %v", s.commitsPath, err)
	}
	return &commits, nil
}

func (s *Store) saveCommits(commits *goodCommits) error {
	data, err := json.MarshalIndent(commits, "", "  ")
	if err != nil {
		return rasenerr.Store("recovery store: marshal: %v", err)
	}
	if err := atomicstore.WriteLocked(s.commitsPath, data); err != nil {
		return rasenerr.Store("recovery store: write %s: %v", s.commitsPath, err)
	}
	return nil
}
