// Package metricsstore persists per-session token/duration accounting and
// a denormalized running aggregate. See SPEC_FULL.md §4.E.
package metricsstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

type metricsData struct {
	Sessions  []types.SessionMetrics `json:"sessions"`
	Aggregate types.AggregateMetrics `json:"aggregate"`
}

func newMetricsData() *metricsData {
	return &metricsData{
		Aggregate: types.AggregateMetrics{
			PerAgentSessions: map[string]int{},
			PerAgentTokens:   map[string]int{},
		},
	}
}

// Store persists session metrics at <stateDir>/metrics.json.
type Store struct {
	path string
}

func New(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, "metrics.json")}
}

// RecordSession appends metrics to session history and folds it into the
// running aggregate. A corrupt metrics file is treated as empty rather
// than failing the session, matching how this store is a monitoring
// convenience, not a correctness-critical source of truth.
func (s *Store) RecordSession(metrics types.SessionMetrics) error {
	data := s.loadOrEmpty()

	data.Sessions = append(data.Sessions, metrics)

	agg := &data.Aggregate
	agg.TotalSessions++
	agg.TotalDurationSeconds += metrics.DurationSeconds
	agg.TotalInputTokens += metrics.InputTokens
	agg.TotalOutputTokens += metrics.OutputTokens
	agg.TotalTokens += metrics.TotalTokens

	agentType := metrics.AgentType.String()
	agg.PerAgentSessions[agentType]++
	agg.PerAgentTokens[agentType] += metrics.TotalTokens

	if agg.EarliestStartedAt == nil {
		started := metrics.StartedAt
		agg.EarliestStartedAt = &started
	}
	completedAt := metrics.CompletedAt
	if completedAt == nil {
		now := metrics.StartedAt
		completedAt = &now
	}
	agg.LatestCompletedAt = completedAt

	return s.save(data)
}

// GetAggregate returns the running aggregate metrics.
func (s *Store) GetAggregate() (types.AggregateMetrics, error) {
	data, err := s.load()
	if err != nil {
		return types.AggregateMetrics{}, err
	}
	return data.Aggregate, nil
}

// GetAllSessions returns every recorded session, oldest first.
func (s *Store) GetAllSessions() ([]types.SessionMetrics, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// GetByAgent returns all sessions for the given agent type.
func (s *Store) GetByAgent(agentType types.AgentType) ([]types.SessionMetrics, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []types.SessionMetrics
	for _, sess := range data.Sessions {
		if sess.AgentType == agentType {
			out = append(out, sess)
		}
	}
	return out, nil
}

// GetRecentSessions returns the last n recorded sessions, oldest of the
// window first.
func (s *Store) GetRecentSessions(n int) ([]types.SessionMetrics, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	if len(data.Sessions) <= n {
		return data.Sessions, nil
	}
	return data.Sessions[len(data.Sessions)-n:], nil
}

func (s *Store) load() (*metricsData, error) {
	raw, err := atomicstore.ReadLocked(s.path)
	if os.IsNotExist(err) {
		return newMetricsData(), nil
	}
	if err != nil {
		return nil, rasenerr.Store("metrics store: read %s: %v", s.path, err)
	}
	var data metricsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, rasenerr.Store("metrics store: decode %s: %v", s.path, err)
	}
	if data.Aggregate.PerAgentSessions == nil {
		data.Aggregate.PerAgentSessions = map[string]int{}
	}
	if data.Aggregate.PerAgentTokens == nil {
		data.Aggregate.PerAgentTokens = map[string]int{}
	}
	return &data, nil
}

// loadOrEmpty mirrors the reference store's "treat a corrupt file as
// empty" recovery for the mutating path, where failing outright would
// discard a session's metrics rather than just its history.
func (s *Store) loadOrEmpty() *metricsData {
	data, err := s.load()
	if err != nil {
		return newMetricsData()
	}
	return data
}

func (s *Store) save(data *metricsData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return rasenerr.Store("metrics store: marshal: %v", err)
	}
	if err := atomicstore.WriteLocked(s.path, raw); err != nil {
		return rasenerr.Store("metrics store: write %s: %v", s.path, err)
	}
	return nil
}
