// Package validation implements the backpressure gate: a completion claim
// is only honored when its payload carries the evidence the policy
// requires. See SPEC_FULL.md §4.G.
package validation

import (
	"strings"

	"github.com/rasenhq/rasen/internal/types"
)

// Policy controls which textual evidence a completion claim must carry.
type Policy struct {
	RequireTests bool
	RequireLint  bool
}

// ValidateCompletion locates the first completion event (build.done or
// init.done) and checks its payload against policy. No network, file, or
// subprocess work is performed; the gate operates purely on claim text.
func ValidateCompletion(evts []types.Event, policy Policy) bool {
	completion := firstCompletion(evts)
	if completion == nil {
		return false
	}

	payload := strings.ToLower(completion.Payload)

	if policy.RequireTests && !containsAny(payload, "tests: pass", "test pass") {
		return false
	}
	if policy.RequireLint && !containsAny(payload, "lint: pass", "lint pass") {
		return false
	}
	return true
}

// ExtractCompletionSummary returns the payload of the first completion
// event, or "" with ok=false if there is none.
func ExtractCompletionSummary(evts []types.Event) (string, bool) {
	completion := firstCompletion(evts)
	if completion == nil {
		return "", false
	}
	return completion.Payload, true
}

// HasQualityEvidence reports which quality claims a payload text carries.
// type_check_pass is supplemental and non-gating; see SPEC_FULL.md §3.1.
func HasQualityEvidence(payload string) types.QualityEvidence {
	lower := strings.ToLower(payload)
	return types.QualityEvidence{
		TestsPass:     containsAny(lower, "tests: pass", "test pass"),
		LintPass:      containsAny(lower, "lint: pass", "lint pass"),
		TypeCheckPass: containsAny(lower, "mypy: pass", "type check: pass"),
	}
}

func firstCompletion(evts []types.Event) *types.Event {
	for i := range evts {
		if evts[i].Topic == "build.done" || evts[i].Topic == "init.done" {
			return &evts[i]
		}
	}
	return nil
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
