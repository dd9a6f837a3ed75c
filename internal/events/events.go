// Package events extracts structured `<event topic="...">payload</event>`
// markers the assistant embeds in its output. See SPEC_FULL.md §4.F.
package events

import (
	"regexp"
	"strings"

	"github.com/rasenhq/rasen/internal/types"
)

var eventPattern = regexp.MustCompile(`(?s)<event\s+topic="([^"]+)">(.*?)</event>`)

const (
	TopicBuildDone              = "build.done"
	TopicBuildBlocked           = "build.blocked"
	TopicInitDone               = "init.done"
	TopicReviewApproved         = "review.approved"
	TopicReviewChangesRequested = "review.changes_requested"
	TopicQAApproved             = "qa.approved"
	TopicQARejected             = "qa.rejected"
	TopicMemoryStore            = "memory.store"
)

var completionTopics = map[string]bool{
	TopicBuildDone: true,
	TopicInitDone:  true,
}

// Parse extracts every well-formed event marker from output, in order.
// Malformed or nested markers are silently skipped: a match whose payload
// contains another `<event` opener is dropped, and the search resumes at
// that inner opener.
func Parse(output string) []types.Event {
	events := make([]types.Event, 0)
	pos := 0
	for pos < len(output) {
		loc := eventPattern.FindStringSubmatchIndex(output[pos:])
		if loc == nil {
			break
		}
		payload := output[pos+loc[4] : pos+loc[5]]
		if i := strings.Index(payload, "<event"); i >= 0 {
			pos += loc[4] + i
			continue
		}
		events = append(events, types.Event{
			Topic:   strings.TrimSpace(output[pos+loc[2] : pos+loc[3]]),
			Payload: strings.TrimSpace(payload),
		})
		pos += loc[1]
	}
	return events
}

// HasCompletion reports whether any event signals a completion
// (build.done or init.done).
func HasCompletion(evts []types.Event) bool {
	for _, e := range evts {
		if completionTopics[e.Topic] {
			return true
		}
	}
	return false
}

// HasBlocked reports whether any event signals build.blocked.
func HasBlocked(evts []types.Event) bool {
	for _, e := range evts {
		if e.Topic == TopicBuildBlocked {
			return true
		}
	}
	return false
}

// PayloadFor returns the payload of the first event with the given
// topic, and whether one was found.
func PayloadFor(evts []types.Event, topic string) (string, bool) {
	for _, e := range evts {
		if e.Topic == topic {
			return e.Payload, true
		}
	}
	return "", false
}
