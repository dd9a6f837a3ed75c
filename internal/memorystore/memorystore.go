// Package memorystore persists cross-session memory notes in a Markdown
// file with three named sections (Patterns, Decisions, Fixes). See
// SPEC_FULL.md §4.D.
package memorystore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rasenhq/rasen/internal/atomicstore"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

const defaultTemplate = "# Memories\n\n## Patterns\n\n## Decisions\n\n## Fixes\n"

var legacyEntryPattern = regexp.MustCompile(`(?s)### (\S+)\n> (.*?)\n<!-- tags: (.*?) \| created: (.*?) -->`)

// Store persists memory notes at a single Markdown file path.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load parses every memory note from the file in document order: notes
// within a section come most-recent-first, since Append always inserts a
// new note immediately below its section heading. Returns an empty slice
// (not an error) when the file does not exist.
func (s *Store) Load() ([]types.MemoryEntry, error) {
	data, err := atomicstore.ReadLocked(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, rasenerr.Store("memory store: read %s: %v", s.path, err)
	}
	return parse(string(data)), nil
}

// Append inserts note under its section's heading, preserving the
// existing chronology (new notes go immediately after the heading, so the
// file's natural order is newest-first within a section).
func (s *Store) Append(note types.MemoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return rasenerr.Store("memory store: mkdir: %v", err)
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return rasenerr.Store("memory store: read %s: %v", s.path, err)
		}
		content = []byte(defaultTemplate)
	}

	heading := "## " + note.Kind.Section()
	entry := formatEntry(note)

	text := string(content)
	if idx := strings.Index(text, heading); idx >= 0 {
		insertAt := idx + len(heading)
		text = text[:insertAt] + "\n" + entry + text[insertAt:]
	} else {
		text += "\n" + heading + "\n" + entry
	}

	return atomicstore.WriteLocked(s.path, []byte(text))
}

// FormatForInjection renders a "Relevant Memories" block, most recent
// first, stopping once the running token estimate would exceed
// tokenBudget. Token estimation is words × 1.3, rounded down, and is
// monotone in word count — exactness is not required.
//
// Append inserts each new note immediately below its section heading, so
// Load already returns notes most-recent-first within a section; this
// walks that order forward rather than reversing it.
func (s *Store) FormatForInjection(tokenBudget int) (string, error) {
	notes, err := s.Load()
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## Relevant Memories from Previous Sessions\n\n")
	tokens := 10

	for _, note := range notes {
		line := fmt.Sprintf("- **%s**: %s\n", note.Kind, note.Content)
		lineTokens := estimateTokens(line)
		if tokens+lineTokens > tokenBudget {
			break
		}
		b.WriteString(line)
		tokens += lineTokens
	}

	return b.String(), nil
}

// NextID returns a dated, monotonically-numbered ID for a new note
// (mem-20260131-001, mem-20260131-002, ...), scoped to notes already
// carrying today's date prefix.
func (s *Store) NextID(now time.Time) (string, error) {
	notes, err := s.Load()
	if err != nil {
		return "", err
	}
	date := now.UTC().Format("20060102")
	prefix := "mem-" + date
	count := 0
	for _, n := range notes {
		if strings.HasPrefix(n.ID, prefix) {
			count++
		}
	}
	return fmt.Sprintf("%s-%03d", prefix, count+1), nil
}

func estimateTokens(s string) int {
	return int(float64(len(strings.Fields(s))) * 1.3)
}

func formatEntry(note types.MemoryEntry) string {
	tags := strings.Join(note.Tags, ", ")
	return fmt.Sprintf("### %s\n> %s\n<!-- tags: %s | created: %s -->\n",
		note.ID, note.Content, tags, note.CreatedAt.Format(time.RFC3339))
}

// parse supports two forms and returns the notes of both: the simple
// bullet-list form under section headings, followed by the richer
// "### id" block form (quoted content plus a tags/created comment) that
// Append writes.
func parse(content string) []types.MemoryEntry {
	return append(parseBulletForm(content), parseLegacyForm(content)...)
}

func parseBulletForm(content string) []types.MemoryEntry {
	var notes []types.MemoryEntry
	var current types.MemoryKind
	counter := 0

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "## Decision"):
			current = types.MemoryDecision
		case strings.HasPrefix(line, "## Learning"):
			current = types.MemoryPattern
		case strings.HasPrefix(line, "## Fix"):
			current = types.MemoryFix
		case strings.HasPrefix(line, "## Pattern"):
			current = types.MemoryPattern
		case strings.HasPrefix(line, "## "):
			current = ""
		}

		if current != "" && strings.HasPrefix(line, "- ") {
			body := strings.TrimSpace(strings.TrimPrefix(line, "- "))
			if body == "" || strings.HasPrefix(body, "<!--") {
				continue
			}
			counter++
			notes = append(notes, types.MemoryEntry{
				ID:      fmt.Sprintf("mem-simple-%03d", counter),
				Kind:    current,
				Content: body,
			})
		}
	}

	return notes
}

func parseLegacyForm(content string) []types.MemoryEntry {
	var notes []types.MemoryEntry

	for _, m := range legacyEntryPattern.FindAllStringSubmatchIndex(content, -1) {
		id := content[m[2]:m[3]]
		body := strings.TrimSpace(content[m[4]:m[5]])
		tagsRaw := content[m[6]:m[7]]
		created := content[m[8]:m[9]]

		var tags []string
		for _, tag := range strings.Split(tagsRaw, ",") {
			if t := strings.TrimSpace(tag); t != "" {
				tags = append(tags, t)
			}
		}

		createdAt, err := time.Parse(time.RFC3339, created)
		if err != nil {
			createdAt = time.Time{}
		}

		notes = append(notes, types.MemoryEntry{
			ID:        id,
			Kind:      legacySectionKind(content[:m[0]]),
			Content:   body,
			Tags:      tags,
			CreatedAt: createdAt,
		})
	}

	return notes
}

// legacySectionKind mirrors the legacy heuristic: look at which section
// heading most recently precedes the entry.
func legacySectionKind(before string) types.MemoryKind {
	decisionsIdx := strings.LastIndex(before, "## Decisions")
	fixesIdx := strings.LastIndex(before, "## Fixes")
	switch {
	case decisionsIdx >= 0 && fixesIdx < decisionsIdx:
		return types.MemoryDecision
	case fixesIdx >= 0:
		return types.MemoryFix
	default:
		return types.MemoryPattern
	}
}
