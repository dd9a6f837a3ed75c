// Package prompts assembles the fixed per-role prompt templates
// (initializer, coder, reviewer, qa) used to invoke agent sessions. See
// SPEC_FULL.md §4.I.
package prompts

import (
	"embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

//go:embed templates/*.md
var embedded embed.FS

func templateName(role types.AgentType) string {
	return role.String() + ".md"
}

// Get returns the packaged default template for role, resolved without
// any reference to the target project's directory — prompts are part of
// the orchestrator, not the target.
func Get(role types.AgentType) (string, error) {
	data, err := embedded.ReadFile("templates/" + templateName(role))
	if err != nil {
		return "", rasenerr.Configuration("prompt template for role %q not found: %v", role, err)
	}
	return string(data), nil
}

// GetForWorkspace materializes a user-editable copy of role's template
// under <stateDir>/prompts/ on first use (mirroring the embedded
// default), then prefers that copy over the embedded default whenever it
// exists.
func GetForWorkspace(stateDir string, role types.AgentType) (string, error) {
	overridePath := filepath.Join(stateDir, "prompts", templateName(role))

	if data, err := os.ReadFile(overridePath); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", rasenerr.Configuration("read prompt override %s: %v", overridePath, err)
	}

	content, err := Get(role)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(overridePath), 0o755); err == nil {
		_ = os.WriteFile(overridePath, []byte(content), 0o644)
	}

	return content, nil
}

// Render performs literal {name} substitution using vars. This is not
// text/template: a placeholder with no matching var is left intact
// rather than erroring, so templates remain forward-compatible with
// callers that don't yet supply every field.
func Render(template string, vars map[string]string) string {
	replacements := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		replacements = append(replacements, "{"+name+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(template)
}

// Assemble loads role's template (workspace override preferred) and
// renders it with vars. The assembler is otherwise pure — no I/O beyond
// template resolution.
func Assemble(stateDir string, role types.AgentType, vars map[string]string) (string, error) {
	template, err := GetForWorkspace(stateDir, role)
	if err != nil {
		return "", err
	}
	return Render(template, vars), nil
}
