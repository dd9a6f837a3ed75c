package display

import "github.com/fatih/color"

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
	SectionBreak   = "━"
)

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolResume  = "↻"
	SymbolPending = "○"
	SymbolPartial = "◐"
)

// IndentAgent is the indentation for agent session output
const IndentAgent = "  "

// Gutter markers distinguish orchestrator lines from agent session lines
// in the left margin.
const (
	GutterAgent = "│"
	GutterDot   = "·"
)

// Theme holds all color functions for consistent styling
type Theme struct {
	// Orchestrator's own messages (prominent)
	LoopBorder func(a ...interface{}) string
	LoopLabel  func(a ...interface{}) string
	LoopText   func(a ...interface{}) string

	// Agent session output (subdued)
	AgentTimestamp func(a ...interface{}) string
	AgentText      func(a ...interface{}) string
	AgentToolCount func(a ...interface{}) string

	// Status indicators
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Info    func(a ...interface{}) string

	// Structural elements
	Bold      func(a ...interface{}) string
	Dim       func(a ...interface{}) string
	Separator func(a ...interface{}) string
}

// DefaultTheme creates the default color theme
func DefaultTheme() *Theme {
	return &Theme{
		// Orchestrator messages - bright cyan for visibility
		LoopBorder: color.New(color.FgCyan).SprintFunc(),
		LoopLabel:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		LoopText:   color.New(color.FgWhite).SprintFunc(),

		// Agent output - dimmer/gray to distinguish from orchestrator lines
		AgentTimestamp: color.New(color.FgHiBlack).SprintFunc(),
		AgentText:      color.New(color.FgWhite).SprintFunc(),
		AgentToolCount: color.New(color.FgHiBlack).SprintFunc(),

		// Status indicators
		Success: color.New(color.FgGreen).SprintFunc(),
		Error:   color.New(color.FgRed).SprintFunc(),
		Warning: color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),

		// Structural
		Bold:      color.New(color.Bold).SprintFunc(),
		Dim:       color.New(color.FgHiBlack).SprintFunc(),
		Separator: color.New(color.FgCyan).SprintFunc(),
	}
}

// NoColorTheme creates a theme without colors (for --no-color flag or non-TTY)
func NoColorTheme() *Theme {
	identity := func(a ...interface{}) string {
		if len(a) == 0 {
			return ""
		}
		if s, ok := a[0].(string); ok {
			return s
		}
		return ""
	}
	return &Theme{
		LoopBorder:     identity,
		LoopLabel:      identity,
		LoopText:       identity,
		AgentTimestamp: identity,
		AgentText:      identity,
		AgentToolCount: identity,
		Success:        identity,
		Error:          identity,
		Warning:        identity,
		Info:           identity,
		Bold:           identity,
		Dim:            identity,
		Separator:      identity,
	}
}
