// Package display provides unified output formatting for the rasen CLI.
// It visually separates the orchestrator's own messages from the output
// of the agent sessions it spawns.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rasenhq/rasen/internal/types"
	"golang.org/x/term"
)

// Display handles all CLI output with visual hierarchy
type Display struct {
	theme     *Theme
	termWidth int
	noColor   bool
}

// TokenStats holds token usage info for display
type TokenStats struct {
	TotalTokens int
	Threshold   int
}

// New creates a Display that auto-detects color support.
func New() *Display {
	return NewWithOptions(!isTTY())
}

// NewWithOptions creates a Display with explicit color configuration.
func NewWithOptions(noColor bool) *Display {
	d := &Display{
		termWidth: getTerminalWidth(),
		noColor:   noColor,
	}
	if noColor {
		d.theme = NoColorTheme()
	} else {
		d.theme = DefaultTheme()
	}
	return d
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getTerminalWidth returns the terminal width, defaulting to 80
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 40 {
		return 80
	}
	if width > 120 {
		return 120 // Cap at 120 for readability
	}
	return width
}

// Box prints a boxed message with a custom title, e.g. "RASEN" or "REVIEW".
func (d *Display) Box(title string, lines ...string) {
	if len(lines) == 0 {
		return
	}

	width := d.termWidth - 2
	titleLen := len(title) + 4 // "─ TITLE "
	remainingWidth := width - titleLen

	topLine := BoxTopLeft + BoxHorizontal + " " + title + " " + strings.Repeat(BoxHorizontal, remainingWidth) + BoxTopRight
	fmt.Println(d.theme.LoopBorder(topLine))

	for _, line := range lines {
		paddedLine := d.padRight(line, width-2)
		fmt.Println(d.theme.LoopBorder(BoxVertical) + " " + d.theme.LoopText(paddedLine) + " " + d.theme.LoopBorder(BoxVertical))
	}

	bottomLine := BoxBottomLeft + strings.Repeat(BoxHorizontal, width) + BoxBottomRight
	fmt.Println(d.theme.LoopBorder(bottomLine))
}

// Status prints a single-line orchestrator status message (no box)
func (d *Display) Status(symbol, message string) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("%s %s %s\n",
		d.theme.LoopBorder(timestamp),
		symbol,
		d.theme.LoopText(message))
}

// Success prints a success message with green checkmark
func (d *Display) Success(message string) {
	d.Status(d.theme.Success(SymbolSuccess), message)
}

// Error prints an error message with red X
func (d *Display) Error(message string) {
	d.Status(d.theme.Error(SymbolError), message)
}

// Warning prints a warning message with yellow triangle
func (d *Display) Warning(message string) {
	d.Status(d.theme.Warning(SymbolWarning), message)
}

// Info prints a labeled info message
func (d *Display) Info(label, message string) {
	d.Status(d.theme.Info(label+":"), message)
}

// AgentStart prints a header when an agent session begins
func (d *Display) AgentStart(role types.AgentType) {
	timestamp := time.Now().Format("[15:04:05]")
	fmt.Printf("  %s %s Starting %s session...\n",
		d.theme.Dim(timestamp),
		d.theme.AgentTimestamp(GutterAgent),
		role)
}

// wrapText wraps text to maxWidth columns and returns at most 5 lines
func (d *Display) wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	text = strings.TrimSpace(text)
	if len(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len()+len(word)+1 > maxWidth {
			if currentLine.Len() > 0 {
				lines = append(lines, currentLine.String())
				currentLine.Reset()
			}
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	if len(lines) > 5 {
		lines = lines[:5]
		if len(lines[4]) > maxWidth-3 {
			lines[4] = lines[4][:maxWidth-3]
		}
		lines[4] = lines[4] + "..."
	}

	return lines
}

// AgentOutput prints a line of agent session output with a left gutter
func (d *Display) AgentOutput(text string, toolCount int) {
	timestamp := time.Now().Format("[15:04:05]")
	gutter := d.theme.AgentTimestamp(GutterAgent)

	toolStr := ""
	if toolCount > 0 {
		toolStr = fmt.Sprintf(" %s", d.theme.AgentToolCount(fmt.Sprintf("[%d]", toolCount)))
	}

	lines := d.wrapText(text, d.termWidth-20)

	for i, line := range lines {
		if i == 0 {
			fmt.Printf("  %s %s%s %s\n", gutter, d.theme.Dim(timestamp), toolStr, d.theme.AgentText(line))
		} else {
			fmt.Printf("  %s %s%s\n", d.theme.AgentTimestamp(GutterDot), strings.Repeat(" ", 10), d.theme.AgentText(line))
		}
	}
}

// AgentDone prints an agent session completion line (indented)
func (d *Display) AgentDone(result string) {
	timestamp := time.Now().Format("[15:04:05]")
	line := fmt.Sprintf("%s%s %s %s",
		IndentAgent,
		d.theme.AgentTimestamp(timestamp),
		d.theme.AgentToolCount("[Done]"),
		d.theme.AgentText(result))
	fmt.Println(line)
}

// SectionBreak prints a horizontal separator for iteration boundaries
func (d *Display) SectionBreak() {
	fmt.Println(d.theme.Separator(strings.Repeat(SectionBreak, d.termWidth)))
}

// Iteration prints the Main Loop's per-iteration banner
func (d *Display) Iteration(current, max int, subtaskDescription string, completed, total int) {
	d.SectionBreak()
	line := fmt.Sprintf("Iteration %d/%d: %s (%d/%d subtasks done)",
		current, max, d.theme.Info(subtaskDescription), completed, total)
	fmt.Println(line)
	d.SectionBreak()
}

// LoopHeader prints the run header
func (d *Display) LoopHeader(taskDescription string) {
	fmt.Println(d.theme.Bold("=== rasen orchestration loop ==="))
	fmt.Println(d.theme.Dim(taskDescription))
	fmt.Println()
}

// ReviewVerdict prints the outcome of a Coder ↔ Reviewer sub-loop pass
func (d *Display) ReviewVerdict(approved bool, feedback string) {
	if approved {
		d.Success("review approved")
		return
	}
	d.Warning("review requested changes: " + Truncate(feedback, 120))
}

// QAVerdict prints the outcome of a Coder ↔ QA sub-loop pass
func (d *Display) QAVerdict(approved bool, issues []string) {
	if approved {
		d.Success("QA approved")
		return
	}
	d.Warning(fmt.Sprintf("QA rejected: %s", strings.Join(issues, "; ")))
}

// Complete prints the run completion message
func (d *Display) Complete(reason types.TerminationReason, completed, total int) {
	if reason.Failed() {
		d.Error(fmt.Sprintf("run ended: %s (%d/%d subtasks complete)", reason, completed, total))
		return
	}
	d.Success(fmt.Sprintf("run ended: %s (%d/%d subtasks complete)", reason, completed, total))
}

// Tokens prints token usage stats
func (d *Display) Tokens(total, input, output int) {
	line := fmt.Sprintf("Tokens: %d (in: %d, out: %d)", total, input, output)
	d.Status(d.theme.Dim(""), line)
}

// Duration prints execution duration
func (d *Display) Duration(dur time.Duration) {
	fmt.Printf("   Duration: %s\n", dur.Round(time.Second))
}

// Theme returns the current theme for external use
func (d *Display) Theme() *Theme {
	return d.theme
}

// padRight pads a string to the specified width
func (d *Display) padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// Truncate truncates text to max length with ellipsis
func Truncate(s string, max int) string {
	s = CleanText(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// CleanText removes newlines and collapses spaces
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
