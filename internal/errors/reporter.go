package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"tensorgen/internal/ast"
)

// Level is the severity of a CompilerError.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// CompilerError is a structured, positioned diagnostic. Analysis phases
// accumulate these rather than returning bare errors, so that a caller
// asking for `verbose` gets the same Rust-like formatting a CLI user sees.
type CompilerError struct {
	Level    Level
	Code     Code
	Message  string
	Position ast.Position
	Notes    []string // additional context, e.g. "index i was shifted here"
	HelpText string    // one-line suggested fix, if any
}

func (e *CompilerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Level, e.Message)
}

// Reporter renders CompilerErrors against the original equation source so a
// terminal user sees a caret pointing at the offending column.
type Reporter struct {
	source string
	lines  []string
}

// NewReporter builds a Reporter for one equation string.
func NewReporter(source string) *Reporter {
	return &Reporter{source: source, lines: strings.Split(source, "\n")}
}

// Format renders err in the teacher's `error[CODE]: message` / `--> line:col`
// style, colorized when the terminal supports it.
func (r *Reporter) Format(err *CompilerError) string {
	var b strings.Builder

	levelColor := r.levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, err.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", levelColor(string(err.Level)), err.Message)
	}

	fmt.Fprintf(&b, " %s equation:%d:%d\n", dim("-->"), err.Position.Line, err.Position.Column)
	fmt.Fprintf(&b, " %s\n", dim("│"))

	if err.Position.Line > 0 && err.Position.Line <= len(r.lines) {
		line := r.lines[err.Position.Line-1]
		fmt.Fprintf(&b, "%s %s %s\n", bold(fmt.Sprintf("%d", err.Position.Line)), dim("│"), line)
		caret := strings.Repeat(" ", max0(err.Position.Column-1)) + "^"
		fmt.Fprintf(&b, " %s %s\n", dim("│"), color.RedString(caret))
	}

	for _, n := range err.Notes {
		fmt.Fprintf(&b, " %s %s: %s\n", dim("│"), dim("note"), n)
	}
	if err.HelpText != "" {
		fmt.Fprintf(&b, " %s %s: %s\n", dim("│"), color.GreenString("help"), err.HelpText)
	}

	return b.String()
}

func (r *Reporter) levelColor(l Level) func(format string, a ...interface{}) string {
	switch l {
	case Warning:
		return color.YellowString
	case Note:
		return color.CyanString
	default:
		return color.RedString
	}
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
