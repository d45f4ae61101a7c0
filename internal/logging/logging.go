// Package logging is a small structured logger: leveled, colorized when its
// sink is a TTY, plain JSON lines otherwise, modeled on the lipgloss
// adaptive-color styles the donor CLI uses for its own terminal output
// (cmd/bd-examples) and the x/term TTY detection it uses before deciding to
// color anything (cmd/bd/import.go, internal/coop/attach.go).
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Level orders log severity low to high.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// ParseLevel maps a settings.json/env level name to a Level, defaulting to
// Info for an empty or unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
)

func styleFor(l Level) lipgloss.Style {
	switch l {
	case Debug:
		return debugStyle
	case Warn:
		return warnStyle
	case Error:
		return errStyle
	default:
		return infoStyle
	}
}

// Logger writes leveled, structured lines to a configurable sink. Nothing
// about it assumes it owns the process's stdout/stderr: the MCP server binds
// one to stderr for its whole lifetime, since stdout is the JSON-RPC wire
// and can never carry a stray log line.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	color  bool
	fields map[string]any
}

// New builds a Logger writing to w. Color is decided once, at construction,
// from whether w is a terminal (matching the donor's own isatty-gated color
// decisions); a later SetOutput does not re-probe, so redirecting a
// colorized logger to a file mid-run does not leave escape codes in it only
// if the caller rebuilds the Logger for the new sink.
func New(w io.Writer) *Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd())) && termenv.NewOutput(f).Profile != termenv.Ascii
	}
	return &Logger{out: w, level: Info, color: color}
}

// SetLevel filters out records below l.
func (lg *Logger) SetLevel(l Level) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.level = l
}

// SetOutput redirects the sink without changing the color decision made at
// construction time.
func (lg *Logger) SetOutput(w io.Writer) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.out = w
}

// With returns a child Logger that prepends fields to every record it
// writes, leaving the receiver untouched.
func (lg *Logger) With(fields map[string]any) *Logger {
	lg.mu.Lock()
	merged := make(map[string]any, len(lg.fields)+len(fields))
	for k, v := range lg.fields {
		merged[k] = v
	}
	out, level, color := lg.out, lg.level, lg.color
	lg.mu.Unlock()

	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{out: out, level: level, color: color, fields: merged}
}

func (lg *Logger) Debug(msg string, fields ...any) { lg.log(Debug, msg, fields) }
func (lg *Logger) Info(msg string, fields ...any)  { lg.log(Info, msg, fields) }
func (lg *Logger) Warn(msg string, fields ...any)  { lg.log(Warn, msg, fields) }
func (lg *Logger) Error(msg string, fields ...any) { lg.log(Error, msg, fields) }

type record struct {
	Time  string         `json:"time"`
	Level string         `json:"level"`
	Msg   string         `json:"msg"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// log renders one record. fields is read as alternating key/value pairs
// (the same convention log/slog uses), folded on top of any fields attached
// via With.
func (lg *Logger) log(level Level, msg string, fields []any) {
	lg.mu.Lock()
	if level < lg.level {
		lg.mu.Unlock()
		return
	}
	out, color := lg.out, lg.color
	attrs := make(map[string]any, len(lg.fields)+len(fields)/2)
	for k, v := range lg.fields {
		attrs[k] = v
	}
	lg.mu.Unlock()

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		attrs[key] = fields[i+1]
	}

	rec := record{Time: time.Now().UTC().Format(time.RFC3339Nano), Level: level.String(), Msg: msg, Attrs: attrs}

	lg.mu.Lock()
	defer lg.mu.Unlock()
	if color {
		lg.writeStyled(out, level, rec)
		return
	}
	lg.writeJSON(out, rec)
}

func (lg *Logger) writeJSON(out io.Writer, rec record) {
	data, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(out, `{"level":"error","msg":"logging: encoding record: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(out, "%s\n", data)
}

func (lg *Logger) writeStyled(out io.Writer, level Level, rec record) {
	tag := styleFor(level).Render(fmt.Sprintf("[%s]", rec.Level))
	line := fmt.Sprintf("%s %s %s", tag, rec.Time, rec.Msg)
	for k, v := range rec.Attrs {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	fmt.Fprintln(out, line)
}

// Discard is a Logger that writes nothing, for tests and db-free commands
// that never want a stray line on stderr.
func Discard() *Logger {
	return &Logger{out: io.Discard, level: Error}
}
