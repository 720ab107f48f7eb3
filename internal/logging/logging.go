// Package logging builds the structured loggers used across sgsync.
//
// Every subsystem gets its own child logger tagged with a component field.
// Levels are resolved from an immutable Levels value built once at startup,
// so a subsystem can be made more or less verbose without touching the
// process-wide zerolog state.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Subsystem names used as component fields.
const (
	Main      = "main"
	IPList    = "iplist"
	Reconcile = "reconcile"
	SyncJob   = "syncjob"
	Scheduler = "scheduler"
	EC2       = "ec2"
	HCloud    = "hcloud"
	Metrics   = "metrics"
)

// Format selects the log encoding.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON, FormatConsole:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want auto, json or console)", s)
	}
}

// Levels maps subsystems to log levels. The zero value logs everything at info.
type Levels struct {
	def       zerolog.Level
	overrides map[string]zerolog.Level
	parsed    bool
}

// ParseLevel accepts zerolog level names case-insensitively, plus the
// "warning" and "critical" spellings.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// ParseLevels builds Levels from a default level and a list of
// "subsystem:LEVEL" overrides separated by spaces or commas.
func ParseLevels(defaultLevel, overrides string) (Levels, error) {
	def, err := ParseLevel(defaultLevel)
	if err != nil {
		return Levels{}, err
	}
	l := Levels{def: def, overrides: make(map[string]zerolog.Level), parsed: true}

	fields := strings.FieldsFunc(overrides, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, f := range fields {
		name, level, ok := strings.Cut(f, ":")
		if !ok || name == "" {
			return Levels{}, fmt.Errorf("invalid log level override %q: expected subsystem:LEVEL", f)
		}
		lvl, err := ParseLevel(level)
		if err != nil {
			return Levels{}, fmt.Errorf("invalid log level override %q: %w", f, err)
		}
		l.overrides[strings.ToLower(name)] = lvl
	}
	return l, nil
}

// For returns the level for a subsystem.
func (l Levels) For(subsystem string) zerolog.Level {
	if lvl, ok := l.overrides[strings.ToLower(subsystem)]; ok {
		return lvl
	}
	if !l.parsed {
		return zerolog.InfoLevel
	}
	return l.def
}

// String renders the levels in override syntax, sorted by subsystem.
func (l Levels) String() string {
	parts := []string{"default:" + l.For("").String()}
	names := make([]string, 0, len(l.overrides))
	for name := range l.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+":"+l.overrides[name].String())
	}
	return strings.Join(parts, " ")
}

// Config holds logging configuration.
type Config struct {
	Levels Levels
	Format Format
	Output io.Writer
}

// Factory hands out per-subsystem loggers sharing one output.
type Factory struct {
	base   zerolog.Logger
	levels Levels
}

// New creates a Factory. A nil Output writes to stderr.
func New(cfg Config) *Factory {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if useConsole(cfg.Format, out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return &Factory{
		base:   zerolog.New(w).With().Timestamp().Logger(),
		levels: cfg.Levels,
	}
}

// Nop returns a Factory that discards everything.
func Nop() *Factory {
	return &Factory{base: zerolog.Nop()}
}

// For returns the logger for a subsystem.
func (f *Factory) For(subsystem string) zerolog.Logger {
	return f.base.With().Str("component", subsystem).Logger().Level(f.levels.For(subsystem))
}

func useConsole(format Format, out io.Writer) bool {
	switch format {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
