// Package logger holds the allocator's structured logger.
//
// The core only logs cold events (OS growth, oversize mappings, scavenges,
// heap teardown); allocation and free fast paths never log.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable read by FromEnv.
const EnvVar = "SPANALLOC_LOG"

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() or FromEnv() to enable logging.
var L *slog.Logger = discard()

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Writer  io.Writer  // Destination. Default: os.Stderr
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // Use the JSON handler instead of the text handler
}

// Init configures logging.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) {
	if !opts.Enabled {
		L = discard()
		return
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := opts.Level
	if level == 0 {
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(w, hopts))
		return
	}
	L = slog.New(slog.NewTextHandler(w, hopts))
}

// FromEnv enables logging to stderr when SPANALLOC_LOG is set to one of
// debug, info, warn or error. Any other value leaves the logger untouched.
func FromEnv() {
	level, ok := ParseLevel(os.Getenv(EnvVar))
	if !ok {
		return
	}
	Init(Options{Enabled: true, Level: level})
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	FromEnv()
}
