package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Init_DisabledDiscards(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	var buf bytes.Buffer
	Init(Options{Enabled: false, Writer: &buf})
	L.Error("dropped")
	require.Zero(t, buf.Len())
}

func Test_Init_RespectsLevel(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelWarn})
	L.Info("quiet")
	require.Zero(t, buf.Len())

	L.Warn("loud", "pages", 128)
	require.Contains(t, buf.String(), "loud")
	require.Contains(t, buf.String(), "pages=128")
}

func Test_Init_JSON(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	var buf bytes.Buffer
	Init(Options{Enabled: true, Writer: &buf, JSON: true})
	L.Info("grow", "chunk", 1)
	require.Contains(t, buf.String(), `"msg":"grow"`)
}

func Test_FromEnv(t *testing.T) {
	prev := L
	t.Cleanup(func() { L = prev })

	t.Setenv(EnvVar, "bogus")
	L = discard()
	before := L
	FromEnv()
	require.Same(t, before, L, "unknown level must leave logger untouched")

	t.Setenv(EnvVar, "debug")
	FromEnv()
	require.True(t, L.Enabled(t.Context(), slog.LevelDebug))
}

func Test_ParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, ok := ParseLevel(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ParseLevel("")
	require.False(t, ok)
}
