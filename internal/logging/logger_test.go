package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Formats(t *testing.T) {
	var text bytes.Buffer
	New(Options{Format: "text", Writer: &text}).Info("render done", "key", "abc")
	assert.Contains(t, text.String(), "msg=\"render done\"")
	assert.Contains(t, text.String(), "key=abc")

	var js bytes.Buffer
	New(Options{Format: "JSON", Writer: &js}).Info("render done", "key", "abc")
	assert.Contains(t, js.String(), `"msg":"render done"`)
	assert.Contains(t, js.String(), `"key":"abc"`)
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(New(Options{Level: "debug", Writer: &buf}), "scheduler").Debug("granted")
	assert.Contains(t, buf.String(), "component=scheduler")
}

func TestComponent_NilUsesDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(Options{Writer: &buf}))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Component(nil, "renderer").Info("surface ready")
	assert.Contains(t, buf.String(), "component=renderer")
	assert.Contains(t, buf.String(), "surface ready")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
