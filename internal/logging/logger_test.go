package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format LogFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level, format)
	l.SetOutput(&buf)
	return l, &buf
}

func TestLogger_JSONEntryCarriesFieldsAndComponent(t *testing.T) {
	l, buf := newBufferLogger(LevelDebug, FormatJSON)

	l.WithComponent("sync").
		WithField("cycle", "c-1").
		WithError(errors.New("boom")).
		Warn("balance fetch failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "sync", entry.Component)
	assert.Equal(t, "balance fetch failed", entry.Message)
	assert.Equal(t, "c-1", entry.Fields["cycle"])
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.Empty(t, entry.Caller)
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LevelWarn, FormatText)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Errorf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN shown")
	assert.Contains(t, out, "ERROR shown 2")
	assert.Contains(t, out, "caller=")
}

func TestLogger_ChildrenShareSink(t *testing.T) {
	root, buf := newBufferLogger(LevelInfo, FormatText)
	child := root.WithField("k", "v")

	root.SetLevel(LevelError)
	child.Info("suppressed")
	assert.Empty(t, buf.String())

	child.Error("kept")
	assert.True(t, strings.Contains(buf.String(), "k=v"))
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	root, buf := newBufferLogger(LevelInfo, FormatJSON)
	_ = root.WithField("child", true)

	root.Info("parent")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Nil(t, entry.Fields)
}

func TestFromContext(t *testing.T) {
	l := NewNopLogger().WithComponent("ctx")
	ctx := WithLogger(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.in), tt.in)
	}

	assert.Equal(t, FormatText, ParseLogFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseLogFormat("yaml"))
}
