package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, "ParseLevel(%q)", tt.in)
		assert.Equal(t, tt.ok, ok, "ParseLevel(%q)", tt.in)
	}
}

func TestInitLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	InitLogger("info", &buf)

	L.Info("records added", "count", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "records added", line["msg"])
	assert.EqualValues(t, 3, line["count"])
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	InitLogger("debug", &buf)
	buf.Reset()

	assert.Same(t, L, FromContext(context.Background()))

	scoped := L.With("runID", "abc")
	ctx := ToContext(context.Background(), scoped)
	FromContext(ctx).Info("merging")

	assert.Contains(t, buf.String(), `"runID":"abc"`)
}
