package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelWarn)
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)
	log.Info("hello", slog.Int("n", 7))
	assert.Contains(t, buf.String(), `"n":7`)
}

func TestAppendCtx(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)

	ctx := AppendCtx(context.Background(), slog.String("run", "abc123"))
	ctx = AppendCtx(ctx, slog.String("stage", "encode"))
	log.InfoContext(ctx, "working")

	out := buf.String()
	assert.Contains(t, out, `"run":"abc123"`)
	assert.Contains(t, out, `"stage":"encode"`)

	// A plain context carries nothing extra.
	buf.Reset()
	log.InfoContext(context.Background(), "bare")
	assert.NotContains(t, buf.String(), "abc123")
}

func TestTee(t *testing.T) {
	var buf bytes.Buffer
	require.Equal(t, &buf, Tee(&buf, ""))
	assert.NotEqual(t, &buf, Tee(&buf, t.TempDir()+"/test.log"))
}
