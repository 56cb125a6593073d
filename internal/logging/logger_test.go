package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("solved", PuzzleID("abc"), Remaining(0), Total(10), Rate(5), Duration(time.Second))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "solved", entry["msg"])
	assert.Equal(t, "abc", entry[KeyPuzzleID])
	assert.Equal(t, float64(10), entry[KeyTotal])
	assert.Equal(t, "1s", entry[KeyDuration])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "console", Output: &buf})

	logger.Debug("calibrating", Path("/tmp/x"))
	logger.Error("failed", Err(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "calibrating")
	assert.Contains(t, out, "boom")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, logger.GetLevel())

	logger.Info("visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "error", Format: "json", Output: &buf})
	child := logger.With(PuzzleID("p1")).Named("solve")

	logger.SetLevel("info")
	child.Info("progress")

	assert.Contains(t, buf.String(), "p1")
	assert.Contains(t, buf.String(), "solve")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestContext(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))

	logger := Nop()
	ctx := WithContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
