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

func TestMaskingHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.Info("connecting",
		slog.String("bot_token", "123:secret"),
		slog.String("user", "alice"),
		slog.Group("db", slog.String("password", "hunter2")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "***", entry["bot_token"])
	assert.Equal(t, "alice", entry["user"])
	assert.Equal(t, "***", entry["db"].(map[string]any)["password"])
}

func TestMaskingHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithCorrelationID(context.Background(), "corr-1")
	log.InfoContext(ctx, "handled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-1", entry["correlation_id"])
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, slog.LevelWarn, level.Level())

	assert.Error(t, SetLevel("verbose"))
	assert.Equal(t, slog.LevelWarn, level.Level())

	require.NoError(t, SetLevel("info"))
}
