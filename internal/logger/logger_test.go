package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithBatchAddsBatchID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).With().Str("component", "orchestrator").Logger()

	l := WithBatch(base, "b-1")
	l.Info().Msg("batch materialized")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "b-1", line["batch_id"])
	assert.Equal(t, "orchestrator", line["component"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, Setup(cfg))
}
