package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, sync, err := New("info", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("order accepted", "order_id", 7, "client", "alice")
	require.NoError(t, sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "order accepted", entry["msg"])
	assert.Equal(t, float64(7), entry["order_id"])
	assert.Equal(t, "alice", entry["client"])
}

func TestNewInvalidLevel(t *testing.T) {
	_, _, err := New("loud", &bytes.Buffer{})
	assert.Error(t, err)
}
