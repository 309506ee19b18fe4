package diag

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("tier", "configured").Debug("attempt")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "attempt", entry["msg"])
	assert.Equal(t, "configured", entry["tier"])

	_, err = NewLogger("chatty", "text", nil)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", nil)
	assert.Error(t, err)
}

func TestLogTracker(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("info", "json", &buf)
	require.NoError(t, err)

	LogTracker{Logger: log}.TrackError(errors.New("codec exploded"), map[string]string{"rotation": "90cw"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, true, entry["error_tracking"])
	assert.Equal(t, "90cw", entry["rotation"])
	assert.Equal(t, "codec exploded", entry["error"])
	assert.Equal(t, "warning", entry["level"])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	boom := errors.New("boom")
	r.TrackError(boom, nil)

	got := r.Errors()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, boom)

	got[0].Err = nil
	assert.NotNil(t, r.Errors()[0].Err, "Errors must return a copy")
}
