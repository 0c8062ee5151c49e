package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	logger, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger, err = New(Options{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "facetrack.log")
	logger, err := New(Options{Level: "info", File: file, NoColors: true})
	require.NoError(t, err)

	logger.WithFields(logrus.Fields{"session_id": "abc"}).Info("Pipeline ready")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pipeline ready")
	assert.Contains(t, string(data), "session_id:abc")
}

func TestFormatterFields(t *testing.T) {
	logger, err := New(Options{NoColors: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("model", "face_landmark.onnx").Warn("Falling back to CPU")

	out := buf.String()
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "model:face_landmark.onnx")
	assert.Contains(t, out, "Falling back to CPU")
}
