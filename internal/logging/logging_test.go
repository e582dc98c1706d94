package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureProductionWritesJSON(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer

	configure(logger, &buf, "production", "debug")
	logger.WithField("user_id", "u-1").Debug("bound")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bound", entry["msg"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfigureDevelopmentWritesText(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer

	configure(logger, &buf, "development", "info")
	logger.Info("ready")

	assert.True(t, strings.Contains(buf.String(), "msg=ready"), buf.String())
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestConfigureUnknownLevelFallsBackToInfo(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer

	configure(logger, &buf, "production", "chatty")

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}
