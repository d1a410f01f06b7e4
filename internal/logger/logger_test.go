package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() (*logrus.Logger, *bytes.Buffer) {
	log := logrus.New()
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)
	return log, buf
}

func parseLogOutput(buf *bytes.Buffer) map[string]interface{} {
	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		return nil
	}
	return logEntry
}

func TestNewLoggerLevels(t *testing.T) {
	log := NewLogger("debug")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log = NewLogger("bogus")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestAuditLoggerRaceTransition(t *testing.T) {
	log, buf := setupTestLogger()
	audit := NewAuditLogger(log)

	audit.LogRaceTransition("race_001", "open", "in_progress", time.Now())

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "race_001", logEntry["race_id"])
	assert.Equal(t, "open", logEntry["old_status"])
	assert.Equal(t, "in_progress", logEntry["new_status"])
	assert.Equal(t, "audit", logEntry["component"])
}

func TestAuditLoggerResultOverride(t *testing.T) {
	log, buf := setupTestLogger()
	audit := NewAuditLogger(log)

	audit.LogResultOverride("race_001", "rider_042", "dnf", "Mechanical failure")

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "rider_042", logEntry["rider_id"])
	assert.Equal(t, "dnf", logEntry["new_status"])
	assert.Equal(t, "Mechanical failure", logEntry["notes"])
}
