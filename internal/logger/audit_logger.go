// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides a dedicated audit trail for race officials' actions.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogRaceTransition logs a race lifecycle transition.
func (al *AuditLogger) LogRaceTransition(raceID string, oldStatus, newStatus string, timestamp time.Time) {
	al.WithFields(logrus.Fields{
		"race_id":    raceID,
		"old_status": oldStatus,
		"new_status": newStatus,
		"timestamp":  timestamp.Unix(),
	}).Info("Race status changed")
}

// LogMassStart logs the mass-start barrier event for a race.
func (al *AuditLogger) LogMassStart(raceID string, ridersStarted int64, massStartTime time.Time) {
	al.WithFields(logrus.Fields{
		"race_id":         raceID,
		"riders_started":  ridersStarted,
		"mass_start_time": massStartTime.Unix(),
	}).Info("Mass start recorded")
}

// LogResultOverride logs an administrative result status override (DNF/DSQ/corrections).
func (al *AuditLogger) LogResultOverride(raceID, riderID string, newStatus string, notes string) {
	al.WithFields(logrus.Fields{
		"race_id":    raceID,
		"rider_id":   riderID,
		"new_status": newStatus,
		"notes":      notes,
	}).Info("Result status overridden")
}

// LogWeatherRefresh logs a weather snapshot refresh on a race.
func (al *AuditLogger) LogWeatherRefresh(raceID string, condition string, forecast bool) {
	al.WithFields(logrus.Fields{
		"race_id":   raceID,
		"condition": condition,
		"forecast":  forecast,
	}).Info("Weather snapshot refreshed")
}
