package logger

import (
	"fmt"
	"time"
)

// StageLogger provides structured logging for one stage of a
// reconciliation run with timing information.
type StageLogger struct {
	logger    Logger
	stage     string
	fields    Fields
	startTime time.Time
}

// NewStageLogger creates a logger for the named stage and logs its start
func NewStageLogger(stage string, logger Logger) *StageLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	sl := &StageLogger{
		logger:    logger.WithComponent("stage"),
		stage:     stage,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	sl.logger.WithField("stage", stage).Debug("Starting stage")
	return sl
}

// WithField adds a field to the stage context
func (sl *StageLogger) WithField(key string, value interface{}) *StageLogger {
	sl.fields[key] = value
	return sl
}

// Progress logs progress through the stage
func (sl *StageLogger) Progress(message string, processed, total int) {
	fields := Fields{
		"stage":     sl.stage,
		"processed": processed,
		"total":     total,
	}
	if total > 0 {
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100)
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithFields(fields).Debug(message)
}

// Success completes the stage successfully
func (sl *StageLogger) Success(message string) {
	fields := Fields{
		"stage":    sl.stage,
		"duration": time.Since(sl.startTime).String(),
		"status":   "success",
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithFields(fields).Info(message)
}

// Error completes the stage with an error
func (sl *StageLogger) Error(err error, message string) {
	fields := Fields{
		"stage":    sl.stage,
		"duration": time.Since(sl.startTime).String(),
		"status":   "error",
	}
	for k, v := range sl.fields {
		fields[k] = v
	}

	sl.logger.WithError(err).WithFields(fields).Error(message)
}
