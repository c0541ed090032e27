package batch

import "go.uber.org/zap"

// pulseLogger wraps zap.SugaredLogger with lifecycle helpers.
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ run opening)
// - WARN level → CLOSING (❀ run closing)
// - INFO level → PULSE (batch activity)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general batch activity
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

func (l pulseLogger) with(keysAndValues ...interface{}) pulseLogger {
	return pulseLogger{l.SugaredLogger.With(keysAndValues...)}
}
