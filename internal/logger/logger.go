package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the underlying zap logger with additional functionality
type Logger struct {
	*zap.SugaredLogger
}

// Config represents logger configuration
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from config. Format "console" gives the development
// encoder; anything else is JSON.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithFields returns a logger with the given fields attached to every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{SugaredLogger: l.With(args...)}
}

// LogProviderRequest logs one call to the external aggregation provider.
func (l *Logger) LogProviderRequest(operation string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"operation": operation,
		"duration":  duration.Milliseconds(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Provider request failed")
	} else {
		l.WithFields(fields).Debug("Provider request completed")
	}
}

// LogSyncOperation logs a reconciliation or holdings-fetch step for a user.
func (l *Logger) LogSyncOperation(userID, operation string, err error) {
	fields := map[string]interface{}{
		"user_id":   userID,
		"operation": operation,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Sync operation failed")
	} else {
		l.WithFields(fields).Info("Sync operation completed")
	}
}
