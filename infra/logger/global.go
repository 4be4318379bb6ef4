package logger

import (
	"sync"

	"github.com/mstgnz/paypal-proxy/infra/config"
)

const (
	serviceName    = "paypal-proxy"
	serviceVersion = "1.0.0"
)

var (
	globalLogger *SystemLogger
	globalMu     sync.RWMutex
)

// InitGlobalLogger configures the global system logger from the application
// configuration. sink may be nil for console-only logging.
func InitGlobalLogger(sink Sink, cfg *config.AppConfig) {
	level := ParseLevel(cfg.LoggingLevel)
	if cfg.Environment == "development" && cfg.LoggingLevel == "" {
		level = LevelDebug
	}

	SetGlobalLogger(NewSystemLogger(sink, SystemLoggerConfig{
		EnableConsole:    true,
		EnableOpenSearch: sink != nil && cfg.EnableLogging,
		MinLevel:         level,
		Service:          serviceName,
		Version:          serviceVersion,
		Environment:      cfg.Environment,
	}))
}

// SetGlobalLogger replaces the global logger
func SetGlobalLogger(l *SystemLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       serviceName,
			Version:       serviceVersion,
			Environment:   "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithSite creates a context logger for a site
func WithSite(siteID int64) *ContextLogger {
	return WithContext(LogContext{SiteID: siteID})
}
