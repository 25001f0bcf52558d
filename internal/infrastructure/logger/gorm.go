package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultMaxSQLLength bounds the logged statement. Set statements carry the encoded value as a
// bytea literal, which can be large.
const DefaultMaxSQLLength = 512

// GormLogger implements GORM's logger interface using zap for the SQL key-value backend.
// Statements are logged at debug, slow ones at warn, and failed versionstamp checks
// (conditional statements that touched no row) are reported as check misses.
type GormLogger struct {
	logger                    *zap.Logger
	logLevel                  gormlogger.LogLevel
	slowThreshold             time.Duration
	maxSQLLength              int
	ignoreRecordNotFoundError bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow statement threshold. Zero disables slow statement warnings.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithMaxSQLLength truncates logged statements to n bytes. n <= 0 logs them whole.
func WithMaxSQLLength(n int) GormLoggerOption {
	return func(l *GormLogger) {
		l.maxSQLLength = n
	}
}

// WithIgnoreRecordNotFoundError controls whether lookups of absent keys are logged as errors
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.ignoreRecordNotFoundError = ignore
	}
}

// NewGormLogger creates a GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	gl := &GormLogger{
		logger:                    zapLogger.Named("kv.sql"),
		logLevel:                  level,
		slowThreshold:             200 * time.Millisecond,
		maxSQLLength:              DefaultMaxSQLLength,
		ignoreRecordNotFoundError: true,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := l.statementFields(ctx, sql, rows, elapsed)

	switch {
	case err != nil:
		if l.logLevel < gormlogger.Error {
			return
		}
		if l.ignoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		l.logger.Error("SQL statement failed", append(fields, zap.Error(err))...)

	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		if l.logLevel >= gormlogger.Warn {
			l.logger.Warn("Slow SQL statement", append(fields, zap.Duration("threshold", l.slowThreshold))...)
		}

	case l.logLevel >= gormlogger.Info:
		if rows == 0 && IsVersionstampCheck(sql) {
			l.logger.Debug("SQL versionstamp check missed", fields...)
			return
		}
		l.logger.Debug("SQL statement", fields...)
	}
}

func (l *GormLogger) statementFields(ctx context.Context, sql string, rows int64, elapsed time.Duration) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", truncateSQL(sql, l.maxSQLLength)),
	)
	if familyID := GetFamilyID(ctx); familyID != "" {
		fields = append(fields, zap.String("family_id", familyID))
	}
	if userID := GetUserID(ctx); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	return fields
}

// IsVersionstampCheck reports whether sql is one of the conditional statements the SQL store
// uses for commit checks: an update guarded by a versionstamp or an insert that skips existing keys.
func IsVersionstampCheck(sql string) bool {
	upper := strings.ToUpper(sql)
	switch {
	case strings.HasPrefix(upper, "UPDATE") && strings.Contains(upper, "VERSIONSTAMP ="):
		return true
	case strings.HasPrefix(upper, "INSERT") && strings.Contains(upper, "ON CONFLICT DO NOTHING"):
		return true
	}
	return false
}

func truncateSQL(sql string, n int) string {
	if n <= 0 || len(sql) <= n {
		return sql
	}
	return sql[:n] + "...(truncated)"
}

// MapGormLogLevel maps the application log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
