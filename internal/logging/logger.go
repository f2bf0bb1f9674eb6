// Package logging provides the process-wide structured logger. It mirrors
// the teacher's global-singleton-via-sync.Once pattern: Initialize sets it
// up once per process, GetLogger falls back to a development logger for
// callers that run before (or without) Initialize, such as tests.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RoomIDKey        contextKey = "room_id"
	ParticipantIDKey contextKey = "participant_id"
	MonitorIDKey     contextKey = "monitor_id"
)

// Initialize sets up the global logger. Safe to call more than once; only
// the first call takes effect.
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if development {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		logger, err = cfg.Build(zap.AddCallerSkip(1))
	})
	return err
}

func GetLogger() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", v))
	}
	if v, ok := ctx.Value(RoomIDKey).(string); ok {
		fields = append(fields, zap.String("room_id", v))
	}
	if v, ok := ctx.Value(ParticipantIDKey).(string); ok {
		fields = append(fields, zap.String("participant_id", v))
	}
	if v, ok := ctx.Value(MonitorIDKey).(string); ok {
		fields = append(fields, zap.String("monitor_id", v))
	}
	fields = append(fields, zap.String("service", "sfu-coordinator"))
	return fields
}

// WithRoom returns a child context carrying roomId for later log calls.
func WithRoom(ctx context.Context, roomId string) context.Context {
	return context.WithValue(ctx, RoomIDKey, roomId)
}

// WithParticipant returns a child context carrying participantId.
func WithParticipant(ctx context.Context, participantId string) context.Context {
	return context.WithValue(ctx, ParticipantIDKey, participantId)
}

// WithMonitor returns a child context carrying monitorId.
func WithMonitor(ctx context.Context, monitorId string) context.Context {
	return context.WithValue(ctx, MonitorIDKey, monitorId)
}
