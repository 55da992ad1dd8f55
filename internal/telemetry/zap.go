package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAPI implements API on a zap logger.
type ZapAPI struct {
	logger *zap.Logger
}

// NewZapAPI builds a production zap logger, at debug level when verbose is set.
func NewZapAPI(verbose bool) (ZapAPI, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return ZapAPI{}, fmt.Errorf("build logger: %w", err)
	}
	return ZapAPI{logger: logger}, nil
}

// WrapZap uses an existing logger.
func WrapZap(logger *zap.Logger) ZapAPI {
	return ZapAPI{logger: logger}
}

func (ZapAPI) fields(params []any) []zap.Field {
	fields := make([]zap.Field, 0, len(params))
	for i, p := range params {
		key := fmt.Sprintf("params.%d", i)
		if err, ok := p.(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, p))
	}
	return fields
}

func (z ZapAPI) ReportBroken(id string, params ...any) {
	z.logger.Error("broken component", append([]zap.Field{zap.String("id", id)}, z.fields(params)...)...)
}

func (z ZapAPI) ReportWarning(id string, params ...any) {
	z.logger.Warn("warning", append([]zap.Field{zap.String("id", id)}, z.fields(params)...)...)
}

func (z ZapAPI) ReportInfo(msg string, params ...any) {
	z.logger.Info(msg, z.fields(params)...)
}

func (z ZapAPI) ReportDebug(msg string, params ...any) {
	z.logger.Debug(msg, z.fields(params)...)
}

func (z ZapAPI) ReportCount(id string, count int64) {
	z.logger.Info("count", zap.String("id", id), zap.Int64("n", count))
}

// Sync flushes buffered log entries.
func (z ZapAPI) Sync() error {
	return z.logger.Sync()
}
