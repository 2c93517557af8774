package proxy

import "go.uber.org/zap"

// Logger is the logging surface the proxy needs. It is satisfied by the
// gofulmen logger used in production and by *zap.Logger in tests.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}
