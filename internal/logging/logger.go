// Package logging builds the service-wide zap logger.
package logging

import (
	"go.uber.org/zap"
)

// NewLogger creates a production JSON logger tagging every entry with the
// service name.
func NewLogger(serviceName string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// WithRequestID returns a child logger carrying the request id of the
// submission or HTTP request being handled.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}
