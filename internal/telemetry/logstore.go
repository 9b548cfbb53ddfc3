package telemetry

import (
	"context"

	"github.com/xela07ax/mdrouter/internal/domain"
	"go.uber.org/zap"
)

// LogStore — история вызовов без базы: пачки уходят в лог.
// Успехи пишутся на Debug, отказы на Warn.
type LogStore struct {
	logger *zap.Logger
}

func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger.With(zap.String("mod", "call-history"))}
}

func (s *LogStore) WriteBatch(ctx context.Context, outcomes []domain.CallOutcome) error {
	var failed int
	for _, o := range outcomes {
		if o.Success {
			s.logger.Debug("call",
				zap.String("id", o.ID),
				zap.String("endpoint_id", o.EndpointID),
				zap.Float64("response_time", o.ResponseTime),
				zap.Int("records", o.RecordCount))
			continue
		}
		failed++
		s.logger.Warn("call failed",
			zap.String("id", o.ID),
			zap.String("endpoint_id", o.EndpointID),
			zap.String("caller", o.Caller),
			zap.String("error", o.ErrorMessage))
	}
	s.logger.Info("call history batch", zap.Int("size", len(outcomes)), zap.Int("failed", failed))
	return nil
}
