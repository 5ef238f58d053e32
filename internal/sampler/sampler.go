package sampler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sampler проводит одно окно измерений от открытия до закрытия
type Sampler struct {
	settings Settings
	sources  Sources
	clock    Clock
	logger   *zap.Logger
}

// New создает сэмплер; clock == nil означает системное время
func New(settings Settings, sources Sources, clock Clock, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		settings: settings,
		sources:  sources,
		clock:    clock,
		logger:   logger,
	}
}

// Run открывает окно, выполняет тики до исчерпания плана или смены минуты и закрывает окно.
// Ошибка открытия оборачивает ErrSetup; отмена контекста прерывает окно без результата.
func (s *Sampler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	window := NewWindow(s.settings, s.sources, s.clock, s.logger)

	if err := window.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open sampling window: %w", err)
	}

	for !window.Done() {
		if err := window.Tick(ctx); err != nil {
			return nil, fmt.Errorf("sampling interrupted: %w", err)
		}
	}

	result := window.Close(ctx)

	s.logger.Info("Sampling completed",
		zap.Int("ticks", result.Ticks),
		zap.Int("target_ticks", result.Target),
		zap.Duration("window_time", result.Elapsed),
		zap.Duration("total_time", time.Since(start)))

	return result, nil
}
