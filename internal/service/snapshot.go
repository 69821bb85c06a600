package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Saver interface {
	SaveAll(ctx context.Context) error
}

// Snapshotter saves every live product on a fixed interval and once more on
// Stop. A failed save is logged and retried on the next tick only.
type Snapshotter struct {
	saver    Saver
	interval time.Duration
	logger   *zap.Logger

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSnapshotter(saver Saver, interval time.Duration, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.L()
	}
	return &Snapshotter{
		saver:    saver,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *Snapshotter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.save(ctx)
			}
		}
	}()
}

// Stop ends the ticker and performs the final save. It is safe to call more
// than once; only the first call saves.
func (s *Snapshotter) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		err = s.saver.SaveAll(ctx)
		if err != nil {
			s.logger.Error("failed to save products on shutdown", zap.Error(err))
			return
		}
		s.logger.Info("Saved products on shutdown")
	})
	return err
}

func (s *Snapshotter) save(ctx context.Context) {
	start := time.Now()
	if err := s.saver.SaveAll(ctx); err != nil {
		s.logger.Error("failed to save products", zap.Error(err))
		return
	}
	s.logger.Debug("Saved products", zap.Duration("took", time.Since(start)))
}
