package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cleanupTask periodically evicts expired entries until stopped
type cleanupTask struct {
	freq     time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newCleanupTask(freq time.Duration, logger *zap.Logger) *cleanupTask {
	return &cleanupTask{freq: freq, logger: logger, stopCh: make(chan struct{})}
}

// start runs cleanup on every tick; a non-positive frequency disables it
func (t *cleanupTask) start(cleanup func(context.Context) error) {
	if t.freq <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(t.freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := cleanup(context.Background()); err != nil {
					t.logger.Error("Failed to clean up cache", zap.Error(err))
				}
			case <-t.stopCh:
				return
			}
		}
	}()
}

func (t *cleanupTask) stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}
