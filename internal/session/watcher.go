package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the session for inactivity on a fixed interval. The browser
// frontend runs the same check client-side; this is the server-side
// equivalent.
type Watcher struct {
	session  *Session
	logger   *zap.Logger
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher polling every interval.
func NewWatcher(s *Session, logger *zap.Logger, interval time.Duration) *Watcher {
	return &Watcher{
		session:  s,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (w *Watcher) Start() {
	w.logger.Info("session watcher started", zap.Duration("interval", w.interval))
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				expired, err := w.session.CheckInactivity(ctx)
				cancel()
				if err != nil {
					w.logger.Error("inactivity check failed", zap.Error(err))
					continue
				}
				if expired {
					w.logger.Info("session expired by watcher")
				}
			}
		}
	}()
}

// Stop terminates the polling goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
	w.logger.Info("session watcher stopped")
}
