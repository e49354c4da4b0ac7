package captioner

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then an in-flight slot. Both
// waits share one MaxWait budget. Returns a release func to be deferred.
func (m *Cache) beginGeneration(ctx context.Context, device string) (func(), error) {
	if m.isClosed() {
		return func() {}, ErrClosed
	}

	timer := time.NewTimer(m.cfg.MaxWait)
	defer timer.Stop()

	select {
	case m.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		backpressureTotal.WithLabelValues("queue_full").Inc()
		return func() {}, tooBusyError{device: device}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	select {
	case m.genCh <- struct{}{}:
		// Close may have handed this slot back after shutting the engine down.
		if m.isClosed() {
			<-m.genCh
			return func() {}, ErrClosed
		}
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		backpressureTotal.WithLabelValues("wait_timeout").Inc()
		return func() {}, tooBusyError{device: device}
	}
}

func (m *Cache) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
