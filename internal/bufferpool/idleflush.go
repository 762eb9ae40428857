package bufferpool

import (
	"time"

	"github.com/sourcegraph/conc"
)

// idleFlusher calls ForceFlushPool once per tick of a fixed interval. It does
// not track pin activity: a tick flushes whether or not pages were pinned
// since the last one. It never pins, unpins, or touches frame bookkeeping itself, so
// it adds no new race surface to the single-threaded pin/unpin algorithm; it
// is purely a convenience and is off unless StartIdleFlusher is called.
type idleFlusher struct {
	wg     conc.WaitGroup
	stopCh chan struct{}
}

// StartIdleFlusher launches a background goroutine that calls
// ForceFlushPool every interval until StopIdleFlusher is called or the pool
// shuts down. Calling it twice without stopping in between replaces the
// previous flusher.
func (p *Pool) StartIdleFlusher(interval time.Duration) {
	p.mu.Lock()
	if p.idle != nil {
		p.mu.Unlock()
		p.StopIdleFlusher()
		p.mu.Lock()
	}
	f := &idleFlusher{stopCh: make(chan struct{})}
	p.idle = f
	p.mu.Unlock()

	f.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = p.ForceFlushPool()
			case <-f.stopCh:
				return
			}
		}
	})
}

// StopIdleFlusher stops a running idle flusher and waits for its goroutine
// to exit. It is a no-op if no flusher is running.
func (p *Pool) StopIdleFlusher() {
	p.mu.Lock()
	f := p.idle
	p.idle = nil
	p.mu.Unlock()

	if f == nil {
		return
	}
	close(f.stopCh)
	f.wg.Wait()
}
