// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run starts the ticker loop and emits one PollResult per polled meter on
// the provided channel. One goroutine per link. No overlap. No retries.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, res := range p.PollOnce() {
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
