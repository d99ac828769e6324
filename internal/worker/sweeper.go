package worker

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/notify-engine/internal/metrics"
)

func (p *Pool) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
				zlog.Logger.Error().Err(err).Msg("failed to reclaim stuck entries")
			}
		}
	}
}

// Sweep returns entries whose claim outlived the processing timeout to the
// queue. A reclaimed notification may be sent twice if the original worker
// did reach the provider.
func (p *Pool) Sweep(ctx context.Context) (int, error) {
	now := p.now()

	n, err := p.store.ReclaimStuck(ctx, now.Add(-p.cfg.ProcessingTimeout), now)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		metrics.QueueReclaimed.Add(float64(n))
		zlog.Logger.Warn().
			Int("count", n).
			Dur("processing_timeout", p.cfg.ProcessingTimeout).
			Msg("reclaimed stuck queue entries, duplicate sends are possible")
	}

	return n, nil
}
