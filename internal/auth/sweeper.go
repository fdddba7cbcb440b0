package auth

import (
	"context"
	"fmt"
	"time"
)

const DefaultSweepInterval = time.Hour

// StartSweeper deletes expired tokens every interval until ctx is done.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.log.Error("purge expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.log.Debug("purged expired tokens", "count", n)
			}
		}
	}
}

// PurgeExpired removes every token whose expiry has passed. Cached copies
// expire on their own TTL.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM viewer_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
