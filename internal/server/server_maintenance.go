package server

import (
	"context"
	"time"
)

const defaultJanitorPeriod = 5 * time.Minute

// runJanitor periodically prunes rate-limit windows and expired pending
// tokens until ctx is done.
func (s *Server) runJanitor(ctx context.Context) {
	period := s.cfg.JanitorPeriod
	if period <= 0 {
		period = defaultJanitorPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.api.Maintain()
		}
	}
}
