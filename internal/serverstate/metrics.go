package serverstate

import (
	"context"
	"time"
)

// RunMetricsLog periodically logs aggregate server stats until ctx is
// canceled, the same periodic-sampling shape the teacher's RunMetrics gave
// its per-room datagram/byte counters, retargeted at room/user/session
// counts.
func (s *State) RunMetricsLog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rooms, users, sessions := s.RoomCount(), s.UserCount(), s.SessionCount()
			if rooms > 0 || users > 0 || sessions > 0 {
				s.log.Info("server metrics", "rooms", rooms, "users", users, "sessions", sessions)
			}
		}
	}
}
