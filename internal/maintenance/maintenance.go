package maintenance

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// PendingExpirer is the store surface the maintenance jobs need.
type PendingExpirer interface {
	ExpirePendingBefore(cutoff string) (int64, error)
}

// Service runs background housekeeping: pending log entries that were never
// confirmed or cancelled are expired after their TTL so stale previews
// cannot be confirmed days later.
type Service struct {
	st     PendingExpirer
	ttl    time.Duration
	cron   *cron.Cron
	logger *log.Logger
}

func New(st PendingExpirer, pendingTTL time.Duration) *Service {
	return &Service{
		st:     st,
		ttl:    pendingTTL,
		cron:   cron.New(),
		logger: log.New(log.Writer(), "[maintenance] ", log.LstdFlags),
	}
}

// Start schedules the jobs and runs one expiry sweep immediately to clear
// anything that aged out while the process was down.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.ExpirePending); err != nil {
		return err
	}
	s.cron.Start()
	go s.ExpirePending()
	return nil
}

func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// ExpirePending cancels all pending log entries older than the TTL.
func (s *Service) ExpirePending() {
	cutoff := time.Now().UTC().Add(-s.ttl).Format(time.RFC3339)
	n, err := s.st.ExpirePendingBefore(cutoff)
	if err != nil {
		s.logger.Printf("expire pending logs: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("expired %d pending log entries older than %s", n, s.ttl)
	}
}
