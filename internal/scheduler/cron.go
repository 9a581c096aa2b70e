package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Courier/internal/lease"
)

// DefaultSweepSchedule — sweep stale lease'ов каждые 5 минут.
const DefaultSweepSchedule = "*/5 * * * *"

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule проверяет cron-выражение расписания sweep.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextSweep вычисляет время следующего sweep после from.
func NextSweep(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

// Sweeper периодически снимает stale lease'ы.
//
// Acquire сам снимает устаревший lease, но аккаунт, на который больше
// никто не ставит задачи, без sweep остался бы занятым навсегда.
type Sweeper struct {
	leases *lease.Manager
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper создаёт Sweeper с расписанием expr (default: DefaultSweepSchedule).
func NewSweeper(leases *lease.Manager, expr string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if expr == "" {
		expr = DefaultSweepSchedule
	}

	s := &Sweeper{
		leases: leases,
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger,
	}

	if _, err := s.cron.AddFunc(expr, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Start выполняет sweep сразу и запускает расписание.
func (s *Sweeper) Start(ctx context.Context) {
	s.Sweep(ctx)
	s.cron.Start()
	s.logger.Info("lease sweeper started", "next", s.next())
}

// Stop останавливает расписание и ждёт текущий sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("lease sweeper stopped")
}

// Sweep выполняет один проход.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	reclaimed, err := s.leases.Sweep(ctx)
	if err != nil {
		s.logger.Error("lease sweep failed", "error", err)
	}
	if len(reclaimed) > 0 {
		s.logger.Warn("stale leases reclaimed", "count", len(reclaimed), "accounts", reclaimed)
	} else {
		s.logger.Debug("lease sweep completed, nothing to reclaim")
	}
	return reclaimed
}

func (s *Sweeper) next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
