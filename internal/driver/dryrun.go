package driver

import (
	"context"
	"iter"
	"log/slog"
)

// DryRun оборачивает драйвер так, что сессии открываются и контакты
// перечисляются по-настоящему, а SendMessage ничего не отправляет.
type DryRun struct {
	inner  Driver
	logger *slog.Logger
}

// NewDryRun создаёт DryRun поверх inner.
func NewDryRun(inner Driver, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{inner: inner, logger: logger}
}

// OpenSession открывает сессию у вложенного драйвера.
func (d *DryRun) OpenSession(ctx context.Context, profilePath string) (Session, error) {
	s, err := d.inner.OpenSession(ctx, profilePath)
	if err != nil {
		return nil, err
	}
	return &dryRunSession{inner: s, logger: d.logger}, nil
}

type dryRunSession struct {
	inner  Session
	logger *slog.Logger
}

func (s *dryRunSession) ListAvailableContacts(ctx context.Context) iter.Seq2[Candidate, error] {
	return s.inner.ListAvailableContacts(ctx)
}

func (s *dryRunSession) SendMessage(_ context.Context, jid, body string) error {
	s.logger.Info("simulated send", "contact_jid", jid, "length", len(body))
	return nil
}

func (s *dryRunSession) Close() error {
	return s.inner.Close()
}
