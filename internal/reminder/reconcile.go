package reminder

import (
	"context"
	"fmt"

	logx "bumpbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a usable reconcile schedule.
func ValidateSpec(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid reconcile spec %q: %w", spec, err)
	}
	return nil
}

// Reconcile compares memory against the store and repairs drift.
//
//   - row present, nothing in memory: same as Recover
//   - task pending, row missing or different: re-persist the task's time
//
// It runs under the state lock, so it cannot race Schedule, Cancel or fire
// into a double send.
func (s *Service) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return s.recoverLocked(ctx)
	}
	t := s.cur
	if !t.pending() {
		return nil
	}
	at, ok, err := s.store.NextFire(ctx)
	if err != nil {
		return fmt.Errorf("read next fire: %w", err)
	}
	if ok && at.Equal(t.at) {
		return nil
	}
	s.log.Warn("persisted reminder drifted, re-persisting",
		logx.Bool("row_present", ok),
		logx.Time("next_fire_at", t.at),
	)
	if err := s.store.PutNextFire(ctx, t.at); err != nil {
		return fmt.Errorf("re-persist next fire: %w", err)
	}
	return nil
}

// Start records ctx as the base for notify calls and starts the reconcile job.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	s.started = true
	if s.cron != nil {
		return nil
	}
	return s.startCronLocked()
}

func (s *Service) startCronLocked() error {
	spec := s.cfg.ReconcileSpec
	if spec == "" {
		return nil
	}
	ctx := s.baseCtx
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Reconcile(ctx); err != nil {
			s.log.Warn("reconcile failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("add reconcile job: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Debug("reconcile job started", logx.String("spec", spec))
	return nil
}

// restartCronLocked swaps the reconcile job after a schedule change. The old
// job is returned so the caller can stop it without holding mu; a running
// pass takes mu itself.
func (s *Service) restartCronLocked() (*cron.Cron, error) {
	old := s.cron
	s.cron = nil
	return old, s.startCronLocked()
}

// Stop stops the reconcile job and waits for a running pass to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
