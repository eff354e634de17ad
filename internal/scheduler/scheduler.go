package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/config"
)

// Refresher re-reads the rule snapshot from its backend
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reconciler brings the forwarding identity in line with the stored credential
type Reconciler interface {
	Trigger()
}

// Scheduler runs the periodic rule refresh and forwarder reconcile jobs
type Scheduler struct {
	cron        *cron.Cron
	refreshID   cron.EntryID
	superviseID cron.EntryID
	config      config.SchedulerConfig
	rules       Refresher
	forwarder   Reconciler
	ctx         context.Context
	cancel      context.CancelFunc
	isRunning   bool
	mu          sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg config.SchedulerConfig, rules Refresher, forwarder Reconciler) *Scheduler {
	return &Scheduler{
		config:    cfg,
		rules:     rules,
		forwarder: forwarder,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New()
	refreshID, err := c.AddFunc(every(s.config.RefreshInterval), s.refreshRules)
	if err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}
	superviseID, err := c.AddFunc(every(s.config.SuperviseInterval), s.reconcileForwarder)
	if err != nil {
		return fmt.Errorf("failed to add supervise job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.refreshID = refreshID
	s.superviseID = superviseID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started: rule refresh every %s, forwarder check every %s",
		s.config.RefreshInterval, s.config.SuperviseInterval)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	// jobs read isRunning, so wait without holding the lock
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// refreshRules picks up rule edits made outside this process
func (s *Scheduler) refreshRules() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if err := s.rules.Refresh(ctx); err != nil {
		// the store already logged it and kept its cache
		return
	}
	logrus.Debug("Refreshed forwarding rules")
}

func (s *Scheduler) reconcileForwarder() {
	if s.forwarder != nil {
		s.forwarder.Trigger()
	}
}

// RunOnce refreshes the rules and reconciles the forwarder immediately
func (s *Scheduler) RunOnce(ctx context.Context) error {
	logrus.Info("Running scheduled jobs once")
	s.reconcileForwarder()
	return s.rules.Refresh(ctx)
}

// GetNextRun returns the time of the next rule refresh
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.refreshID).Next
}

// GetLastRun returns the time of the last rule refresh
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.refreshID).Prev
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
