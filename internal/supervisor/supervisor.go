// Package supervisor keeps the forwarding identity running while a
// credential is stored and reports its failures to the administrator.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/model"
)

// State of the forwarding identity
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// Runner is one connected forwarding identity. Run blocks until ctx is
// cancelled or the connection fails.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory connects a forwarding identity with credential
type RunnerFactory func(ctx context.Context, credential string) (Runner, error)

// Notifier sends a message to the administrator
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// CredentialSource provides the snapshot holding the stored credential
type CredentialSource interface {
	Load(ctx context.Context) (*model.Snapshot, error)
}

type task struct {
	credential string
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

// Supervisor starts, stops and restarts the forwarding identity so that it
// follows the stored credential. All transitions happen on the Run
// goroutine; Trigger only asks for a reconcile.
type Supervisor struct {
	creds    CredentialSource
	factory  RunnerFactory
	notifier Notifier
	metrics  *metrics.Metrics

	trigger chan struct{}
	exited  chan *task
	closed  chan struct{}

	// owned by the Run goroutine
	current      *task
	rejected     string
	lastStarted  string
	failedStreak int

	mu      sync.RWMutex
	state   State
	lastErr error
}

// New creates a supervisor
func New(creds CredentialSource, factory RunnerFactory, notifier Notifier, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		creds:    creds,
		factory:  factory,
		notifier: notifier,
		metrics:  m,
		trigger:  make(chan struct{}, 1),
		exited:   make(chan *task),
		closed:   make(chan struct{}),
		state:    StateStopped,
	}
}

// Run reconciles on start, on every Trigger and whenever the identity
// exits, until ctx is cancelled. The running identity is stopped before
// Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.closed)

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.setState(StateStopped, nil)
			logrus.Info("Supervisor stopped")
			return nil
		case <-s.trigger:
			s.reconcile(ctx)
		case t := <-s.exited:
			s.handleExit(ctx, t)
		}
	}
}

// Trigger asks the Run goroutine to reconcile; it never blocks
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// State returns the current state of the forwarding identity
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status describes the state for display
func (s *Supervisor) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateFailed && s.lastErr != nil {
		return fmt.Sprintf("%s: %v", s.state, s.lastErr)
	}
	return string(s.state)
}

func (s *Supervisor) reconcile(ctx context.Context) {
	snap, err := s.creds.Load(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Cannot read forwarder credential, leaving forwarder as is")
		return
	}
	credential := snap.Session

	if s.current != nil && s.current.credential == credential {
		return
	}
	if s.current != nil {
		logrus.Info("Forwarder credential changed, stopping forwarder")
		s.stopCurrent()
		s.setState(StateStopped, nil)
	}

	if credential == "" {
		s.rejected = ""
		s.failedStreak = 0
		return
	}
	if credential == s.rejected {
		return
	}
	if credential != s.lastStarted {
		s.failedStreak = 0
	}

	runner, err := s.factory(ctx, credential)
	if err != nil {
		s.rejected = credential
		s.setState(StateFailed, err)
		logrus.WithError(err).Error("Failed to start forwarder")
		s.notify(ctx, fmt.Sprintf("The forwarder could not start: %v\nUse /logout and /login with a valid credential.", err))
		return
	}

	s.start(ctx, credential, runner)
}

func (s *Supervisor) start(ctx context.Context, credential string, runner Runner) {
	runCtx, cancel := context.WithCancel(ctx)
	t := &task{
		credential: credential,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.current = t
	s.lastStarted = credential

	go func() {
		t.err = runner.Run(runCtx)
		close(t.done)
		select {
		case s.exited <- t:
		case <-s.closed:
		}
	}()

	s.setState(StateRunning, nil)
	logrus.Info("Forwarder started")
}

func (s *Supervisor) handleExit(ctx context.Context, t *task) {
	if t != s.current {
		return
	}
	s.current = nil
	if ctx.Err() != nil {
		return
	}

	err := t.err
	if err == nil || errors.Is(err, context.Canceled) {
		err = errors.New("forwarder stopped unexpectedly")
	}
	s.setState(StateFailed, err)
	s.failedStreak++
	logrus.WithError(err).WithField("failures", s.failedStreak).Error("Forwarder exited, it will be restarted")

	if s.failedStreak == 1 {
		s.notify(ctx, fmt.Sprintf("The forwarder stopped: %v\nIt will be restarted automatically.", err))
	}
}

func (s *Supervisor) stopCurrent() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	<-s.current.done
	s.current = nil
}

func (s *Supervisor) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()

	if s.metrics != nil {
		running := 0.0
		if state == StateRunning {
			running = 1
		}
		s.metrics.ForwarderRunning.Set(running)
	}
}

func (s *Supervisor) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		logrus.WithError(err).Warn("Failed to notify administrator")
	}
}
