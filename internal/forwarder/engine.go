package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/model"
)

// ErrForward wraps any copy failure that caused a message to be dropped
var ErrForward = errors.New("forward failed")

// ErrSourceClosed is returned by Run when the event stream ends on its own
var ErrSourceClosed = errors.New("event source closed")

// RateLimitedError asks the caller to wait RetryAfter before copying again
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// Event is one inbound message
type Event struct {
	ChatID    int64
	MessageID int
	// Service marks platform notifications (joins, title changes, pins)
	Service bool
}

// Sink copies a message into another chat
type Sink interface {
	Copy(ctx context.Context, evt Event, destination int64) error
}

// RuleSource hands out the current rule snapshot
type RuleSource interface {
	Load(ctx context.Context) (*model.Snapshot, error)
}

// Outcome is what happened to one event
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeUnmatched
	OutcomeForwarded
	OutcomeDropped
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnmatched:
		return "unmatched"
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeDropped:
		return "dropped"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Engine matches inbound events against the rule snapshot and copies
// matching ones to the rule's destination. Forwarding is best effort: a
// failed copy is logged and dropped.
type Engine struct {
	rules   RuleSource
	sink    Sink
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a forwarding engine
func NewEngine(rules RuleSource, sink Sink, m *metrics.Metrics) *Engine {
	return &Engine{
		rules:   rules,
		sink:    sink,
		metrics: m,
		sleep:   sleepContext,
	}
}

// Run handles events one at a time in arrival order until ctx is done or
// the channel is closed
func (e *Engine) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSourceClosed
			}
			e.Handle(ctx, evt)
		}
	}
}

// Handle processes a single event. At most one copy succeeds per event:
// the first rule in insertion order whose sources contain the origin chat
// wins.
func (e *Engine) Handle(ctx context.Context, evt Event) Outcome {
	e.metrics.EventsSeen.Inc()

	if evt.Service {
		logrus.Debugf("Ignoring service message %d in chat %d", evt.MessageID, evt.ChatID)
		return OutcomeIgnored
	}

	snap, err := e.rules.Load(ctx)
	if err != nil {
		logrus.Debugf("No rules available, not forwarding message %d from %d", evt.MessageID, evt.ChatID)
		return OutcomeUnmatched
	}

	rule, ok := snap.Match(evt.ChatID)
	if !ok {
		return OutcomeUnmatched
	}
	e.metrics.MatchCount.Inc()

	start := time.Now()
	defer func() {
		e.metrics.ForwardDuration.Observe(time.Since(start).Seconds())
	}()

	log := logrus.WithFields(logrus.Fields{
		"rule":        rule.Name,
		"source":      evt.ChatID,
		"destination": rule.Destination,
		"message_id":  evt.MessageID,
	})

	err = e.sink.Copy(ctx, evt, rule.Destination)
	if err == nil {
		e.metrics.ForwardSuccesses.Inc()
		log.Info("Forwarded message")
		return OutcomeForwarded
	}

	var limited *RateLimitedError
	if errors.As(err, &limited) {
		e.metrics.RateLimited.Inc()
		log.WithField("retry_after", limited.RetryAfter.String()).Warn("Rate limited, waiting before retrying once")

		if err := e.sleep(ctx, limited.RetryAfter); err != nil {
			e.metrics.ForwardFailures.Inc()
			log.WithError(err).Warn("Shutting down during rate limit backoff, abandoning message")
			return OutcomeAbandoned
		}

		err = e.sink.Copy(ctx, evt, rule.Destination)
		if err == nil {
			e.metrics.ForwardSuccesses.Inc()
			log.Info("Forwarded message after rate limit backoff")
			return OutcomeForwarded
		}
		if errors.As(err, &limited) {
			e.metrics.RateLimited.Inc()
		}
	}

	e.metrics.ForwardFailures.Inc()
	log.WithError(fmt.Errorf("%w: %w", ErrForward, err)).Error("Failed to forward message, dropping it")
	return OutcomeDropped
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
