package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"telegram-forwarder/internal/forwarder"
	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/supervisor"
)

// ForwarderRunner feeds the forwarding bot's inbound messages to an engine
type ForwarderRunner struct {
	bot         *tgbotapi.BotAPI
	engine      *forwarder.Engine
	pollTimeout int
}

// NewForwarderRunner creates a runner over an authenticated bot
func NewForwarderRunner(bot *tgbotapi.BotAPI, engine *forwarder.Engine, pollTimeout int) *ForwarderRunner {
	return &ForwarderRunner{
		bot:         bot,
		engine:      engine,
		pollTimeout: pollTimeout,
	}
}

// Run polls updates until ctx is cancelled or polling is rejected. Events
// are handled one at a time in arrival order.
func (r *ForwarderRunner) Run(ctx context.Context) error {
	events := make(chan forwarder.Event)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pollUpdates(gctx, r.bot, r.pollTimeout, func(update tgbotapi.Update) error {
			msg := inboundMessage(update)
			if msg == nil || msg.Chat == nil {
				return nil
			}
			select {
			case events <- eventFromMessage(msg):
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	g.Go(func() error {
		return r.engine.Run(gctx, events)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// NewRunnerFactory returns a factory that logs the forwarding bot in with a
// credential and wires it to a fresh engine over rules
func NewRunnerFactory(rules forwarder.RuleSource, m *metrics.Metrics, opts Options) supervisor.RunnerFactory {
	return func(ctx context.Context, credential string) (supervisor.Runner, error) {
		bot, err := Connect(credential, opts)
		if err != nil {
			return nil, err
		}
		logrus.WithField("username", bot.Self.UserName).Info("Forwarding identity logged in")

		engine := forwarder.NewEngine(rules, NewSink(bot), m)
		return NewForwarderRunner(bot, engine, opts.PollTimeout), nil
	}
}
