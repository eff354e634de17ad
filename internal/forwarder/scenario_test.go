package forwarder_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/command"
	"telegram-forwarder/internal/forwarder"
	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/rulestore"
	"telegram-forwarder/internal/storage"
)

type recordingSink struct {
	destinations []int64
}

func (s *recordingSink) Copy(ctx context.Context, evt forwarder.Event, destination int64) error {
	s.destinations = append(s.destinations, destination)
	return nil
}

func TestAdminCommandsDriveForwarding(t *testing.T) {
	ctx := context.Background()
	store := rulestore.New(storage.NewFileBackend(filepath.Join(t.TempDir(), "config.json")))
	require.NoError(t, store.Bootstrap(ctx, nil))

	processor := command.NewProcessor(store)
	sink := &recordingSink{}
	engine := forwarder.NewEngine(store, sink, metrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, processor.AddRule(ctx, "news", "-100111"))
	_, err := processor.AddSources(ctx, "news", []string{"-100222", "-100333"})
	require.NoError(t, err)

	outcome := engine.Handle(ctx, forwarder.Event{ChatID: -100222, MessageID: 1})
	assert.Equal(t, forwarder.OutcomeForwarded, outcome)
	assert.Equal(t, []int64{-100111}, sink.destinations)

	listing, err := processor.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news -> -100111, sources: -100222, -100333", listing)

	// a deleted rule stops matching at once
	require.NoError(t, processor.DeleteRule(ctx, "news"))
	assert.Equal(t, forwarder.OutcomeUnmatched, engine.Handle(ctx, forwarder.Event{ChatID: -100222, MessageID: 2}))
	assert.Len(t, sink.destinations, 1)
}
