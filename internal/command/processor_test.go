package command

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/model"
	"telegram-forwarder/internal/rulestore"
	"telegram-forwarder/internal/storage"
)

// switchBackend fails reads or writes on demand
type switchBackend struct {
	storage.Backend
	failWrite atomic.Bool
	failRead  atomic.Bool
}

func (b *switchBackend) Read(ctx context.Context) ([]byte, error) {
	if b.failRead.Load() {
		return nil, fmt.Errorf("%w: timeout", storage.ErrUnavailable)
	}
	return b.Backend.Read(ctx)
}

func (b *switchBackend) Write(ctx context.Context, data []byte) error {
	if b.failWrite.Load() {
		return fmt.Errorf("%w: read-only file system", storage.ErrUnavailable)
	}
	return b.Backend.Write(ctx, data)
}

func newTestProcessor(t *testing.T, opts ...Option) (*Processor, *rulestore.Store, *switchBackend) {
	t.Helper()
	backend := &switchBackend{Backend: storage.NewFileBackend(filepath.Join(t.TempDir(), "config.json"))}
	store := rulestore.New(backend)
	return NewProcessor(store, opts...), store, backend
}

func loadRules(t *testing.T, store *rulestore.Store) []model.Rule {
	t.Helper()
	store.Invalidate()
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	return snap.Rules
}

func TestAddRuleThenList(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t)

	require.NoError(t, p.AddRule(ctx, "news", "-100111"))

	listing, err := p.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news -> -100111, sources: none", listing)
	assert.Equal(t, []model.Rule{model.NewRule("news", -100111)}, loadRules(t, store))
}

func TestAddRuleValidation(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t)
	require.NoError(t, p.AddRule(ctx, "news", "1"))

	cases := []struct {
		name, dest string
		want       error
	}{
		{"", "1", ErrEmptyName},
		{"  ", "1", ErrEmptyName},
		{"alerts", "abc", ErrInvalidID},
		{"alerts", "1.5", ErrInvalidID},
		{"news", "2", ErrDuplicateName},
	}
	for _, c := range cases {
		err := p.AddRule(ctx, c.name, c.dest)
		assert.ErrorIs(t, err, c.want, "AddRule(%q, %q)", c.name, c.dest)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	assert.Equal(t, []model.Rule{model.NewRule("news", 1)}, loadRules(t, store))
}

func TestAddSourcesDeduplicatesAndSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t)
	require.NoError(t, p.AddRule(ctx, "news", "-100111"))

	result, err := p.AddSources(ctx, "news", []string{"-100222", "-100222", "abc", "-100333"})
	require.NoError(t, err)
	assert.Equal(t, []int64{-100222, -100333}, result.Added)
	assert.Equal(t, []int64{-100222}, result.Duplicates)
	assert.Equal(t, []string{"abc"}, result.Invalid)
	assert.False(t, result.NothingAdded())

	rules := loadRules(t, store)
	require.Len(t, rules, 1)
	assert.Equal(t, []int64{-100222, -100333}, rules[0].Sources)
}

func TestAddSourcesNothingAdded(t *testing.T) {
	ctx := context.Background()
	p, store, backend := newTestProcessor(t)
	require.NoError(t, p.AddRule(ctx, "news", "1"))
	_, err := p.AddSources(ctx, "news", []string{"5"})
	require.NoError(t, err)

	// nothing to add must not touch the backend
	backend.failWrite.Store(true)
	version := store.Version()

	result, err := p.AddSources(ctx, "news", []string{"5", "x"})
	require.NoError(t, err)
	assert.True(t, result.NothingAdded())
	assert.Equal(t, []int64{5}, result.Duplicates)
	assert.Equal(t, version, store.Version())
}

func TestAddSourcesUnknownRule(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	_, err := p.AddSources(context.Background(), "missing", []string{"1"})
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestDeleteRule(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t)
	require.NoError(t, p.AddRule(ctx, "news", "1"))
	require.NoError(t, p.AddRule(ctx, "alerts", "2"))

	require.NoError(t, p.DeleteRule(ctx, "news"))
	assert.Equal(t, []model.Rule{model.NewRule("alerts", 2)}, loadRules(t, store))

	listing, err := p.ListRules(ctx)
	require.NoError(t, err)
	assert.NotContains(t, listing, "news")

	assert.ErrorIs(t, p.DeleteRule(ctx, "news"), ErrRuleNotFound)
	assert.Equal(t, []model.Rule{model.NewRule("alerts", 2)}, loadRules(t, store))
}

func TestPersistFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	p, _, backend := newTestProcessor(t)
	require.NoError(t, p.AddRule(ctx, "news", "1"))
	backend.failWrite.Store(true)

	err := p.AddRule(ctx, "alerts", "2")
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, rulestore.ErrPersistFailed)

	_, err = p.AddSources(ctx, "news", []string{"7"})
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, p.DeleteRule(ctx, "news"), ErrStorage)

	// the cache never claims what the backend did not accept
	listing, err := p.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news -> 1, sources: none", listing)
}

func TestListRulesEmptyAndUnavailable(t *testing.T) {
	ctx := context.Background()
	p, store, backend := newTestProcessor(t)

	listing, err := p.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No forwarding rules are configured.", listing)

	backend.failRead.Store(true)
	store.Invalidate()
	_, err = p.ListRules(ctx)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestRenderRules(t *testing.T) {
	news := model.NewRule("news", -100111)
	news.AddSource(-100222)
	news.AddSource(-100333)

	assert.Equal(t, "news -> -100111, sources: -100222, -100333\nempty -> 5, sources: none",
		RenderRules([]model.Rule{news, model.NewRule("empty", 5)}))
}

func TestLoginLogout(t *testing.T) {
	ctx := context.Background()
	var changes int
	p, store, _ := newTestProcessor(t, WithCredentialHook(func() { changes++ }))

	assert.ErrorIs(t, p.Logout(ctx), ErrNotLoggedIn)
	assert.ErrorIs(t, p.Login(ctx, " "), ErrEmptyCredential)

	require.NoError(t, p.Login(ctx, "123:abc"))
	assert.ErrorIs(t, p.Login(ctx, "456:def"), ErrAlreadyLoggedIn)

	store.Invalidate()
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", snap.Session)

	require.NoError(t, p.Logout(ctx))
	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Session)
	assert.Equal(t, 2, changes)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProcessor(t, WithForwarderState(func() string { return "running" }))
	require.NoError(t, p.AddRule(ctx, "news", "1"))
	_, err := p.AddSources(ctx, "news", []string{"2", "3"})
	require.NoError(t, err)
	require.NoError(t, p.Login(ctx, "tok"))

	status, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Rules)
	assert.Equal(t, 2, status.Sources)
	assert.True(t, status.LoggedIn)
	assert.Equal(t, "running", status.Forwarder)
	// the cold load plus three saves
	assert.Equal(t, uint64(4), status.Version)
}
