// Package rulestore owns the canonical forwarding rule snapshot: its
// durable copy in a storage backend and the in-memory copy every reader
// shares.
package rulestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/model"
	"telegram-forwarder/internal/storage"
)

var (
	// ErrBackendUnavailable means the backend could not be read or written
	ErrBackendUnavailable = errors.New("rule backend unavailable")
	// ErrCorruptData means the stored payload is not a valid snapshot
	ErrCorruptData = errors.New("stored rules are corrupt")
	// ErrPersistFailed means a Save did not reach the backend; the cache is unchanged
	ErrPersistFailed = errors.New("failed to persist rules")
	// ErrAlreadyBootstrapped means a valid snapshot already exists
	ErrAlreadyBootstrapped = errors.New("rule store already bootstrapped")
)

// Store caches the current snapshot and serializes writes to the backend.
// Readers get the published snapshot without locking; published snapshots
// are never modified.
type Store struct {
	backend   storage.Backend
	writeMu   sync.Mutex
	cache     atomic.Pointer[model.Snapshot]
	version   atomic.Uint64
	onPublish func(*model.Snapshot)
}

// Option configures a Store
type Option func(*Store)

// WithPublishHook registers fn to run after every cache swap
func WithPublishHook(fn func(*model.Snapshot)) Option {
	return func(s *Store) {
		s.onPublish = fn
	}
}

// New creates a store over backend with a cold cache
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the current snapshot, reading the backend when the cache is
// cold. On failure it returns an empty snapshot together with
// ErrBackendUnavailable or ErrCorruptData and leaves the cache cold.
func (s *Store) Load(ctx context.Context) (*model.Snapshot, error) {
	if snap := s.cache.Load(); snap != nil {
		return snap, nil
	}

	snap, err := s.read(ctx)
	if err != nil {
		logrus.WithField("backend", s.backend.Location()).WithError(err).
			Error("Failed to load forwarding rules, using an empty rule set")
		return model.NewSnapshot(), err
	}

	if s.cache.CompareAndSwap(nil, snap) {
		s.published(snap)
		return snap, nil
	}
	// A writer published while we were reading; its snapshot is newer.
	if current := s.cache.Load(); current != nil {
		return current, nil
	}
	return snap, nil
}

// Save persists snap and then publishes it. If the write fails the cache
// keeps the previous snapshot and ErrPersistFailed is returned.
func (s *Store) Save(ctx context.Context, snap *model.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.saveLocked(ctx, snap)
}

// Update runs fn on a private copy of the current snapshot and saves the
// result. The load, fn and save happen under the writer lock so concurrent
// updates never overwrite each other. Errors from fn are returned as is and
// nothing is saved.
func (s *Store) Update(ctx context.Context, fn func(*model.Snapshot) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.Load(ctx)
	if err != nil {
		return err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	return s.saveLocked(ctx, next)
}

// Bootstrap writes the initial snapshot (seed, or an empty one when seed is
// nil) if the backend holds none. A stored payload that fails to decode is
// left untouched and ErrCorruptData is returned.
func (s *Store) Bootstrap(ctx context.Context, seed *model.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.backend.Read(ctx)
	switch {
	case err == nil:
		if _, err := model.DecodeSnapshot(data); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptData, err)
		}
		return ErrAlreadyBootstrapped
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if seed == nil {
		seed = model.NewSnapshot()
	}
	if err := s.saveLocked(ctx, seed); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"backend": s.backend.Location(),
		"rules":   len(seed.Rules),
	}).Info("Bootstrapped forwarding rules")
	return nil
}

// Refresh re-reads the backend and publishes what it finds when it differs
// from the cached snapshot. On failure the last published snapshot stays in
// place.
func (s *Store) Refresh(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.read(ctx)
	if err != nil {
		logrus.WithField("backend", s.backend.Location()).WithError(err).
			Warn("Failed to refresh forwarding rules, keeping the cached rule set")
		return err
	}
	if current := s.cache.Load(); current != nil && sameSnapshot(current, snap) {
		return nil
	}
	s.publish(snap)
	return nil
}

// Invalidate drops the cached snapshot; the next Load reads the backend
func (s *Store) Invalidate() {
	s.cache.Store(nil)
}

// Version counts the snapshots this store has published
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Location identifies the backend record holding the snapshot
func (s *Store) Location() string {
	return s.backend.Location()
}

func (s *Store) read(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return snap, nil
}

func (s *Store) saveLocked(ctx context.Context, snap *model.Snapshot) error {
	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	s.publish(snap.Clone())
	return nil
}

// sameSnapshot compares the persisted form of a and b
func sameSnapshot(a, b *model.Snapshot) bool {
	x, err := model.EncodeSnapshot(a)
	if err != nil {
		return false
	}
	y, err := model.EncodeSnapshot(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}

func (s *Store) publish(snap *model.Snapshot) {
	s.cache.Store(snap)
	s.published(snap)
}

func (s *Store) published(snap *model.Snapshot) {
	s.version.Add(1)
	if s.onPublish != nil {
		s.onPublish(snap)
	}
}
