// Package command turns administrator intents into rule store mutations
// and renders their results as text.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/model"
)

var (
	// ErrInvalidArgument means the request itself was malformed
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRuleNotFound means no rule has the requested name
	ErrRuleNotFound = errors.New("rule not found")
	// ErrStorage means the rules could not be loaded or persisted
	ErrStorage = errors.New("storage error")
	// ErrNotLoggedIn means there is no forwarder credential to clear
	ErrNotLoggedIn = errors.New("not logged in")

	ErrEmptyName       = fmt.Errorf("%w: rule name is empty", ErrInvalidArgument)
	ErrInvalidID       = fmt.Errorf("%w: chat id must be a number", ErrInvalidArgument)
	ErrDuplicateName   = fmt.Errorf("%w: a rule with this name already exists", ErrInvalidArgument)
	ErrEmptyCredential = fmt.Errorf("%w: credential is empty", ErrInvalidArgument)
	ErrAlreadyLoggedIn = fmt.Errorf("%w: a forwarder credential is already stored", ErrInvalidArgument)
)

// RuleStore is the part of the rule store the processor needs
type RuleStore interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Update(ctx context.Context, fn func(*model.Snapshot) error) error
	Version() uint64
}

// AddSourcesResult reports what one AddSources batch did
type AddSourcesResult struct {
	Added      []int64
	Duplicates []int64
	Invalid    []string
}

// NothingAdded is true when every token was invalid or already present
func (r AddSourcesResult) NothingAdded() bool {
	return len(r.Added) == 0
}

// Status summarizes the relay for the administrator
type Status struct {
	Rules     int
	Sources   int
	Version   uint64
	LoggedIn  bool
	Forwarder string
}

// Option configures a Processor
type Option func(*Processor)

// WithForwarderState sets the function reporting the forwarder identity state
func WithForwarderState(fn func() string) Option {
	return func(p *Processor) {
		p.forwarderState = fn
	}
}

// WithCredentialHook sets fn to run after the forwarder credential changes
func WithCredentialHook(fn func()) Option {
	return func(p *Processor) {
		p.onCredential = fn
	}
}

// Processor validates rule commands and applies them through the store
type Processor struct {
	store          RuleStore
	forwarderState func() string
	onCredential   func()
}

// NewProcessor creates a command processor over store
func NewProcessor(store RuleStore, opts ...Option) *Processor {
	p := &Processor{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddRule creates a rule with no sources
func (p *Processor) AddRule(ctx context.Context, name, destination string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	dest, err := parseChatID(destination)
	if err != nil {
		return err
	}

	err = p.mutate(ctx, func(snap *model.Snapshot) error {
		if snap.Index(name) >= 0 {
			return ErrDuplicateName
		}
		snap.Rules = append(snap.Rules, model.NewRule(name, dest))
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"rule": name, "destination": dest}).Info("Created forwarding rule")
	return nil
}

// AddSources appends the integer tokens of ids to the rule's sources.
// Invalid tokens are skipped and duplicates ignored. The store is written
// once, and only when something was added.
func (p *Processor) AddSources(ctx context.Context, name string, ids []string) (AddSourcesResult, error) {
	var result AddSourcesResult

	err := p.mutate(ctx, func(snap *model.Snapshot) error {
		result = AddSourcesResult{}
		rule, ok := snap.Rule(name)
		if !ok {
			return ErrRuleNotFound
		}
		for _, token := range ids {
			id, err := parseChatID(token)
			if err != nil {
				logrus.WithField("rule", name).Warnf("Skipping invalid source ID %q", token)
				result.Invalid = append(result.Invalid, token)
				continue
			}
			if rule.AddSource(id) {
				result.Added = append(result.Added, id)
			} else {
				result.Duplicates = append(result.Duplicates, id)
			}
		}
		if result.NothingAdded() {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	logrus.WithFields(logrus.Fields{"rule": name, "added": result.Added}).Info("Added sources to forwarding rule")
	return result, nil
}

// DeleteRule removes a rule entirely
func (p *Processor) DeleteRule(ctx context.Context, name string) error {
	err := p.mutate(ctx, func(snap *model.Snapshot) error {
		if !snap.Remove(name) {
			return ErrRuleNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithField("rule", name).Info("Deleted forwarding rule")
	return nil
}

// Rules returns the configured rules in matching order
func (p *Processor) Rules(ctx context.Context) ([]model.Rule, error) {
	snap, err := p.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return snap.Clone().Rules, nil
}

// ListRules renders the configured rules. An empty store is not an error.
func (p *Processor) ListRules(ctx context.Context) (string, error) {
	rules, err := p.Rules(ctx)
	if err != nil {
		return "", err
	}
	return RenderRules(rules), nil
}

// Login stores the forwarder credential
func (p *Processor) Login(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrEmptyCredential
	}

	err := p.mutate(ctx, func(snap *model.Snapshot) error {
		if snap.Session != "" {
			return ErrAlreadyLoggedIn
		}
		snap.Session = credential
		return nil
	})
	if err != nil {
		return err
	}

	logrus.Info("Stored forwarder credential")
	p.credentialChanged()
	return nil
}

// Logout clears the forwarder credential
func (p *Processor) Logout(ctx context.Context) error {
	err := p.mutate(ctx, func(snap *model.Snapshot) error {
		if snap.Session == "" {
			return ErrNotLoggedIn
		}
		snap.Session = ""
		return nil
	})
	if err != nil {
		return err
	}

	logrus.Info("Cleared forwarder credential")
	p.credentialChanged()
	return nil
}

// Status reports rule counts and forwarder state
func (p *Processor) Status(ctx context.Context) (Status, error) {
	snap, err := p.store.Load(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	status := Status{
		Rules:     len(snap.Rules),
		Version:   p.store.Version(),
		LoggedIn:  snap.Session != "",
		Forwarder: "unknown",
	}
	for _, r := range snap.Rules {
		status.Sources += len(r.Sources)
	}
	if p.forwarderState != nil {
		status.Forwarder = p.forwarderState()
	}
	return status, nil
}

// RenderRules formats rules one per line
func RenderRules(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No forwarding rules are configured."
	}

	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s -> %d, sources: %s", r.Name, r.Destination, formatIDs(r.Sources, "none"))
	}
	return b.String()
}

var errNoChange = errors.New("no change")

// mutate runs fn through the store, classifying anything that is not a
// request error as ErrStorage
func (p *Processor) mutate(ctx context.Context, fn func(*model.Snapshot) error) error {
	err := p.store.Update(ctx, fn)
	if err == nil || isRequestError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

func (p *Processor) credentialChanged() {
	if p.onCredential != nil {
		p.onCredential()
	}
}

func isRequestError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrNotLoggedIn) ||
		errors.Is(err, errNoChange)
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

func formatIDs(ids []int64, empty string) string {
	if len(ids) == 0 {
		return empty
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
