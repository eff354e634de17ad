package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrCorrupt is returned by DecodeSnapshot when the payload is not a valid snapshot
var ErrCorrupt = errors.New("corrupt snapshot payload")

const (
	forwardsKey = "forwards"
	sessionKey  = "user_session_string"
)

// Snapshot is the full rule set at one point in time. Rules keep their
// insertion order, which is also the matching order. A published snapshot
// is never modified; callers mutate a Clone.
type Snapshot struct {
	Rules []Rule
	// Session is the credential of the forwarding identity, empty when
	// logged out.
	Session string
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{Rules: []Rule{}}
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Rules:   make([]Rule, 0, len(s.Rules)),
		Session: s.Session,
	}
	for _, r := range s.Rules {
		out.Rules = append(out.Rules, r.Clone())
	}
	return out
}

// Index returns the position of the named rule, or -1
func (s *Snapshot) Index(name string) int {
	for i := range s.Rules {
		if s.Rules[i].Name == name {
			return i
		}
	}
	return -1
}

// Rule returns a pointer into the snapshot's rule list for in-place edits
// of a cloned snapshot.
func (s *Snapshot) Rule(name string) (*Rule, bool) {
	i := s.Index(name)
	if i < 0 {
		return nil, false
	}
	return &s.Rules[i], true
}

// Remove deletes the named rule and reports whether it existed
func (s *Snapshot) Remove(name string) bool {
	i := s.Index(name)
	if i < 0 {
		return false
	}
	s.Rules = append(s.Rules[:i], s.Rules[i+1:]...)
	return true
}

// Match returns the first rule, in insertion order, whose sources contain chatID
func (s *Snapshot) Match(chatID int64) (Rule, bool) {
	for _, r := range s.Rules {
		if r.HasSource(chatID) {
			return r, true
		}
	}
	return Rule{}, false
}

type ruleBody struct {
	Destination int64   `json:"destination"`
	Sources     []int64 `json:"sources"`
}

// MarshalJSON writes the persisted layout with rules in insertion order
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + forwardsKey + `":{`)
	for i, r := range s.Rules {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rule name: %w", err)
		}
		sources := r.Sources
		if sources == nil {
			sources = []int64{}
		}
		body, err := json.Marshal(ruleBody{Destination: r.Destination, Sources: sources})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rule %q: %w", r.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	if s.Session != "" {
		session, err := json.Marshal(s.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		buf.WriteString(`,"` + sessionKey + `":`)
		buf.Write(session)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeSnapshot serializes a snapshot as indented JSON
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("failed to indent snapshot: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeSnapshot parses a persisted snapshot. Object key order of
// "forwards" becomes the rule order. A payload without "forwards" whose
// top-level values are rule objects is read as the older flat layout.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrCorrupt)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrCorrupt)
	}

	snap := NewSnapshot()

	var decodeErr error
	add := func(key, value gjson.Result) bool {
		rule, err := decodeRule(key.String(), value)
		if err != nil {
			decodeErr = err
			return false
		}
		if existing, ok := snap.Rule(rule.Name); ok {
			*existing = rule
			return true
		}
		snap.Rules = append(snap.Rules, rule)
		return true
	}

	forwards := root.Get(forwardsKey)
	if forwards.Exists() {
		if !forwards.IsObject() {
			return nil, fmt.Errorf("%w: %q is not an object", ErrCorrupt, forwardsKey)
		}
		forwards.ForEach(add)
	} else {
		root.ForEach(func(key, value gjson.Result) bool {
			if !value.IsObject() || !value.Get("destination").Exists() {
				return true
			}
			return add(key, value)
		})
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	if session := root.Get(sessionKey); session.Exists() {
		if session.Type != gjson.String && session.Type != gjson.Null {
			return nil, fmt.Errorf("%w: %q is not a string", ErrCorrupt, sessionKey)
		}
		snap.Session = session.String()
	}
	return snap, nil
}

func decodeRule(name string, value gjson.Result) (Rule, error) {
	if name == "" {
		return Rule{}, fmt.Errorf("%w: rule with empty name", ErrCorrupt)
	}
	if !value.IsObject() {
		return Rule{}, fmt.Errorf("%w: rule %q is not an object", ErrCorrupt, name)
	}
	dest := value.Get("destination")
	if !dest.Exists() {
		return Rule{}, fmt.Errorf("%w: rule %q has no destination", ErrCorrupt, name)
	}
	destination, err := parseChatID(dest)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %q destination: %v", ErrCorrupt, name, err)
	}

	rule := NewRule(name, destination)
	sources := value.Get("sources")
	if !sources.Exists() || sources.Type == gjson.Null {
		return rule, nil
	}
	if !sources.IsArray() {
		return Rule{}, fmt.Errorf("%w: rule %q sources is not an array", ErrCorrupt, name)
	}
	for _, src := range sources.Array() {
		id, err := parseChatID(src)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: rule %q source: %v", ErrCorrupt, name, err)
		}
		rule.AddSource(id)
	}
	return rule, nil
}

func parseChatID(v gjson.Result) (int64, error) {
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%s is not a number", v.Raw)
	}
	return strconv.ParseInt(v.Raw, 10, 64)
}
