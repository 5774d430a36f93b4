// Package multiversion resolves feature-gated method dispatch: several
// bodies of one method, each tagged with a target feature or a named
// micro-architecture, plus one mandatory untagged default. Declarations
// are collected per method key, then resolved into the priority order a
// generated resolver function probes at first call.
//
// A method moves Collecting -> Resolved -> Emitted, never backwards, and
// the whole set transitions Collecting -> Resolved in one Resolve call so
// code generation always sees a complete order. Conflicts (a missing or
// duplicated default, two bodies claiming one feature set) are user-facing
// diagnostics tied to the conflicting declaration, not errors: collection
// continues so further conflicts still surface, but a conflicted method
// never yields a dispatch order.
package multiversion

import "fmt"

// State is the lifecycle position of one method's implementation set.
type State int

const (
	Collecting State = iota
	Resolved
	Emitted
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Resolved:
		return "resolved"
	case Emitted:
		return "emitted"
	}
	return "unknown"
}

// Entry is one feature-tagged implementation: the tag from the
// declaration ("default", a feature like "sse4.2", or "arch=CPU") and the
// symbol of the body it owns.
type Entry struct {
	Tag  string
	Impl string
}

// Diagnostic is a user-facing conflict report tied to a declaration.
type Diagnostic struct {
	Key string // method key the conflict is on
	Tag string // tag of the conflicting declaration, "" for whole-method conflicts
	Msg string
}

func (d Diagnostic) String() string {
	if d.Tag != "" {
		return fmt.Sprintf("%s [%s]: %s", d.Key, d.Tag, d.Msg)
	}
	return fmt.Sprintf("%s: %s", d.Key, d.Msg)
}

type methodState struct {
	key      string
	state    State
	entries  []Entry // declaration order
	resolved []Entry // priority order, nil when conflicted
	bad      bool
}

// Set collects multi-versioned method declarations and resolves them.
type Set struct {
	methods map[string]*methodState
	order   []string // method keys, first-declaration order
	diags   []Diagnostic
}

// NewSet returns an empty collection.
func NewSet() *Set {
	return &Set{methods: make(map[string]*methodState)}
}

// Register records one implementation of the method identified by key.
// Ties are rejected here: a second body claiming an already-claimed
// feature set becomes a diagnostic and the first declaration stands.
// Registration after Resolve is a hard error, not a diagnostic: it means
// the compilation pass ordering is broken.
func (s *Set) Register(key, tag, impl string) error {
	m := s.methods[key]
	if m == nil {
		m = &methodState{key: key}
		s.methods[key] = m
		s.order = append(s.order, key)
	}
	if m.state != Collecting {
		return fmt.Errorf("method %s: declaration registered after resolution", key)
	}
	if tag != "default" && tag != "" {
		if _, arch := cutArch(tag); !arch && !knownFeature(tag) {
			m.bad = true
			s.diags = append(s.diags, Diagnostic{Key: key, Tag: tag, Msg: "unknown target feature"})
			return nil
		}
	}
	for _, e := range m.entries {
		if e.Tag == tag {
			m.bad = true
			msg := "duplicate feature set, first declaration wins"
			if tag == "default" {
				msg = "redefinition of the default implementation"
			}
			s.diags = append(s.diags, Diagnostic{Key: key, Tag: tag, Msg: msg})
			return nil
		}
	}
	m.entries = append(m.entries, Entry{Tag: tag, Impl: impl})
	return nil
}

// Resolve transitions every collected method to Resolved at once,
// computing its priority order, and returns all diagnostics gathered
// during collection and resolution. Conflicted methods transition too but
// carry no order.
func (s *Set) Resolve() []Diagnostic {
	for _, key := range s.order {
		m := s.methods[key]
		if m.state != Collecting {
			continue
		}
		m.state = Resolved
		if !hasDefault(m.entries) {
			m.bad = true
			s.diags = append(s.diags, Diagnostic{Key: key, Msg: "multi-versioned method has no default implementation"})
		}
		if m.bad {
			continue
		}
		m.resolved = prioritize(m.entries)
	}
	return s.diags
}

// Order returns the resolved dispatch order for a method: most specific
// implementation first, the default last. Implementations with an
// unrecognized micro-architecture tag are declared but never selected, so
// they do not appear. Only valid once the set is resolved.
func (s *Set) Order(key string) ([]Entry, error) {
	m := s.methods[key]
	if m == nil {
		return nil, fmt.Errorf("method %s is not multi-versioned", key)
	}
	if m.state == Collecting {
		return nil, fmt.Errorf("method %s queried before resolution", key)
	}
	if m.resolved == nil {
		return nil, fmt.Errorf("method %s has conflicting version declarations", key)
	}
	return m.resolved, nil
}

// MethodState returns the lifecycle state of one method's set.
func (s *Set) MethodState(key string) State {
	if m := s.methods[key]; m != nil {
		return m.state
	}
	return Collecting
}

// Keys returns every multi-versioned method key in first-declaration
// order.
func (s *Set) Keys() []string { return s.order }

// Entries returns the declarations collected for a method, declaration
// order, conflict losers excluded.
func (s *Set) Entries(key string) []Entry {
	if m := s.methods[key]; m != nil {
		return m.entries
	}
	return nil
}

// MarkEmitted records that the resolver for a method has been generated.
func (s *Set) MarkEmitted(key string) error {
	m := s.methods[key]
	if m == nil || m.state != Resolved || m.resolved == nil {
		return fmt.Errorf("method %s emitted without a resolved order", key)
	}
	m.state = Emitted
	return nil
}

func hasDefault(entries []Entry) bool {
	for _, e := range entries {
		if e.Tag == "default" {
			return true
		}
	}
	return false
}
