package codegen

// CleanupScope records what a constructor (or any full expression) has
// built so far, in construction order, and answers with the destructor
// call order for both exits: the normal path and the exception unwind
// path. Destruction is strict LIFO over construction on both.
//
// The two paths differ in what exists. On the normal path the object
// under construction is complete, so only its own destructor runs and it
// covers every subobject. On the unwind path the object is incomplete:
// only the fully-constructed subobjects are destroyed, individually, and
// the in-flight object itself is never touched.
type CleanupScope struct {
	entries []cleanupEntry
}

type cleanupKind int

const (
	cleanupTemporary cleanupKind = iota
	cleanupSubobject
	cleanupObject
)

type cleanupEntry struct {
	kind   cleanupKind
	dtor   string
	folded bool // subobject absorbed into its completed object
}

// PushTemporary records a materialized temporary: destroyed on both
// paths.
func (s *CleanupScope) PushTemporary(dtor string) {
	s.entries = append(s.entries, cleanupEntry{kind: cleanupTemporary, dtor: dtor})
}

// PushSubobject records a fully-constructed base or member of the object
// still under construction: destroyed on unwind only, until Complete
// folds it into the whole object.
func (s *CleanupScope) PushSubobject(dtor string) {
	s.entries = append(s.entries, cleanupEntry{kind: cleanupSubobject, dtor: dtor})
}

// Complete marks the in-flight object finished: its pending subobjects
// fold into one whole-object entry whose destructor covers them.
func (s *CleanupScope) Complete(dtor string) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].kind != cleanupSubobject || s.entries[i].folded {
			break
		}
		s.entries[i].folded = true
	}
	s.entries = append(s.entries, cleanupEntry{kind: cleanupObject, dtor: dtor})
}

// NormalOrder returns the destructor calls for the fall-through exit,
// most recently constructed first. Folded subobjects are covered by
// their object's destructor and unfinished ones do not exist on this
// path.
func (s *CleanupScope) NormalOrder() []string {
	var out []string
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.kind == cleanupSubobject {
			continue
		}
		out = append(out, e.dtor)
	}
	return out
}

// UnwindOrder returns the destructor calls for the exception path at the
// current point of construction: every live entry, most recent first,
// with unfolded subobjects destroyed individually.
func (s *CleanupScope) UnwindOrder() []string {
	var out []string
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.kind == cleanupSubobject && e.folded {
			continue
		}
		out = append(out, e.dtor)
	}
	return out
}
