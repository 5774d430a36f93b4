package codegen

import (
	"reflect"
	"testing"
)

// The inheriting-constructor scenario: two argument temporaries are
// materialized, the inherited base constructor runs, then the object
// completes. Destruction is LIFO over construction on both exits, and
// the unwind path sees only what was fully constructed.
func TestCleanupInheritingConstructor(t *testing.T) {
	// Two constructor argument temporaries, then the inherited base.
	var s CleanupScope
	s.PushTemporary("_ZN2S1D1Ev")
	s.PushTemporary("_ZN2S2D1Ev")
	s.PushSubobject("_ZN13NonTrivialDtorD2Ev")

	// An exception out of the remaining construction destroys the base,
	// then the temporaries, most recent first. The in-flight object
	// itself is never destroyed.
	wantUnwind := []string{"_ZN13NonTrivialDtorD2Ev", "_ZN2S2D1Ev", "_ZN2S1D1Ev"}
	if got := s.UnwindOrder(); !reflect.DeepEqual(got, wantUnwind) {
		t.Errorf("unwind order: got %v, want %v", got, wantUnwind)
	}

	// Construction completes: the base folds into the whole object and
	// the normal path destroys the object, then the temporaries.
	s.Complete("_ZN9InheritorD1Ev")
	wantNormal := []string{"_ZN9InheritorD1Ev", "_ZN2S2D1Ev", "_ZN2S1D1Ev"}
	if got := s.NormalOrder(); !reflect.DeepEqual(got, wantNormal) {
		t.Errorf("normal order: got %v, want %v", got, wantNormal)
	}

	// After completion the unwind path destroys the complete object the
	// same way, not its bases piecewise.
	if got := s.UnwindOrder(); !reflect.DeepEqual(got, wantNormal) {
		t.Errorf("post-completion unwind order: got %v, want %v", got, wantNormal)
	}
}

func TestCleanupMultipleSubobjects(t *testing.T) {
	var s CleanupScope
	s.PushSubobject("~A")
	s.PushSubobject("~B")

	want := []string{"~B", "~A"}
	if got := s.UnwindOrder(); !reflect.DeepEqual(got, want) {
		t.Errorf("unwind order: got %v, want %v", got, want)
	}
	// Half-built objects never appear on the normal path.
	if got := s.NormalOrder(); len(got) != 0 {
		t.Errorf("normal order before completion: got %v, want none", got)
	}

	s.Complete("~D")
	if got := s.NormalOrder(); !reflect.DeepEqual(got, []string{"~D"}) {
		t.Errorf("normal order: got %v, want [~D]", got)
	}
}

func TestCleanupEmptyScope(t *testing.T) {
	var s CleanupScope
	if got := s.NormalOrder(); len(got) != 0 {
		t.Errorf("normal order: got %v, want none", got)
	}
	if got := s.UnwindOrder(); len(got) != 0 {
		t.Errorf("unwind order: got %v, want none", got)
	}
}
