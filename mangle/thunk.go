package mangle

import (
	"fmt"
	"strings"

	"github.com/leaningtech/clang-duetto/abi"
)

// Thunk returns the symbol of the trampoline standing in for target (the
// override's own symbol) under the given adjustments. Covariant thunks
// take the Tc form with both call offsets; plain this-thunks take the
// Th/Tv form. The descriptor must not be empty; an empty thunk has no
// trampoline and therefore no name.
func Thunk(target string, t abi.ThunkInfo) (string, error) {
	if t.IsEmpty() {
		return "", fmt.Errorf("no symbol for an empty thunk on %s", target)
	}
	rest, ok := strings.CutPrefix(target, "_Z")
	if !ok {
		return "", fmt.Errorf("thunk target %q is not a mangled name", target)
	}
	if !t.Return.IsEmpty() {
		return "_ZTc" + thisCallOffset(t.This) + returnCallOffset(t.Return) + rest, nil
	}
	return "_ZT" + thisCallOffset(t.This) + rest, nil
}

// thisCallOffset encodes the this adjustment as a <call-offset>. The
// trampoline subtracts NonVirtual from the incoming pointer, so the
// mangled displacement is its negation.
func thisCallOffset(a abi.ThisAdjustment) string {
	if a.Virtual.IsEmpty() {
		return "h" + num(-a.NonVirtual) + "_"
	}
	return "v" + num(-a.NonVirtual) + "_" + num(a.Virtual.Itanium.VCallOffsetOffset) + "_"
}

// returnCallOffset encodes the return adjustment as a <call-offset>.
func returnCallOffset(a abi.ReturnAdjustment) string {
	if a.Virtual.IsEmpty() {
		return "h" + num(a.NonVirtual) + "_"
	}
	return "v" + num(a.NonVirtual) + "_" + num(a.Virtual.Itanium.VBaseOffsetOffset) + "_"
}

// num writes a mangled number: negatives spell a leading n.
func num(v int64) string {
	if v < 0 {
		return fmt.Sprintf("n%d", -v)
	}
	return fmt.Sprintf("%d", v)
}
