// Package mangle produces the Itanium-style symbol names the backends
// emit: plain member functions, constructor and destructor variants,
// thunk trampolines, and the dotted suffixes multi-versioned dispatch
// hangs off a method's base symbol.
package mangle

import (
	"fmt"
	"strings"

	"github.com/leaningtech/clang-duetto/abi"
)

// builtinTypes maps C++ builtin spellings to their one-letter encodings.
var builtinTypes = map[string]string{
	"void":               "v",
	"bool":               "b",
	"char":               "c",
	"signed char":        "a",
	"unsigned char":      "h",
	"short":              "s",
	"unsigned short":     "t",
	"int":                "i",
	"unsigned int":       "j",
	"long":               "l",
	"unsigned long":      "m",
	"long long":          "x",
	"unsigned long long": "y",
	"float":              "f",
	"double":             "d",
}

// sourceName encodes an unqualified identifier as <length><name>.
func sourceName(s string) string {
	return fmt.Sprintf("%d%s", len(s), s)
}

// components splits a qualified name on "::".
func components(qualified string) []string {
	return strings.Split(qualified, "::")
}

// Class returns the mangled form of a class name: length-prefixed, with
// the N...E wrapper when namespaced.
func Class(qualified string) string {
	comps := components(qualified)
	if len(comps) == 1 {
		return sourceName(comps[0])
	}
	var b strings.Builder
	b.WriteString("N")
	for _, c := range comps {
		b.WriteString(sourceName(c))
	}
	b.WriteString("E")
	return b.String()
}

// TypeName returns the typed-record spelling the bytecode target uses for
// a class, as in %struct._Z1S.
func TypeName(qualified string) string {
	return "struct._Z" + Class(qualified)
}

// Method returns the symbol for a member function of a class given its
// qualified class name, method name, and a parenthesized parameter list
// like "(int, S*)".
func Method(class, name, params string) string {
	return "_ZN" + nestedPrefix(class) + sourceName(name) + "E" + encodeParams(params)
}

// Ctor returns the symbol for one constructor variant.
func Ctor(class string, kind abi.CtorKind, params string) string {
	return "_ZN" + nestedPrefix(class) + kind.MangleCode() + "E" + encodeParams(params)
}

// Dtor returns the symbol for one destructor variant.
func Dtor(class string, kind abi.DtorKind) string {
	return "_ZN" + nestedPrefix(class) + kind.MangleCode() + "Ev"
}

// nestedPrefix encodes the class components of a nested name, without the
// N...E wrapper; Method/Ctor/Dtor close the scope themselves.
func nestedPrefix(class string) string {
	var b strings.Builder
	for _, c := range components(class) {
		b.WriteString(sourceName(c))
	}
	return b.String()
}

// encodeParams turns "(int, S*)" into the mangled parameter string. An
// empty list encodes as v.
func encodeParams(params string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(params, "("), ")")
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return "v"
	}
	var b strings.Builder
	for _, p := range strings.Split(inner, ",") {
		b.WriteString(encodeType(strings.TrimSpace(p)))
	}
	return b.String()
}

// encodeType encodes one parameter type: builtins by letter, pointers by
// P prefix, anything else as a class name.
func encodeType(t string) string {
	if inner, ok := strings.CutSuffix(t, "*"); ok {
		return "P" + encodeType(strings.TrimSpace(inner))
	}
	if inner, ok := strings.CutSuffix(t, "&"); ok {
		return "R" + encodeType(strings.TrimSpace(inner))
	}
	if inner, ok := strings.CutPrefix(t, "const "); ok {
		return "K" + encodeType(strings.TrimSpace(inner))
	}
	if enc, ok := builtinTypes[t]; ok {
		return enc
	}
	return Class(t)
}
