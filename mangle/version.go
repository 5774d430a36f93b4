package mangle

import "strings"

// VersionSymbol returns the symbol one feature-tagged implementation of
// base owns. The default implementation keeps the base symbol itself;
// micro-architecture tags become .arch_CPU and feature tags a plain
// dotted suffix, as in _ZN1S3fooEi.arch_ivybridge and _ZN1S3fooEi.sse4.2.
func VersionSymbol(base, tag string) string {
	if tag == "default" || tag == "" {
		return base
	}
	if cpu, ok := strings.CutPrefix(tag, "arch="); ok {
		return base + ".arch_" + cpu
	}
	return base + "." + tag
}

// ResolverSymbol returns the symbol of the generated resolver function
// for a multi-versioned method.
func ResolverSymbol(base string) string { return base + ".resolver" }

// IFuncSymbol returns the symbol of the indirect-function alias callers
// bind against.
func IFuncSymbol(base string) string { return base + ".ifunc" }
