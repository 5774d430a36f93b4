package multiversion

import (
	"sort"
	"strings"
)

// featureRank orders x86 instruction-set features from least to most
// capable. A higher rank outranks a lower one in the dispatch order.
var featureRank = map[string]int{
	"mmx":      1,
	"sse":      2,
	"sse2":     3,
	"sse3":     4,
	"ssse3":    5,
	"sse4.1":   6,
	"sse4.2":   7,
	"popcnt":   8,
	"avx":      9,
	"avx2":     10,
	"avx512f":  11,
	"avx512vl": 12,
}

// cpuFeature maps a named micro-architecture to the instruction-set
// feature level it implies. CPUs absent from the table are declarable but
// never selected.
var cpuFeature = map[string]string{
	"core2":          "ssse3",
	"penryn":         "sse4.1",
	"nehalem":        "sse4.2",
	"corei7":         "sse4.2",
	"westmere":       "sse4.2",
	"sandybridge":    "avx",
	"ivybridge":      "avx",
	"haswell":        "avx2",
	"broadwell":      "avx2",
	"skylake":        "avx2",
	"skylake-avx512": "avx512f",
	"knl":            "avx512f",
}

// cutArch splits an "arch=CPU" tag.
func cutArch(tag string) (cpu string, ok bool) {
	return strings.CutPrefix(tag, "arch=")
}

func knownFeature(tag string) bool {
	_, ok := featureRank[tag]
	return ok
}

// RequiredFeature returns the instruction-set feature an implementation
// tag demands at run time, and whether the tag can ever be selected. The
// default implementation demands nothing.
func RequiredFeature(tag string) (feature string, selectable bool) {
	if tag == "default" {
		return "", true
	}
	if cpu, ok := cutArch(tag); ok {
		f, known := cpuFeature[cpu]
		return f, known
	}
	return tag, knownFeature(tag)
}

// FeatureBit returns the probe-mask bit a generated resolver tests for a
// feature. Bits follow the feature ranks, so a mask stays comparable
// across methods.
func FeatureBit(feature string) (uint32, bool) {
	r, ok := featureRank[feature]
	if !ok {
		return 0, false
	}
	return 1 << uint(r), true
}

// prioritize sorts entries into dispatch order: higher feature rank
// first, a named micro-architecture before a bare feature of the same
// rank, declaration order breaking remaining ties, the default always
// last. Entries with an unrecognized micro-architecture are declared but
// never selected and drop out.
func prioritize(entries []Entry) []Entry {
	type ranked struct {
		Entry
		rank int
		arch bool
	}
	var rs []ranked
	var def []Entry
	for _, e := range entries {
		if e.Tag == "default" {
			def = append(def, e)
			continue
		}
		feature, selectable := RequiredFeature(e.Tag)
		if !selectable {
			continue
		}
		_, arch := cutArch(e.Tag)
		rs = append(rs, ranked{Entry: e, rank: featureRank[feature], arch: arch})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].rank != rs[j].rank {
			return rs[i].rank > rs[j].rank
		}
		return rs[i].arch && !rs[j].arch
	})
	out := make([]Entry, 0, len(rs)+1)
	for _, r := range rs {
		out = append(out, r.Entry)
	}
	return append(out, def...)
}
