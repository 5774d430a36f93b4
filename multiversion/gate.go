package multiversion

import "sync"

// Gate is the host-side model of the generated resolver's one-time
// feature probe: the first caller selects an implementation and every
// caller, concurrent first uses included, observes that same choice.
// The probe itself is a pure function of static hardware capability, so
// the only guarantee needed is single assignment.
type Gate struct {
	once sync.Once
	impl string
}

// Select returns the implementation the dispatch order picks for the
// capabilities reported by have. The decision is made once per Gate; the
// order and probe passed by later callers are ignored.
func (g *Gate) Select(order []Entry, have func(feature string) bool) string {
	g.once.Do(func() {
		g.impl = pick(order, have)
	})
	return g.impl
}

// pick walks the dispatch order and returns the first implementation
// whose required feature is present. The default demands nothing, so a
// well-formed order always yields an implementation.
func pick(order []Entry, have func(feature string) bool) string {
	for _, e := range order {
		feature, selectable := RequiredFeature(e.Tag)
		if !selectable {
			continue
		}
		if feature == "" || have(feature) {
			return e.Impl
		}
	}
	return ""
}
