// Package codegen turns the ABI layer's values into emittable artifacts:
// a Plan naming every trampoline and resolver a compilation unit needs,
// a compact bytecode encoding of that plan for the duetto backend, and a
// wasm rendering of the trampolines for the machine targets.
package codegen

import (
	"fmt"
	"io"
	"strings"

	"github.com/leaningtech/clang-duetto/abi"
	"github.com/leaningtech/clang-duetto/hierarchy"
	"github.com/leaningtech/clang-duetto/mangle"
	"github.com/leaningtech/clang-duetto/multiversion"
	"github.com/leaningtech/clang-duetto/target"
	"github.com/leaningtech/clang-duetto/thunks"
)

// ThunkPlan is one trampoline to emit: the symbol it lives under, the
// override it forwards to, and the adjustments its body applies.
type ThunkPlan struct {
	Symbol string // trampoline symbol
	Target string // override symbol the trampoline forwards to
	Method abi.MethodID
	Thunk  abi.ThunkInfo

	// SourceType and TargetType carry the typed-record names on
	// element-addressed targets, where the backend rebuilds addresses
	// type by type. Empty on byte-addressable targets.
	SourceType string
	TargetType string
}

// VersionPlan is one entry of a resolver's dispatch order.
type VersionPlan struct {
	Tag     string
	Symbol  string
	Feature string // runtime feature probed for, "" for the default
}

// ResolverPlan is the dispatch artifact for one multi-versioned method:
// the resolver and ifunc symbols plus the priority-ordered versions, the
// default last.
type ResolverPlan struct {
	Key      string
	Resolver string
	IFunc    string
	Versions []VersionPlan
}

// Plan is everything the backends emit for one compilation unit.
type Plan struct {
	Target      string
	Thunks      []ThunkPlan
	Resolvers   []ResolverPlan
	Diagnostics []string // user-facing conflicts; their methods have no artifact
}

// Planner drives plan construction for one parsed description on one
// target.
type Planner struct {
	table   *hierarchy.Table
	tgt     target.Target
	builder *thunks.Builder
	decls   []hierarchy.VersionDecl
}

// NewPlanner prepares a planner. The description's table is finalized
// here if the caller has not done so yet.
func NewPlanner(d *hierarchy.Description, tgt target.Target) (*Planner, error) {
	if !d.Table.Finalized() {
		if err := d.Table.Finalize(); err != nil {
			return nil, fmt.Errorf("finalize: %w", err)
		}
	}
	b, err := thunks.NewBuilder(d.Table, tgt.ABI())
	if err != nil {
		return nil, err
	}
	return &Planner{table: d.Table, tgt: tgt, builder: b, decls: d.Versions}, nil
}

// Plan computes the full artifact set: every non-empty thunk of every
// class, and a resolver per cleanly-declared multi-versioned method.
// ABI-path inconsistencies and unsupported adjustment encodings abort
// with an error; version conflicts become diagnostics on the plan.
func (p *Planner) Plan() (*Plan, error) {
	plan := &Plan{Target: p.tgt.Name()}

	for _, c := range p.table.Classes() {
		mts, err := p.builder.ClassThunks(c.ID)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", c.Name, err)
		}
		for _, mt := range mts {
			tp, err := p.thunkPlan(mt)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", c.Name, err)
			}
			plan.Thunks = append(plan.Thunks, tp)
		}
	}

	if err := p.planResolvers(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Planner) thunkPlan(mt thunks.MethodThunk) (ThunkPlan, error) {
	m := p.table.Method(mt.Method)
	targetSym := mangle.Method(p.table.Class(m.Class).Name, m.Name, m.Params)
	sym, err := mangle.Thunk(targetSym, mt.Thunk)
	if err != nil {
		return ThunkPlan{}, err
	}
	tp := ThunkPlan{Symbol: sym, Target: targetSym, Method: mt.Method, Thunk: mt.Thunk}
	if !p.table.ByteAddressable() {
		if src := p.table.Class(mt.Thunk.This.Source); src != nil {
			tp.SourceType = mangle.TypeName(src.Name)
		}
		if tgt := p.table.Class(mt.Thunk.This.Target); tgt != nil {
			tp.TargetType = mangle.TypeName(tgt.Name)
		}
	}
	return tp, nil
}

// planResolvers collects the version declarations, resolves them in one
// transition, and emits a resolver plan per clean method.
func (p *Planner) planResolvers(plan *Plan) error {
	set := multiversion.NewSet()
	base := make(map[string]string) // method key -> base symbol
	for _, decl := range p.decls {
		m := p.table.Method(decl.Method)
		key := m.QualifiedName(p.table) + m.Params
		sym := mangle.Method(p.table.Class(m.Class).Name, m.Name, m.Params)
		base[key] = sym
		if err := set.Register(key, decl.Tag, mangle.VersionSymbol(sym, decl.Tag)); err != nil {
			return err
		}
	}
	for _, d := range set.Resolve() {
		plan.Diagnostics = append(plan.Diagnostics, d.String())
	}
	for _, key := range set.Keys() {
		order, err := set.Order(key)
		if err != nil {
			continue // conflicted: diagnosed above, no artifact
		}
		rp := ResolverPlan{
			Key:      key,
			Resolver: mangle.ResolverSymbol(base[key]),
			IFunc:    mangle.IFuncSymbol(base[key]),
		}
		for _, e := range order {
			feature, _ := multiversion.RequiredFeature(e.Tag)
			rp.Versions = append(rp.Versions, VersionPlan{Tag: e.Tag, Symbol: e.Impl, Feature: feature})
		}
		plan.Resolvers = append(plan.Resolvers, rp)
		if err := set.MarkEmitted(key); err != nil {
			return err
		}
	}
	return nil
}

// WriteText prints the plan in the driver's line format, one artifact per
// line, resolver versions indented in dispatch order.
func (p *Plan) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "target %s\n", p.Target)
	for _, t := range p.Thunks {
		fmt.Fprintf(&b, "thunk %s %s -> %s", t.Symbol, formatAdjustments(t.Thunk), t.Target)
		if t.SourceType != "" {
			fmt.Fprintf(&b, " [%s => %s]", t.SourceType, t.TargetType)
		}
		b.WriteByte('\n')
	}
	for _, r := range p.Resolvers {
		fmt.Fprintf(&b, "resolver %s ifunc %s\n", r.Resolver, r.IFunc)
		for _, v := range r.Versions {
			if v.Feature == "" {
				fmt.Fprintf(&b, "  %s -> %s\n", v.Tag, v.Symbol)
				continue
			}
			fmt.Fprintf(&b, "  %s -> %s [%s]\n", v.Tag, v.Symbol, v.Feature)
		}
	}
	for _, d := range p.Diagnostics {
		fmt.Fprintf(&b, "error: %s\n", d)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// formatAdjustments renders a thunk's adjustments the way the trampoline
// applies them: the this displacement negated, the return one as is.
func formatAdjustments(t abi.ThunkInfo) string {
	var parts []string
	if !t.This.IsEmpty() {
		s := fmt.Sprintf("this %+d", -t.This.NonVirtual)
		if !t.This.Virtual.IsEmpty() {
			s += fmt.Sprintf(" vcall %d", t.This.Virtual.Itanium.VCallOffsetOffset)
		}
		parts = append(parts, s)
	}
	if !t.Return.IsEmpty() {
		s := fmt.Sprintf("ret %+d", t.Return.NonVirtual)
		if !t.Return.Virtual.IsEmpty() {
			s += fmt.Sprintf(" vbase %d", t.Return.Virtual.Itanium.VBaseOffsetOffset)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
