package codegen

import (
	"bytes"
	"fmt"

	"github.com/leaningtech/clang-duetto/multiversion"
)

// EmitWasm renders the plan as a self-contained wasm module. Every thunk
// becomes an exported trampoline that adjusts the incoming pointer, calls
// the real override (imported from "env" under its symbol), and adjusts
// the result. Every resolver becomes an exported dispatch function under
// its ifunc symbol, probing features through an imported
// env.__cpu_supports and falling through to the default implementation.
//
// Pointers are i32 and every function has type (i32) -> i32. Virtual
// adjustments need the object's vtable in linear memory and cannot be
// rendered in a standalone module; plans containing them are rejected.
func (p *Plan) EmitWasm() ([]byte, error) {
	e := &wasmEmitter{imports: make(map[string]uint32)}

	// Imports come first in the function index space.
	for _, t := range p.Thunks {
		if !t.Thunk.This.Virtual.IsEmpty() || !t.Thunk.Return.Virtual.IsEmpty() {
			return nil, fmt.Errorf("thunk %s: virtual adjustment has no standalone wasm rendering", t.Symbol)
		}
		if t.Thunk.MemberPointerThunk {
			return nil, fmt.Errorf("thunk %s: member-pointer dispatch has no standalone wasm rendering", t.Symbol)
		}
		e.importFunc(t.Target)
	}
	if len(p.Resolvers) > 0 {
		e.importFunc("__cpu_supports")
	}
	for _, r := range p.Resolvers {
		for _, v := range r.Versions {
			e.importFunc(v.Symbol)
		}
	}

	for _, t := range p.Thunks {
		e.defineFunc(t.Symbol, trampolineBody(e.imports[t.Target], t))
	}
	for _, r := range p.Resolvers {
		body, err := dispatchBody(e, r)
		if err != nil {
			return nil, fmt.Errorf("resolver %s: %w", r.Resolver, err)
		}
		e.defineFunc(r.IFunc, body)
	}
	return e.module(), nil
}

// wasm opcodes and encoding tags used by the emitter.
const (
	opLocalGet = 0x20
	opI32Const = 0x41
	opI32Add   = 0x6A
	opCall     = 0x10
	opIf       = 0x04
	opReturn   = 0x0F
	opEnd      = 0x0B

	blockVoid = 0x40
	typeI32   = 0x7F
	kindFunc  = 0x00

	secType     = 1
	secImport   = 2
	secFunction = 3
	secExport   = 7
	secCode     = 10
)

type wasmFunc struct {
	name string // export name
	body []byte
}

type wasmEmitter struct {
	imports     map[string]uint32 // symbol -> function index
	importOrder []string
	funcs       []wasmFunc
}

// importFunc interns one env import; repeated symbols share an index.
func (e *wasmEmitter) importFunc(symbol string) uint32 {
	if idx, ok := e.imports[symbol]; ok {
		return idx
	}
	idx := uint32(len(e.importOrder))
	e.imports[symbol] = idx
	e.importOrder = append(e.importOrder, symbol)
	return idx
}

func (e *wasmEmitter) defineFunc(name string, body []byte) {
	e.funcs = append(e.funcs, wasmFunc{name: name, body: body})
}

// trampolineBody builds: adjust this, call the override, adjust the
// returned pointer. The this displacement is subtracted; the trampoline
// converts a base view back to the derived view.
func trampolineBody(callee uint32, t ThunkPlan) []byte {
	var b bytes.Buffer
	b.WriteByte(opLocalGet)
	uleb(&b, 0)
	if nv := t.Thunk.This.NonVirtual; nv != 0 {
		b.WriteByte(opI32Const)
		sleb(&b, -nv)
		b.WriteByte(opI32Add)
	}
	b.WriteByte(opCall)
	uleb(&b, uint64(callee))
	if nv := t.Thunk.Return.NonVirtual; nv != 0 {
		b.WriteByte(opI32Const)
		sleb(&b, nv)
		b.WriteByte(opI32Add)
	}
	b.WriteByte(opEnd)
	return b.Bytes()
}

// dispatchBody builds the resolver: probe each feature-gated version in
// priority order and return its result on the first hit, fall through to
// the default.
func dispatchBody(e *wasmEmitter, r ResolverPlan) ([]byte, error) {
	var b bytes.Buffer
	probe := e.imports["__cpu_supports"]
	var def string
	for _, v := range r.Versions {
		if v.Feature == "" {
			def = v.Symbol
			continue
		}
		bit, ok := multiversion.FeatureBit(v.Feature)
		if !ok {
			return nil, fmt.Errorf("version %s: no probe bit for feature %q", v.Symbol, v.Feature)
		}
		b.WriteByte(opI32Const)
		sleb(&b, int64(int32(bit)))
		b.WriteByte(opCall)
		uleb(&b, uint64(probe))
		b.WriteByte(opIf)
		b.WriteByte(blockVoid)
		b.WriteByte(opLocalGet)
		uleb(&b, 0)
		b.WriteByte(opCall)
		uleb(&b, uint64(e.imports[v.Symbol]))
		b.WriteByte(opReturn)
		b.WriteByte(opEnd)
	}
	if def == "" {
		return nil, fmt.Errorf("dispatch order lacks a default")
	}
	b.WriteByte(opLocalGet)
	uleb(&b, 0)
	b.WriteByte(opCall)
	uleb(&b, uint64(e.imports[def]))
	b.WriteByte(opEnd)
	return b.Bytes(), nil
}

// module assembles the final binary: one function type (i32) -> i32
// shared by imports, trampolines and dispatchers.
func (e *wasmEmitter) module() []byte {
	var out bytes.Buffer
	out.WriteString("\x00asm")
	out.Write([]byte{1, 0, 0, 0})

	// Type section: [(i32) -> i32].
	var sec bytes.Buffer
	uleb(&sec, 1)
	sec.Write([]byte{0x60, 1, typeI32, 1, typeI32})
	writeSection(&out, secType, sec.Bytes())

	// Import section: every symbol from env, all of type 0.
	sec.Reset()
	uleb(&sec, uint64(len(e.importOrder)))
	for _, sym := range e.importOrder {
		name(&sec, "env")
		name(&sec, sym)
		sec.WriteByte(kindFunc)
		uleb(&sec, 0)
	}
	writeSection(&out, secImport, sec.Bytes())

	// Function section: every defined function is type 0.
	sec.Reset()
	uleb(&sec, uint64(len(e.funcs)))
	for range e.funcs {
		uleb(&sec, 0)
	}
	writeSection(&out, secFunction, sec.Bytes())

	// Export section: defined functions under their symbols.
	sec.Reset()
	uleb(&sec, uint64(len(e.funcs)))
	for i, f := range e.funcs {
		name(&sec, f.name)
		sec.WriteByte(kindFunc)
		uleb(&sec, uint64(len(e.importOrder)+i))
	}
	writeSection(&out, secExport, sec.Bytes())

	// Code section: no locals anywhere.
	sec.Reset()
	uleb(&sec, uint64(len(e.funcs)))
	for _, f := range e.funcs {
		var entry bytes.Buffer
		uleb(&entry, 0) // local declarations
		entry.Write(f.body)
		uleb(&sec, uint64(entry.Len()))
		sec.Write(entry.Bytes())
	}
	writeSection(&out, secCode, sec.Bytes())

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, contents []byte) {
	out.WriteByte(id)
	uleb(out, uint64(len(contents)))
	out.Write(contents)
}

// name writes a length-prefixed UTF-8 name.
func name(b *bytes.Buffer, s string) {
	uleb(b, uint64(len(s)))
	b.WriteString(s)
}

// uleb writes an unsigned LEB128 value.
func uleb(b *bytes.Buffer, v uint64) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.WriteByte(c)
		if v == 0 {
			return
		}
	}
}

// sleb writes a signed LEB128 value.
func sleb(b *bytes.Buffer, v int64) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			b.WriteByte(c)
			return
		}
		b.WriteByte(c | 0x80)
	}
}
