package codegen

import (
	"bytes"
	"fmt"

	"github.com/leaningtech/clang-duetto/abi"
)

// The duetto backend consumes plans in a compact binary form:
//
//	operand  magic
//	operand  format version
//	string   target name
//	operand  thunk count, then per thunk:
//	         flags byte, adjustments as operands, symbol strings
//	operand  resolver count, then per resolver:
//	         key/resolver/ifunc strings, version count, versions
//	operand  diagnostic count, then the diagnostic strings
//
// Operands are variable-length signed values, strings are NUL-terminated.
const (
	planMagic   = 0xD0E77
	planVersion = 1
)

// Thunk record flags.
const (
	flagVirtualThis   = 1 << 0
	flagHasReturn     = 1 << 1
	flagVirtualReturn = 1 << 2
	flagMemberPointer = 1 << 3
)

// EncodeBytecode renders the plan in the duetto binary plan format.
func (p *Plan) EncodeBytecode() ([]byte, error) {
	var buf bytes.Buffer
	encodeOperand(&buf, planMagic)
	encodeOperand(&buf, planVersion)
	encodeString(&buf, p.Target)

	encodeOperand(&buf, int32(len(p.Thunks)))
	for i := range p.Thunks {
		if err := encodeThunk(&buf, &p.Thunks[i]); err != nil {
			return nil, fmt.Errorf("thunk %s: %w", p.Thunks[i].Symbol, err)
		}
	}

	encodeOperand(&buf, int32(len(p.Resolvers)))
	for _, r := range p.Resolvers {
		encodeString(&buf, r.Key)
		encodeString(&buf, r.Resolver)
		encodeString(&buf, r.IFunc)
		encodeOperand(&buf, int32(len(r.Versions)))
		for _, v := range r.Versions {
			encodeString(&buf, v.Tag)
			encodeString(&buf, v.Symbol)
			encodeString(&buf, v.Feature)
		}
	}

	encodeOperand(&buf, int32(len(p.Diagnostics)))
	for _, d := range p.Diagnostics {
		encodeString(&buf, d)
	}
	return buf.Bytes(), nil
}

func encodeThunk(buf *bytes.Buffer, t *ThunkPlan) error {
	var flags byte
	if !t.Thunk.This.Virtual.IsEmpty() {
		flags |= flagVirtualThis
	}
	if !t.Thunk.Return.IsEmpty() {
		flags |= flagHasReturn
		if !t.Thunk.Return.Virtual.IsEmpty() {
			flags |= flagVirtualReturn
		}
	}
	if t.Thunk.MemberPointerThunk {
		flags |= flagMemberPointer
	}
	buf.WriteByte(flags)

	if err := encodeDisplacement(buf, t.Thunk.This.NonVirtual); err != nil {
		return err
	}
	if flags&flagVirtualThis != 0 {
		if err := encodeDisplacement(buf, t.Thunk.This.Virtual.Itanium.VCallOffsetOffset); err != nil {
			return err
		}
		encodeOperand(buf, int32(t.Thunk.This.Virtual.Itanium.VirtualBase))
	}
	encodeOperand(buf, int32(t.Thunk.This.Target))
	encodeOperand(buf, int32(t.Thunk.This.Source))
	encodeOperand(buf, int32(len(t.Thunk.This.Path)))
	for _, s := range t.Thunk.This.Path {
		encodeOperand(buf, int32(s.Class))
		encodeOperand(buf, int32(s.Base))
		if s.Virtual {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	if flags&flagHasReturn != 0 {
		if err := encodeDisplacement(buf, t.Thunk.Return.NonVirtual); err != nil {
			return err
		}
		if flags&flagVirtualReturn != 0 {
			if err := encodeDisplacement(buf, t.Thunk.Return.Virtual.Itanium.VBaseOffsetOffset); err != nil {
				return err
			}
		}
		encodeOperand(buf, int32(t.Thunk.Return.Target))
		encodeOperand(buf, int32(t.Thunk.Return.Source))
	}
	encodeOperand(buf, int32(t.Thunk.Method))
	encodeOperand(buf, int32(t.Method))
	encodeString(buf, t.Symbol)
	encodeString(buf, t.Target)
	encodeString(buf, t.SourceType)
	encodeString(buf, t.TargetType)
	return nil
}

// DecodeBytecode parses a binary plan back into its value form.
func DecodeBytecode(data []byte) (*Plan, error) {
	r := &reader{data: data}
	magic, err := r.operand()
	if err != nil {
		return nil, err
	}
	if magic != planMagic {
		return nil, fmt.Errorf("bad plan magic %#x", magic)
	}
	version, err := r.operand()
	if err != nil {
		return nil, err
	}
	if version != planVersion {
		return nil, fmt.Errorf("unsupported plan version %d", version)
	}

	p := &Plan{}
	if p.Target, err = r.str(); err != nil {
		return nil, err
	}

	nthunks, err := r.operand()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < nthunks; i++ {
		t, err := decodeThunk(r)
		if err != nil {
			return nil, fmt.Errorf("thunk %d: %w", i, err)
		}
		p.Thunks = append(p.Thunks, t)
	}

	nres, err := r.operand()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < nres; i++ {
		var rp ResolverPlan
		if rp.Key, err = r.str(); err != nil {
			return nil, err
		}
		if rp.Resolver, err = r.str(); err != nil {
			return nil, err
		}
		if rp.IFunc, err = r.str(); err != nil {
			return nil, err
		}
		nver, err := r.operand()
		if err != nil {
			return nil, err
		}
		for j := int32(0); j < nver; j++ {
			var v VersionPlan
			if v.Tag, err = r.str(); err != nil {
				return nil, err
			}
			if v.Symbol, err = r.str(); err != nil {
				return nil, err
			}
			if v.Feature, err = r.str(); err != nil {
				return nil, err
			}
			rp.Versions = append(rp.Versions, v)
		}
		p.Resolvers = append(p.Resolvers, rp)
	}

	ndiag, err := r.operand()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < ndiag; i++ {
		d, err := r.str()
		if err != nil {
			return nil, err
		}
		p.Diagnostics = append(p.Diagnostics, d)
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("trailing bytes after plan (%d of %d consumed)", r.pos, len(r.data))
	}
	return p, nil
}

func decodeThunk(r *reader) (ThunkPlan, error) {
	var t ThunkPlan
	flags, err := r.byte()
	if err != nil {
		return t, err
	}
	nv, err := r.operand()
	if err != nil {
		return t, err
	}
	t.Thunk.This.NonVirtual = int64(nv)
	if flags&flagVirtualThis != 0 {
		slot, err := r.operand()
		if err != nil {
			return t, err
		}
		vb, err := r.operand()
		if err != nil {
			return t, err
		}
		t.Thunk.This.Virtual = abi.ItaniumThis(int64(slot), abi.ClassID(vb))
	}
	thisTarget, err := r.operand()
	if err != nil {
		return t, err
	}
	thisSource, err := r.operand()
	if err != nil {
		return t, err
	}
	t.Thunk.This.Target = abi.ClassID(thisTarget)
	t.Thunk.This.Source = abi.ClassID(thisSource)
	nsteps, err := r.operand()
	if err != nil {
		return t, err
	}
	for i := int32(0); i < nsteps; i++ {
		class, err := r.operand()
		if err != nil {
			return t, err
		}
		base, err := r.operand()
		if err != nil {
			return t, err
		}
		virt, err := r.byte()
		if err != nil {
			return t, err
		}
		t.Thunk.This.Path = append(t.Thunk.This.Path, abi.PathStep{
			Class:   abi.ClassID(class),
			Base:    abi.ClassID(base),
			Virtual: virt != 0,
		})
	}
	if flags&flagHasReturn != 0 {
		nv, err := r.operand()
		if err != nil {
			return t, err
		}
		t.Thunk.Return.NonVirtual = int64(nv)
		if flags&flagVirtualReturn != 0 {
			slot, err := r.operand()
			if err != nil {
				return t, err
			}
			t.Thunk.Return.Virtual = abi.ItaniumReturn(int64(slot))
		}
		retTarget, err := r.operand()
		if err != nil {
			return t, err
		}
		retSource, err := r.operand()
		if err != nil {
			return t, err
		}
		t.Thunk.Return.Target = abi.ClassID(retTarget)
		t.Thunk.Return.Source = abi.ClassID(retSource)
	}
	t.Thunk.MemberPointerThunk = flags&flagMemberPointer != 0

	method, err := r.operand()
	if err != nil {
		return t, err
	}
	t.Thunk.Method = abi.MethodID(method)
	planMethod, err := r.operand()
	if err != nil {
		return t, err
	}
	t.Method = abi.MethodID(planMethod)

	if t.Symbol, err = r.str(); err != nil {
		return t, err
	}
	if t.Target, err = r.str(); err != nil {
		return t, err
	}
	if t.SourceType, err = r.str(); err != nil {
		return t, err
	}
	if t.TargetType, err = r.str(); err != nil {
		return t, err
	}
	return t, nil
}

// encodeOperand writes a variable-length signed value:
//
//	[-64, 63]         → 1 byte  (bits 7-6 = 00 or 01)
//	[-8192, 8191]     → 2 bytes (bits 7-6 = 10)
//	[-2^29, 2^29 - 1] → 4 bytes (bits 7-6 = 11)
func encodeOperand(buf *bytes.Buffer, val int32) {
	if val >= -64 && val <= 63 {
		buf.WriteByte(byte(val) &^ 0x80)
		return
	}
	if val >= -8192 && val <= 8191 {
		buf.WriteByte(byte(val>>8)&^0xC0 | 0x80)
		buf.WriteByte(byte(val))
		return
	}
	buf.WriteByte(byte(val>>24) | 0xC0)
	buf.WriteByte(byte(val >> 16))
	buf.WriteByte(byte(val >> 8))
	buf.WriteByte(byte(val))
}

// encodeDisplacement range-checks an adjustment displacement into the
// operand encoding. 29 bits of object offset is far beyond any real
// layout, so overflow means corrupted input, not a format gap.
func encodeDisplacement(buf *bytes.Buffer, v int64) error {
	if v < -(1<<29) || v >= 1<<29 {
		return fmt.Errorf("displacement %d out of operand range", v)
	}
	encodeOperand(buf, int32(v))
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// reader walks a binary plan.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("truncated plan at byte %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// operand reads one variable-length signed value.
func (r *reader) operand() (int32, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch b & 0xC0 {
	case 0x00:
		return int32(b), nil
	case 0x40:
		return int32(b) | ^int32(0x7F), nil
	case 0x80:
		lo, err := r.byte()
		if err != nil {
			return 0, err
		}
		v := int32(b&0x3F)<<8 | int32(lo)
		if b&0x20 != 0 {
			v |= ^int32(0x1FFF)
		}
		return v, nil
	default:
		v := int32(b & 0x3F)
		if b&0x20 != 0 {
			v |= ^int32(0x1F)
		}
		for i := 0; i < 3; i++ {
			lo, err := r.byte()
			if err != nil {
				return 0, err
			}
			v = v<<8 | int32(lo)
		}
		return v, nil
	}
}

// str reads a NUL-terminated string.
func (r *reader) str() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", fmt.Errorf("unterminated string at byte %d", start)
}
