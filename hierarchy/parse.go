package hierarchy

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/leaningtech/clang-duetto/abi"
)

// Description is the parsed form of a .duetto class-hierarchy description:
// the facts the semantic analyzer would feed the ABI layer, in a small
// declarative syntax so fixtures and the driver can run standalone.
//
// The syntax is line oriented, one declaration per line:
//
//	class NAME size N align N [: [virtual] BASE, ...]
//	method CLASS::NAME(PARAMS) [virtual] [returns CLASS]
//	version CLASS::NAME(PARAMS) TAG
//
// TAG is "default", a target feature ("sse4.2"), or "arch=CPU". Classes
// must be declared before they are referenced. '#' starts a comment.
type Description struct {
	Table    *Table
	Versions []VersionDecl
}

// VersionDecl is one feature-tagged implementation of a method.
type VersionDecl struct {
	Method abi.MethodID
	Tag    string
}

// Parse reads a description for a target with the given addressing model.
// The returned table is not finalized; callers finalize once they are done
// adding anything of their own.
func Parse(r io.Reader, ptrSize int64, byteAddressable bool) (*Description, error) {
	d := &Description{Table: New(ptrSize, byteAddressable)}
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		word, rest, _ := strings.Cut(line, " ")
		var err error
		switch word {
		case "class":
			err = d.parseClass(rest)
		case "method":
			err = d.parseMethod(rest)
		case "version":
			err = d.parseVersion(rest)
		default:
			err = fmt.Errorf("unknown declaration %q", word)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// parseClass handles "NAME size N align N [: bases]".
func (d *Description) parseClass(rest string) error {
	head, baseList, hasBases := strings.Cut(rest, ":")
	fields := strings.Fields(head)
	if len(fields) != 5 || fields[1] != "size" || fields[3] != "align" {
		return fmt.Errorf("want \"class NAME size N align N\", got %q", rest)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	align, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	c, err := d.Table.AddClass(fields[0], size, align)
	if err != nil {
		return err
	}
	if !hasBases {
		return nil
	}
	for _, part := range strings.Split(baseList, ",") {
		part = strings.TrimSpace(part)
		virtual := false
		if name, ok := strings.CutPrefix(part, "virtual "); ok {
			virtual = true
			part = strings.TrimSpace(name)
		}
		base, ok := d.Table.ClassByName(part)
		if !ok {
			return fmt.Errorf("class %s: unknown base %q", c.Name, part)
		}
		if err := d.Table.AddBase(c.ID, base.ID, virtual); err != nil {
			return err
		}
	}
	return nil
}

// parseMethod handles "CLASS::NAME(PARAMS) [virtual] [returns CLASS]".
func (d *Description) parseMethod(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return fmt.Errorf("empty method declaration")
	}
	class, name, params, err := d.splitMethodRef(fields[0])
	if err != nil {
		return err
	}
	virtual := false
	returnClass := abi.NoClass
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "virtual":
			virtual = true
		case "returns":
			if i+1 >= len(fields) {
				return fmt.Errorf("returns without a class")
			}
			i++
			rc, ok := d.Table.ClassByName(strings.TrimSuffix(fields[i], "*"))
			if !ok {
				return fmt.Errorf("unknown return class %q", fields[i])
			}
			returnClass = rc.ID
		default:
			return fmt.Errorf("unknown method attribute %q", fields[i])
		}
	}
	_, err = d.Table.AddMethod(class, name, params, virtual, returnClass)
	return err
}

// parseVersion handles "CLASS::NAME(PARAMS) TAG". The method must exist.
func (d *Description) parseVersion(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return fmt.Errorf("want \"version CLASS::NAME(PARAMS) TAG\", got %q", rest)
	}
	class, name, params, err := d.splitMethodRef(fields[0])
	if err != nil {
		return err
	}
	m := d.Table.findMethod(class, name+params)
	if m == nil {
		return fmt.Errorf("version of undeclared method %s", fields[0])
	}
	d.Versions = append(d.Versions, VersionDecl{Method: m.ID, Tag: fields[1]})
	return nil
}

// splitMethodRef takes "CLASS::NAME(PARAMS)" apart.
func (d *Description) splitMethodRef(ref string) (abi.ClassID, string, string, error) {
	qual, sig, ok := strings.Cut(ref, "::")
	if !ok {
		return abi.NoClass, "", "", fmt.Errorf("method reference %q lacks a class qualifier", ref)
	}
	c, found := d.Table.ClassByName(qual)
	if !found {
		return abi.NoClass, "", "", fmt.Errorf("unknown class %q", qual)
	}
	paren := strings.IndexByte(sig, '(')
	if paren < 0 || !strings.HasSuffix(sig, ")") {
		return abi.NoClass, "", "", fmt.Errorf("method reference %q lacks a parameter list", ref)
	}
	return c.ID, sig[:paren], sig[paren:], nil
}
