// duettoabi lowers a .duetto class-hierarchy description to the dispatch
// artifacts the backends consume: a readable plan listing, the compact
// binary plan, or a standalone wasm module with the trampolines and
// dispatch functions.
//
// Usage:
//
//	duettoabi [-target wasm32] [-emit text|plan|wasm] [-o output] input.duetto
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/leaningtech/clang-duetto/codegen"
	"github.com/leaningtech/clang-duetto/hierarchy"
	"github.com/leaningtech/clang-duetto/target"
)

func main() {
	targetName := flag.String("target", "wasm32", "compilation target (wasm32, wasm64, duetto, duetto-asmjs, duetto-wast, duetto-wasm)")
	emit := flag.String("emit", "text", "output form: text, plan or wasm")
	output := flag.String("o", "", "output file (default: stdout)")
	defines := flag.Bool("defines", false, "print the target's predefined macros and exit")
	flag.Parse()

	tgt, err := target.Lookup(*targetName)
	if err != nil {
		fail(err)
	}

	if *defines {
		for _, m := range tgt.Defines() {
			fmt.Printf("#define %s %s\n", m.Name, m.Value)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: duettoabi [-target NAME] [-emit text|plan|wasm] [-o output] input.duetto\n")
		os.Exit(1)
	}
	in, err := os.Open(flag.Arg(0))
	if err != nil {
		fail(err)
	}
	d, err := hierarchy.Parse(in, tgt.PointerSize(), tgt.ByteAddressable())
	in.Close()
	if err != nil {
		fail(fmt.Errorf("%s: %w", flag.Arg(0), err))
	}

	planner, err := codegen.NewPlanner(d, tgt)
	if err != nil {
		fail(err)
	}
	plan, err := planner.Plan()
	if err != nil {
		fail(err)
	}

	out := os.Stdout
	if *output != "" {
		out, err = os.Create(*output)
		if err != nil {
			fail(err)
		}
		defer out.Close()
	}

	switch *emit {
	case "text":
		err = plan.WriteText(out)
	case "plan":
		var data []byte
		if data, err = plan.EncodeBytecode(); err == nil {
			_, err = out.Write(data)
		}
	case "wasm":
		var data []byte
		if data, err = plan.EmitWasm(); err == nil {
			_, err = out.Write(data)
		}
	default:
		err = fmt.Errorf("unknown emission form %q", *emit)
	}
	if err != nil {
		fail(err)
	}

	// Version conflicts are reported inside the plan; they still fail
	// the compilation.
	if len(plan.Diagnostics) > 0 {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "duettoabi: %v\n", err)
	os.Exit(1)
}
