package rtlgen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bgins/mil-tools/pkg/loader"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/bgins/mil-tools/pkg/types"
)

func lower(t *testing.T, src string) *rtl.Program {
	t.Helper()
	ctx := mil.NewContext(nil, 64)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Program(ctx, prog)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return out
}

func mustFunction(t *testing.T, prog *rtl.Program, name string) *rtl.Function {
	t.Helper()
	fn, ok := prog.Function(name)
	if !ok {
		var names []string
		for _, f := range prog.Functions {
			names = append(names, f.Name)
		}
		t.Fatalf("no function %s, have %v", name, names)
	}
	return fn
}

func count[T rtl.Instruction](fn *rtl.Function) int {
	n := 0
	for _, instr := range fn.Code {
		if _, ok := instr.(T); ok {
			n++
		}
	}
	return n
}

func dump(prog *rtl.Program) string {
	var buf bytes.Buffer
	rtl.NewPrinter(&buf).PrintProgram(prog)
	return buf.String()
}

const loopSrc = `
blocks:
  - name: main
    type: "[Word] >>= [Word]"
    params: [n]
    entry: true
    code:
      - call: count
        args: [n, 0]
  - name: count
    type: "[Word, Word] >>= [Word]"
    params: [i, acc]
    code:
      - bind: [z]
        prim: primEq
        args: [i, 0]
      - if: z
        then: {call: finish, args: [acc]}
        else: {call: step, args: [i, acc]}
  - name: step
    type: "[Word, Word] >>= [Word]"
    params: [i, acc]
    code:
      - bind: [j]
        prim: sub
        args: [i, 1]
      - bind: [a]
        prim: add
        args: [acc, i]
      - call: count
        args: [j, a]
  - name: finish
    type: "[Word] >>= [Word]"
    params: [r]
    code:
      - return: [r]
`

func TestLowerLoopBecomesLabels(t *testing.T) {
	prog := lower(t, loopSrc)
	if len(prog.Functions) != 1 {
		t.Fatalf("got %d functions, want only main:\n%s", len(prog.Functions), dump(prog))
	}
	fn := mustFunction(t, prog, "main")
	if !fn.Exported {
		t.Error("entrypoint should be exported")
	}
	if fn.Sig != (rtl.Sig{Args: 1, Results: 1}) {
		t.Errorf("Sig = %+v, want 1 argument and 1 result", fn.Sig)
	}
	if n := count[rtl.Icall](fn) + count[rtl.Itailcall](fn); n != 0 {
		t.Errorf("loop should not call, found %d calls:\n%s", n, dump(prog))
	}
	if n := count[rtl.Icond](fn); n != 1 {
		t.Errorf("got %d branches, want 1", n)
	}
	if n := count[rtl.Ireturn](fn); n != 1 {
		t.Errorf("got %d returns, want 1", n)
	}
	if _, ok := fn.Code[fn.Entrypoint]; !ok {
		t.Error("entry node has no instruction")
	}
}

func TestLowerCalls(t *testing.T) {
	prog := lower(t, `
blocks:
  - name: twice
    type: "[Word] >>= [Word]"
    params: [x]
    entry: true
    code:
      - bind: [y]
        call: inc
        args: [x]
      - call: inc
        args: [y]
  - name: inc
    type: "[Word] >>= [Word]"
    params: [x]
    code:
      - prim: add
        args: [x, 1]
`)
	twice := mustFunction(t, prog, "twice")
	inc := mustFunction(t, prog, "inc")
	if inc.Exported {
		t.Error("inc is not an entrypoint")
	}
	out := dump(prog)
	for _, want := range []string{`x2 = call "inc"(x1) goto`, `tailcall "inc"(x2)`, "add(x1, x3)", "return x2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if count[rtl.Icall](twice) != 1 || count[rtl.Itailcall](twice) != 1 {
		t.Errorf("twice should call inc once and tail call it once:\n%s", out)
	}
}

func TestLowerSharedBlockBecomesFunction(t *testing.T) {
	// done is jumped to from two functions, so it cannot be a label
	prog := lower(t, `
blocks:
  - name: a
    params: [x]
    entry: true
    code:
      - call: done
        args: [x]
  - name: b
    params: [x]
    entry: true
    code:
      - call: done
        args: [x]
  - name: done
    type: "[Word] >>= [Word]"
    params: [x]
    code:
      - return: [x]
`)
	mustFunction(t, prog, "done")
	a := mustFunction(t, prog, "a")
	if count[rtl.Itailcall](a) != 1 {
		t.Errorf("a should tail call done:\n%s", dump(prog))
	}
}

func TestLowerClosuresAndGlobals(t *testing.T) {
	prog := lower(t, `
closures:
  - name: k
    type: "{Word} [Word] ->> [Word]"
    stored: [a]
    args: [b]
    tail:
      prim: add
      args: [a, b]
tops:
  - names: [f]
    tail:
      alloc: k
      args: [5]
blocks:
  - name: main
    params: [x]
    entry: true
    code:
      - enter: f
        args: [x]
`)
	if len(prog.Layouts) != 1 || prog.Layouts[0] != (rtl.Layout{Closure: "k", Fun: "k_code", Stored: 1}) {
		t.Errorf("Layouts = %+v", prog.Layouts)
	}
	if len(prog.Globals) != 1 || prog.Globals[0] != (rtl.GlobVar{Name: "f", Words: 1, Init: "init_f"}) {
		t.Errorf("Globals = %+v", prog.Globals)
	}

	code := mustFunction(t, prog, "k_code")
	if len(code.Params) != 2 || code.Sig.Results != 1 {
		t.Errorf("k_code takes %d params and returns %d, want 2 and 1", len(code.Params), code.Sig.Results)
	}
	initFn := mustFunction(t, prog, "init_f")
	if count[rtl.Ialloc](initFn) != 1 {
		t.Errorf("init_f should allocate the closure:\n%s", dump(prog))
	}

	out := dump(prog)
	for _, want := range []string{
		`x1 = alloc 2 goto`,
		`addrsymbol "k_code" 0`,
		`int64["f" + 0] = x1`,
		`x2 = int64["f" + 0] goto`,
		`x3 = int64[x1 + 8] goto`,
		`tailcall x3(x2, x1)`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestLowerCase(t *testing.T) {
	prog := lower(t, `
types:
  - name: Opt
    cfuns:
      - name: None
      - name: Some
        fields: [Word]
blocks:
  - name: main
    type: "[Word] >>= [Word]"
    params: [x]
    entry: true
    code:
      - bind: [o]
        data: Some
        args: [x]
      - case: o
        alts:
          - cfun: Some
            call: get
            args: [o]
  - name: get
    type: "[Opt] >>= [Word]"
    params: [o]
    code:
      - sel: Some
        field: 0
        args: [o]
`)
	fn := mustFunction(t, prog, "main")
	var jt rtl.Ijumptable
	found := false
	for _, instr := range fn.Code {
		if j, ok := instr.(rtl.Ijumptable); ok {
			jt, found = j, true
		}
	}
	if !found {
		t.Fatalf("expected a jump table:\n%s", dump(prog))
	}
	if len(jt.Targets) != 2 {
		t.Fatalf("jump table has %d targets, want one per constructor", len(jt.Targets))
	}
	if _, ok := fn.Code[jt.Targets[0]].(rtl.Iabort); !ok {
		t.Errorf("None should abort, got %T", fn.Code[jt.Targets[0]])
	}
	out := dump(prog)
	for _, want := range []string{"x2 = alloc 2", `abort "no alternative"`, "int64[x2 + 8] = x1", "= int64[x5 + 8] goto"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestLowerDivisionCheck(t *testing.T) {
	prog := lower(t, `
blocks:
  - name: main
    type: "[Word, Word] >>= [Word]"
    params: [x, y]
    entry: true
    code:
      - prim: div
        args: [x, y]
`)
	out := dump(prog)
	for _, want := range []string{"if x2 == 0", `abort "divide by zero error"`, "x3 = div(x1, x2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestLowerEffects(t *testing.T) {
	prog := lower(t, `
blocks:
  - name: main
    params: [x]
    entry: true
    code:
      - bind: []
        prim: printWord
        args: [x]
      - prim: halt
        args: []
`)
	fn := mustFunction(t, prog, "main")
	if count[rtl.Ibuiltin](fn) != 1 {
		t.Errorf("expected a printWord builtin:\n%s", dump(prog))
	}
	if count[rtl.Iabort](fn) != 1 || count[rtl.Ireturn](fn) != 0 {
		t.Errorf("halt should abort without returning:\n%s", dump(prog))
	}
}

func TestLowerRejectsPolymorphic(t *testing.T) {
	ctx := mil.NewContext(nil, 64)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(`
blocks:
  - name: id
    params: [x]
    entry: true
    code:
      - return: [x]
`))
	if err != nil {
		t.Fatal(err)
	}
	prog.Block(prog.Entries[0]).Generics = []*types.TVar{types.NewTVar(types.KStar)}
	if _, err := Program(ctx, prog); err == nil || !strings.Contains(err.Error(), "polymorphic") {
		t.Errorf("expected a polymorphic definition error, got %v", err)
	}
}
