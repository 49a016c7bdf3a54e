// Package llvmgen emits LLVM IR for an RTL program.
//
// Every pseudo-register gets a stack slot in the entry block, which LLVM's
// mem2reg pass turns back into SSA values. Each RTL node becomes a basic
// block. Words are iN integers for the target word size; addresses are
// carried as words and converted with inttoptr at each memory access.
package llvmgen

import (
	"fmt"
	"io"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// Runtime routines the generated code calls.
const (
	AllocFunc = "mil_alloc"
	AbortFunc = "mil_abort"
	InitFunc  = "mil_init"
)

// Generator converts one RTL program into an LLVM module.
type Generator struct {
	prog *rtl.Program
	mod  *ir.Module
	word *types.IntType

	funcs   map[string]*ir.Func
	results map[string]int
	globals map[string]*ir.Global
	strings map[string]*ir.Global
	rets    map[int]types.Type
}

// Generate builds the module for prog.
func Generate(prog *rtl.Program) (m *ir.Module, err error) {
	defer diag.Recover(&err)
	g := NewGenerator(prog)
	return g.Module(), nil
}

// Write prints m as LLVM assembly.
func Write(w io.Writer, m *ir.Module) error {
	_, err := io.WriteString(w, m.String())
	return err
}

// NewGenerator creates a generator for prog.
func NewGenerator(prog *rtl.Program) *Generator {
	word := types.I64
	if prog.WordSize == 32 {
		word = types.I32
	}
	return &Generator{
		prog:    prog,
		mod:     ir.NewModule(),
		word:    word,
		funcs:   make(map[string]*ir.Func),
		results: make(map[string]int),
		globals: make(map[string]*ir.Global),
		strings: make(map[string]*ir.Global),
		rets:    make(map[int]types.Type),
	}
}

// Module declares every global and function, then fills in the bodies.
func (g *Generator) Module() *ir.Module {
	for _, gv := range g.prog.Globals {
		arr := types.NewArray(uint64(gv.Words), g.word)
		glob := g.mod.NewGlobalDef(gv.Name, constant.NewZeroInitializer(arr))
		glob.Linkage = enum.LinkageInternal
		g.globals[gv.Name] = glob
	}
	for i := range g.prog.Functions {
		fn := &g.prog.Functions[i]
		params := make([]*ir.Param, len(fn.Params))
		for j, r := range fn.Params {
			params[j] = ir.NewParam(fmt.Sprintf("x%d", r), g.word)
		}
		f := g.mod.NewFunc(fn.Name, g.retType(fn.Sig.Results), params...)
		if !fn.Exported {
			f.Linkage = enum.LinkageInternal
		}
		g.funcs[fn.Name] = f
		g.results[fn.Name] = fn.Sig.Results
	}
	for i := range g.prog.Functions {
		g.function(&g.prog.Functions[i])
	}
	g.initFunction()
	return g.mod
}

// retType is void, a word, or a struct of words.
func (g *Generator) retType(n int) types.Type {
	if t, ok := g.rets[n]; ok {
		return t
	}
	var t types.Type
	switch n {
	case 0:
		t = types.Void
	case 1:
		t = g.word
	default:
		fields := make([]types.Type, n)
		for i := range fields {
			fields[i] = g.word
		}
		t = types.NewStruct(fields...)
	}
	g.rets[n] = t
	return t
}

func (g *Generator) funcPtrType(args, results int) *types.PointerType {
	params := make([]types.Type, args)
	for i := range params {
		params[i] = g.word
	}
	return types.NewPointer(types.NewFunc(g.retType(results), params...))
}

// external declares a function defined outside the program.
func (g *Generator) external(name string, ret types.Type, params ...types.Type) *ir.Func {
	if f, ok := g.funcs[name]; ok {
		return f
	}
	ps := make([]*ir.Param, len(params))
	for i, t := range params {
		ps[i] = ir.NewParam("", t)
	}
	f := g.mod.NewFunc(name, ret, ps...)
	g.funcs[name] = f
	return f
}

// global returns the global for a symbol, declaring unknown ones as
// external words.
func (g *Generator) global(name string) *ir.Global {
	if glob, ok := g.globals[name]; ok {
		return glob
	}
	glob := g.mod.NewGlobal(name, g.word)
	g.globals[name] = glob
	return glob
}

func (g *Generator) cstring(s string) *ir.Global {
	if glob, ok := g.strings[s]; ok {
		return glob
	}
	glob := g.mod.NewGlobalDef(fmt.Sprintf(".str.%d", len(g.strings)), constant.NewCharArrayFromString(s+"\x00"))
	glob.Linkage = enum.LinkagePrivate
	glob.Immutable = true
	g.strings[s] = glob
	return glob
}

// initFunction calls every global's initializer in order.
func (g *Generator) initFunction() {
	f := g.mod.NewFunc(InitFunc, types.Void)
	b := f.NewBlock("entry")
	for _, gv := range g.prog.Globals {
		if fn, ok := g.funcs[gv.Init]; ok {
			b.NewCall(fn)
		}
	}
	b.NewRet(nil)
}
