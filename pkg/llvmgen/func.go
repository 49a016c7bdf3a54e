package llvmgen

import (
	"fmt"
	"slices"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// funcGen holds the state for one function body.
type funcGen struct {
	g      *Generator
	fn     *rtl.Function
	f      *ir.Func
	entry  *ir.Block
	blocks map[rtl.Node]*ir.Block
	slots  map[rtl.Reg]*ir.InstAlloca
}

func (g *Generator) function(fn *rtl.Function) {
	fg := &funcGen{
		g:      g,
		fn:     fn,
		f:      g.funcs[fn.Name],
		blocks: make(map[rtl.Node]*ir.Block),
		slots:  make(map[rtl.Reg]*ir.InstAlloca),
	}
	fg.entry = fg.f.NewBlock("entry")
	for i, r := range fn.Params {
		fg.entry.NewStore(fg.f.Params[i], fg.slot(r))
	}

	nodes := make([]rtl.Node, 0, len(fn.Code))
	for n := range fn.Code {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		fg.blocks[n] = fg.f.NewBlock(fmt.Sprintf("n%d", n))
	}
	fg.entry.NewBr(fg.block(fn.Entrypoint))
	for _, n := range nodes {
		fg.instruction(fg.blocks[n], fn.Code[n])
	}
}

func (fg *funcGen) block(n rtl.Node) *ir.Block {
	b, ok := fg.blocks[n]
	if !ok {
		diag.Internal("%s: jump to node %d, which has no instruction", fg.fn.Name, n)
	}
	return b
}

// slot returns the stack slot of a register. Slots are placed in the entry
// block ahead of its terminator.
func (fg *funcGen) slot(r rtl.Reg) *ir.InstAlloca {
	if s, ok := fg.slots[r]; ok {
		return s
	}
	s := fg.entry.NewAlloca(fg.g.word)
	fg.slots[r] = s
	return s
}

func (fg *funcGen) use(b *ir.Block, r rtl.Reg) value.Value {
	return b.NewLoad(fg.g.word, fg.slot(r))
}

func (fg *funcGen) uses(b *ir.Block, rs []rtl.Reg) []value.Value {
	vs := make([]value.Value, len(rs))
	for i, r := range rs {
		vs[i] = fg.use(b, r)
	}
	return vs
}

func (fg *funcGen) def(b *ir.Block, r rtl.Reg, v value.Value) {
	b.NewStore(v, fg.slot(r))
}

func (fg *funcGen) word(v int64) *constant.Int {
	return constant.NewInt(fg.g.word, v)
}

func (fg *funcGen) instruction(b *ir.Block, instr rtl.Instruction) {
	switch i := instr.(type) {
	case rtl.Inop:
		b.NewBr(fg.block(i.Succ))
	case rtl.Iop:
		fg.def(b, i.Dest, fg.operation(b, i.Op, fg.uses(b, i.Args)))
		b.NewBr(fg.block(i.Succ))
	case rtl.Iload:
		t := chunkType(i.Chunk)
		ptr := b.NewIntToPtr(fg.address(b, i.Addr, i.Args), types.NewPointer(t))
		var v value.Value = b.NewLoad(t, ptr)
		if t.BitSize < fg.g.word.BitSize {
			v = b.NewZExt(v, fg.g.word)
		}
		fg.def(b, i.Dest, v)
		b.NewBr(fg.block(i.Succ))
	case rtl.Istore:
		t := chunkType(i.Chunk)
		ptr := b.NewIntToPtr(fg.address(b, i.Addr, i.Args), types.NewPointer(t))
		v := fg.use(b, i.Src)
		if t.BitSize < fg.g.word.BitSize {
			v = b.NewTrunc(v, t)
		}
		b.NewStore(v, ptr)
		b.NewBr(fg.block(i.Succ))
	case rtl.Icall:
		call := b.NewCall(fg.callee(b, i.Fn, len(i.Args), len(i.Dests)), fg.uses(b, i.Args)...)
		fg.results(b, call, i.Dests)
		b.NewBr(fg.block(i.Succ))
	case rtl.Itailcall:
		fg.tailcall(b, i)
	case rtl.Ibuiltin:
		args := fg.uses(b, i.Args)
		params := make([]types.Type, len(args))
		for j := range params {
			params[j] = fg.g.word
		}
		ret := types.Type(types.Void)
		if i.Dest != nil {
			ret = fg.g.word
		}
		call := b.NewCall(fg.g.external(i.Builtin, ret, params...), args...)
		if i.Dest != nil {
			fg.def(b, *i.Dest, call)
		}
		b.NewBr(fg.block(i.Succ))
	case rtl.Ialloc:
		alloc := fg.g.external(AllocFunc, types.I8Ptr, fg.g.word)
		bytes := int64(i.Words) * int64(fg.g.word.BitSize/8)
		p := b.NewCall(alloc, fg.word(bytes))
		fg.def(b, i.Dest, b.NewPtrToInt(p, fg.g.word))
		b.NewBr(fg.block(i.Succ))
	case rtl.Icond:
		c := fg.condition(b, i.Cond, i.Args)
		b.NewCondBr(c, fg.block(i.IfSo), fg.block(i.IfNot))
	case rtl.Ijumptable:
		if len(i.Targets) == 0 {
			b.NewUnreachable()
			return
		}
		cases := make([]*ir.Case, len(i.Targets)-1)
		for j, t := range i.Targets[:len(i.Targets)-1] {
			cases[j] = ir.NewCase(fg.word(int64(j)), fg.block(t))
		}
		b.NewSwitch(fg.use(b, i.Arg), fg.block(i.Targets[len(i.Targets)-1]), cases...)
	case rtl.Ireturn:
		fg.ret(b, fg.uses(b, i.Args))
	case rtl.Iabort:
		msg := fg.g.cstring(i.Reason)
		zero := constant.NewInt(types.I32, 0)
		p := b.NewGetElementPtr(msg.ContentType, msg, zero, zero)
		b.NewCall(fg.g.external(AbortFunc, types.Void, types.I8Ptr), p)
		b.NewUnreachable()
	default:
		diag.Internal("unexpected instruction %T", instr)
	}
}

// address computes a memory address as a word.
func (fg *funcGen) address(b *ir.Block, addr rtl.AddressingMode, args []rtl.Reg) value.Value {
	var base value.Value
	var off int64
	switch a := addr.(type) {
	case rtl.Aindexed:
		base, off = fg.use(b, args[0]), a.Offset
	case rtl.Aglobal:
		base, off = b.NewPtrToInt(fg.g.global(a.Symbol), fg.g.word), a.Offset
	default:
		diag.Internal("unexpected addressing mode %T", addr)
	}
	if off == 0 {
		return base
	}
	return b.NewAdd(base, fg.word(off))
}

func (fg *funcGen) callee(b *ir.Block, fn rtl.FunRef, args, results int) value.Value {
	switch f := fn.(type) {
	case rtl.FunSymbol:
		if callee, ok := fg.g.funcs[f.Name]; ok {
			return callee
		}
		params := make([]types.Type, args)
		for i := range params {
			params[i] = fg.g.word
		}
		return fg.g.external(f.Name, fg.g.retType(results), params...)
	case rtl.FunReg:
		return b.NewIntToPtr(fg.use(b, f.Reg), fg.g.funcPtrType(args, results))
	}
	diag.Internal("unexpected function reference %T", fn)
	return nil
}

func (fg *funcGen) results(b *ir.Block, call *ir.InstCall, dests []rtl.Reg) {
	switch len(dests) {
	case 0:
	case 1:
		fg.def(b, dests[0], call)
	default:
		for i, d := range dests {
			fg.def(b, d, b.NewExtractValue(call, uint64(i)))
		}
	}
}

// tailcall returns whatever the callee returns, which has the shape of the
// current function's results.
func (fg *funcGen) tailcall(b *ir.Block, i rtl.Itailcall) {
	n := fg.fn.Sig.Results
	if s, ok := i.Fn.(rtl.FunSymbol); ok {
		if m, known := fg.g.results[s.Name]; known && m != n {
			diag.Internal("%s tail calls %s, which returns %d words instead of %d", fg.fn.Name, s.Name, m, n)
		}
	}
	call := b.NewCall(fg.callee(b, i.Fn, len(i.Args), n), fg.uses(b, i.Args)...)
	call.Tail = enum.TailTail
	if n == 0 {
		b.NewRet(nil)
		return
	}
	b.NewRet(call)
}

func (fg *funcGen) ret(b *ir.Block, vs []value.Value) {
	switch len(vs) {
	case 0:
		b.NewRet(nil)
	case 1:
		b.NewRet(vs[0])
	default:
		var agg value.Value = constant.NewUndef(fg.g.retType(len(vs)))
		for i, v := range vs {
			agg = b.NewInsertValue(agg, v, uint64(i))
		}
		b.NewRet(agg)
	}
}

func chunkType(c rtl.Chunk) *types.IntType {
	switch c {
	case rtl.Mint8unsigned:
		return types.I8
	case rtl.Mint16unsigned:
		return types.I16
	case rtl.Mint32:
		return types.I32
	}
	return types.I64
}
