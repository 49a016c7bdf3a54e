// Instruction selection for MIL primitives.

package rtlgen

import (
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
)

// TranslatePrimOp converts a word or flag primitive to an RTL operation.
// Flags are words holding 0 or 1, so flag operators become bitwise ones
// and the flag orderings become unsigned comparisons.
func TranslatePrimOp(op mil.PrimOp) (rtl.Operation, bool) {
	switch op {
	case mil.OpNot:
		return rtl.Onot{}, true
	case mil.OpNeg:
		return rtl.Oneg{}, true
	case mil.OpAnd, mil.OpBand:
		return rtl.Oand{}, true
	case mil.OpOr, mil.OpBor:
		return rtl.Oor{}, true
	case mil.OpXor, mil.OpBxor:
		return rtl.Oxor{}, true
	case mil.OpShl:
		return rtl.Oshl{}, true
	case mil.OpLshr:
		return rtl.Oshru{}, true
	case mil.OpAshr:
		return rtl.Oshr{}, true
	case mil.OpAdd:
		return rtl.Oadd{}, true
	case mil.OpSub:
		return rtl.Osub{}, true
	case mil.OpMul:
		return rtl.Omul{}, true
	case mil.OpDiv, mil.OpNzdiv:
		return rtl.Odiv{}, true
	case mil.OpRem:
		return rtl.Omod{}, true
	case mil.OpBnot:
		return rtl.Oxorimm{N: 1}, true
	case mil.OpBeq, mil.OpEq:
		return rtl.Ocmp{Cond: rtl.Ceq}, true
	case mil.OpNeq:
		return rtl.Ocmp{Cond: rtl.Cne}, true
	case mil.OpBlt, mil.OpUlt:
		return rtl.Ocmpu{Cond: rtl.Clt}, true
	case mil.OpBle, mil.OpUle:
		return rtl.Ocmpu{Cond: rtl.Cle}, true
	case mil.OpBgt, mil.OpUgt:
		return rtl.Ocmpu{Cond: rtl.Cgt}, true
	case mil.OpBge, mil.OpUge:
		return rtl.Ocmpu{Cond: rtl.Cge}, true
	case mil.OpSlt:
		return rtl.Ocmp{Cond: rtl.Clt}, true
	case mil.OpSle:
		return rtl.Ocmp{Cond: rtl.Cle}, true
	case mil.OpSgt:
		return rtl.Ocmp{Cond: rtl.Cgt}, true
	case mil.OpSge:
		return rtl.Ocmp{Cond: rtl.Cge}, true
	case mil.OpFlagToWord:
		return rtl.Omove{}, true
	}
	return nil, false
}

// ChunkFor returns the memory chunk covering n bytes.
func ChunkFor(n int) rtl.Chunk {
	switch n {
	case 1:
		return rtl.Mint8unsigned
	case 2:
		return rtl.Mint16unsigned
	case 4:
		return rtl.Mint32
	case 8:
		return rtl.Mint64
	}
	diag.Internal("no memory chunk of %d bytes", n)
	return rtl.Mint64
}

// InstrBuilder emits instructions for one function, combining the CFG
// builder and the register allocator.
type InstrBuilder struct {
	cfg  *CFGBuilder
	regs *RegAllocator
}

// NewInstrBuilder creates an instruction builder from cfg and reg allocator.
func NewInstrBuilder(cfg *CFGBuilder, regs *RegAllocator) *InstrBuilder {
	return &InstrBuilder{cfg: cfg, regs: regs}
}

// EmitOp emits dest = op(args...) at the current node.
func (b *InstrBuilder) EmitOp(op rtl.Operation, args []rtl.Reg, dest rtl.Reg) {
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Iop{Op: op, Args: args, Dest: dest, Succ: succ}
	})
}

// EmitMove emits dest = src.
func (b *InstrBuilder) EmitMove(src, dest rtl.Reg) {
	b.EmitOp(rtl.Omove{}, []rtl.Reg{src}, dest)
}

// EmitConst loads a word constant into a fresh register.
func (b *InstrBuilder) EmitConst(v int64) rtl.Reg {
	r := b.regs.Fresh()
	b.EmitOp(rtl.Ointconst{Value: v}, nil, r)
	return r
}

// EmitLoad emits dest = chunk[addr].
func (b *InstrBuilder) EmitLoad(chunk rtl.Chunk, addr rtl.AddressingMode, args []rtl.Reg, dest rtl.Reg) {
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Iload{Chunk: chunk, Addr: addr, Args: args, Dest: dest, Succ: succ}
	})
}

// EmitStore emits chunk[addr] = src.
func (b *InstrBuilder) EmitStore(chunk rtl.Chunk, addr rtl.AddressingMode, args []rtl.Reg, src rtl.Reg) {
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Istore{Chunk: chunk, Addr: addr, Args: args, Src: src, Succ: succ}
	})
}

// EmitCall emits dests = fn(args...).
func (b *InstrBuilder) EmitCall(fn rtl.FunRef, args, dests []rtl.Reg) {
	sig := rtl.Sig{Args: len(args), Results: len(dests)}
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Icall{Sig: sig, Fn: fn, Args: args, Dests: dests, Succ: succ}
	})
}

// EmitTailcall ends the current path with a tail call.
func (b *InstrBuilder) EmitTailcall(fn rtl.FunRef, args []rtl.Reg) {
	b.cfg.Terminate(rtl.Itailcall{Sig: rtl.Sig{Args: len(args)}, Fn: fn, Args: args})
}

// EmitBuiltin emits a call to a runtime routine without a result.
func (b *InstrBuilder) EmitBuiltin(name string, args []rtl.Reg) {
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Ibuiltin{Builtin: name, Args: args, Succ: succ}
	})
}

// EmitAlloc allocates a heap record of the given number of words.
func (b *InstrBuilder) EmitAlloc(words int, dest rtl.Reg) {
	b.cfg.Emit(func(succ rtl.Node) rtl.Instruction {
		return rtl.Ialloc{Words: words, Dest: dest, Succ: succ}
	})
}

// EmitCond ends the current path with a two-way branch.
func (b *InstrBuilder) EmitCond(cond rtl.ConditionCode, args []rtl.Reg, ifso, ifnot rtl.Node) {
	b.cfg.Terminate(rtl.Icond{Cond: cond, Args: args, IfSo: ifso, IfNot: ifnot})
}

// EmitJumptable ends the current path with an indexed jump.
func (b *InstrBuilder) EmitJumptable(arg rtl.Reg, targets []rtl.Node) {
	b.cfg.Terminate(rtl.Ijumptable{Arg: arg, Targets: targets})
}

// EmitReturn ends the current path by returning args.
func (b *InstrBuilder) EmitReturn(args []rtl.Reg) {
	b.cfg.Terminate(rtl.Ireturn{Args: args})
}

// EmitAbort ends the current path by stopping the program.
func (b *InstrBuilder) EmitAbort(reason string) {
	b.cfg.Terminate(rtl.Iabort{Reason: reason})
}

// EmitGoto ends the current path with a jump to n.
func (b *InstrBuilder) EmitGoto(n rtl.Node) {
	b.cfg.Terminate(rtl.Inop{Succ: n})
}

// AllocNode allocates a fresh CFG node.
func (b *InstrBuilder) AllocNode() rtl.Node {
	return b.cfg.AllocNode()
}

// Fresh allocates a fresh register.
func (b *InstrBuilder) Fresh() rtl.Reg {
	return b.regs.Fresh()
}
