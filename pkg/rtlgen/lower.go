package rtlgen

import (
	"fmt"
	"slices"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/bgins/mil-tools/pkg/types"
)

// Program lowers the reachable definitions of a specialized,
// representation-transformed program.
//
// Entrypoint blocks, blocks called from a binding and blocks that top-level
// or closure definitions jump to become functions, as do blocks that more
// than one function jumps to. Every other block becomes a label inside the
// one function that reaches it. A closure becomes a code function taking
// the closure record followed by its arguments, and a top-level definition
// becomes a global with an init function.
func Program(ctx *mil.Context, prog *mil.Program) (out *rtl.Program, err error) {
	defer diag.Recover(&err)

	ids := prog.Reachable()
	for _, id := range ids {
		d := prog.Defn(id)
		if mil.IsPolymorphic(d) {
			return nil, diag.Errorf(d.Head().Pos, diag.StructuralError,
				"cannot generate code for polymorphic definition %s", d.Head().Name)
		}
	}

	l := &lowerer{
		ctx:       ctx,
		prog:      prog,
		out:       &rtl.Program{WordSize: ctx.WordSize},
		wordBytes: int64(ctx.WordBytes()),
		chunk:     ChunkFor(ctx.WordBytes()),
		names:     make(map[mil.DefnID]string),
		codeNames: make(map[mil.DefnID]string),
		used:      make(map[string]bool),
		roots:     make(map[mil.DefnID]bool),
	}
	l.reserveExternal(ids)
	l.classify(ids)

	for _, scc := range prog.SCCs(ids) {
		for _, id := range scc {
			switch d := prog.Defn(id).(type) {
			case *mil.Block:
				if l.roots[id] {
					l.blockFunction(d)
				}
			case *mil.ClosureDefn:
				l.closureFunction(d)
			case *mil.TopLevel:
				l.topLevel(d)
			}
		}
	}
	ctx.Log.Debug("lowered to rtl", "pass", "rtlgen", "functions", len(l.out.Functions), "globals", len(l.out.Globals))
	return l.out, nil
}

type lowerer struct {
	ctx       *mil.Context
	prog      *mil.Program
	out       *rtl.Program
	wordBytes int64
	chunk     rtl.Chunk

	names     map[mil.DefnID]string
	codeNames map[mil.DefnID]string
	used      map[string]bool
	roots     map[mil.DefnID]bool
}

// reserve returns a symbol based on name that no other symbol uses.
func (l *lowerer) reserve(name string) string {
	s := name
	for i := 1; l.used[s]; i++ {
		s = fmt.Sprintf("%s_%d", name, i)
	}
	l.used[s] = true
	return s
}

func (l *lowerer) symbol(id mil.DefnID) string {
	if s, ok := l.names[id]; ok {
		return s
	}
	name := l.prog.Defn(id).Head().Name
	if t, ok := l.prog.Defn(id).(*mil.TopLevel); ok && len(t.Lhs) > 0 {
		name = t.Lhs[0].Name
	}
	s := l.reserve(name)
	l.names[id] = s
	return s
}

func (l *lowerer) codeSymbol(id mil.DefnID) string {
	if s, ok := l.codeNames[id]; ok {
		return s
	}
	s := l.reserve(l.symbol(id) + "_code")
	l.codeNames[id] = s
	return s
}

// reserveExternal claims the names of unresolved externals and of
// user primitives, which are defined outside the program.
func (l *lowerer) reserveExternal(ids []mil.DefnID) {
	for _, id := range ids {
		if x, ok := l.prog.Defn(id).(*mil.External); ok && x.Impl == mil.NoDefn {
			l.used[x.Ref] = true
		}
		forEachTail(l.prog.Defn(id), func(t mil.Tail) {
			if p, ok := t.(*mil.PrimCall); ok && p.Prim.Op == mil.OpUser {
				l.used[p.Prim.Name] = true
			}
		})
	}
}

func forEachTail(d mil.Defn, f func(mil.Tail)) {
	switch x := d.(type) {
	case *mil.Block:
		mil.WalkCode(x.Body, func(c mil.Code) {
			switch c := c.(type) {
			case *mil.Bind:
				f(c.Tail)
			case *mil.Done:
				f(c.Tail)
			}
		})
	case *mil.ClosureDefn:
		f(x.Tail)
	case *mil.TopLevel:
		f(x.Tail)
	}
}

// classify decides which blocks become functions.
func (l *lowerer) classify(ids []mil.DefnID) {
	jumps := make(map[mil.DefnID][]mil.DefnID)
	for _, id := range ids {
		switch d := l.prog.Defn(id).(type) {
		case *mil.Block:
			if d.Entrypoint {
				l.roots[id] = true
			}
			mil.WalkCode(d.Body, func(c mil.Code) {
				switch c := c.(type) {
				case *mil.Bind:
					if bc, ok := c.Tail.(*mil.BlockCall); ok {
						l.roots[l.prog.Resolve(bc.Block)] = true
					}
				case *mil.Done:
					if bc, ok := c.Tail.(*mil.BlockCall); ok {
						jumps[id] = append(jumps[id], l.prog.Resolve(bc.Block))
					}
				}
				for _, bc := range mil.Calls(c) {
					jumps[id] = append(jumps[id], l.prog.Resolve(bc.Block))
				}
			})
		case *mil.ClosureDefn:
			if bc, ok := d.Tail.(*mil.BlockCall); ok {
				l.roots[l.prog.Resolve(bc.Block)] = true
			}
		case *mil.TopLevel:
			if bc, ok := d.Tail.(*mil.BlockCall); ok {
				l.roots[l.prog.Resolve(bc.Block)] = true
			}
		}
	}

	for {
		owner := make(map[mil.DefnID]mil.DefnID)
		changed := false
		roots := make([]mil.DefnID, 0, len(l.roots))
		for id := range l.roots {
			roots = append(roots, id)
		}
		slices.Sort(roots)
		for _, r := range roots {
			seen := map[mil.DefnID]bool{r: true}
			work := slices.Clone(jumps[r])
			for len(work) > 0 {
				b := work[len(work)-1]
				work = work[:len(work)-1]
				if seen[b] || l.roots[b] {
					continue
				}
				seen[b] = true
				if o, ok := owner[b]; ok && o != r {
					l.roots[b] = true
					changed = true
					continue
				}
				owner[b] = r
				work = append(work, jumps[b]...)
			}
		}
		if !changed {
			return
		}
	}
}

func tupleLen(t types.Type) int {
	if t == nil {
		return 0
	}
	if es, ok := types.TupleElems(t); ok {
		return len(es)
	}
	return 1
}

func blockResults(b *mil.Block) int {
	if b.Declared == nil {
		return 0
	}
	return tupleLen(b.Declared.Rng)
}

func closureResults(k *mil.ClosureDefn) int {
	if k.Declared == nil {
		return 0
	}
	if _, rng, ok := types.IsFun(k.Declared.Result); ok {
		return tupleLen(rng)
	}
	return 0
}

// tailResults is the number of words a non-call tail produces.
func tailResults(t mil.Tail) int {
	switch x := t.(type) {
	case *mil.Return:
		return len(x.Args)
	case *mil.PrimCall:
		if x.Prim.Type == nil || x.Prim.DoesntReturn() {
			return 0
		}
		return tupleLen(x.Prim.Type.Rng)
	}
	return 1
}

func (l *lowerer) finish(fn *rtl.Function) {
	dead := DeadCode(fn)
	Tunnel(fn)
	l.ctx.Log.Debug("generated function", "pass", "rtlgen", "function", fn.Name, "nodes", len(fn.Code), "dead", dead)
	l.out.Functions = append(l.out.Functions, *fn)
}

func (l *lowerer) blockFunction(b *mil.Block) {
	f := l.newFunc()
	params := f.regs.BlockParams(b)
	entry, _ := f.cfg.GetOrCreateLabel(b.ID)
	f.pending = append(f.pending, b)
	f.drain()

	fn := rtl.NewFunction(l.symbol(b.ID), rtl.Sig{Args: len(params), Results: blockResults(b)})
	fn.Params = params
	fn.Code = f.cfg.GetCode()
	fn.Entrypoint = entry
	fn.Exported = b.Entrypoint
	l.finish(fn)
}

func (l *lowerer) closureFunction(k *mil.ClosureDefn) {
	f := l.newFunc()
	clo := f.regs.Fresh()
	args := f.regs.MapTemps(k.Args)
	entry := f.cfg.AllocNode()
	f.cfg.Start(entry)
	for i, p := range k.Params {
		f.ib.EmitLoad(l.chunk, rtl.Aindexed{Offset: int64(1+i) * l.wordBytes}, []rtl.Reg{clo}, f.regs.MapTemp(p))
	}
	f.tail(k.Tail)
	f.drain()

	fn := rtl.NewFunction(l.codeSymbol(k.ID), rtl.Sig{Args: 1 + len(args), Results: closureResults(k)})
	fn.Params = append([]rtl.Reg{clo}, args...)
	fn.Code = f.cfg.GetCode()
	fn.Entrypoint = entry
	fn.Exported = k.Entrypoint
	l.out.Layouts = append(l.out.Layouts, rtl.Layout{Closure: l.symbol(k.ID), Fun: fn.Name, Stored: len(k.Params)})
	l.finish(fn)
}

func (l *lowerer) topLevel(t *mil.TopLevel) {
	name := l.symbol(t.ID)
	initName := l.reserve("init_" + name)
	l.out.Globals = append(l.out.Globals, rtl.GlobVar{Name: name, Words: len(t.Lhs), Init: initName})

	f := l.newFunc()
	entry := f.cfg.AllocNode()
	f.cfg.Start(entry)
	dests := f.regs.FreshN(len(t.Lhs))
	f.bindRegs(dests, t.Tail)
	if f.cfg.Open() {
		for i, d := range dests {
			f.ib.EmitStore(l.chunk, rtl.Aglobal{Symbol: name, Offset: int64(i) * l.wordBytes}, nil, d)
		}
		f.ib.EmitReturn(nil)
	}
	f.drain()

	fn := rtl.NewFunction(initName, rtl.Sig{})
	fn.Code = f.cfg.GetCode()
	fn.Entrypoint = entry
	l.finish(fn)
}

// topAddr is the location of the word a top-level reference reads.
func (l *lowerer) topAddr(r *mil.TopRef) rtl.AddressingMode {
	id := l.prog.Resolve(r.Defn)
	off := int64(r.Index) * l.wordBytes
	if x, ok := l.prog.Defn(id).(*mil.External); ok {
		if x.Impl == mil.NoDefn {
			return rtl.Aglobal{Symbol: x.Ref, Offset: off}
		}
		id = l.prog.Resolve(x.Impl)
	}
	return rtl.Aglobal{Symbol: l.symbol(id), Offset: off}
}

// funcGen holds the state for generating one function.
type funcGen struct {
	l       *lowerer
	cfg     *CFGBuilder
	regs    *RegAllocator
	ib      *InstrBuilder
	pending []*mil.Block
}

func (l *lowerer) newFunc() *funcGen {
	cfg := NewCFGBuilder()
	regs := NewRegAllocator()
	return &funcGen{l: l, cfg: cfg, regs: regs, ib: NewInstrBuilder(cfg, regs)}
}

// drain generates the bodies of labels jumped to so far.
func (f *funcGen) drain() {
	for len(f.pending) > 0 {
		b := f.pending[0]
		f.pending = f.pending[1:]
		n, _ := f.cfg.GetLabel(b.ID)
		f.cfg.Start(n)
		f.code(b.Body)
	}
}

func (f *funcGen) code(c mil.Code) {
	for c != nil && f.cfg.Open() {
		switch x := c.(type) {
		case *mil.Bind:
			f.bindRegs(f.regs.MapTemps(x.Vars), x.Tail)
			c = x.Next
		case *mil.Done:
			f.tail(x.Tail)
			return
		case *mil.If:
			cond := f.atom(x.Cond)
			ifso, ifnot := f.cfg.AllocNode(), f.cfg.AllocNode()
			f.ib.EmitCond(rtl.Ccompimm{Cond: rtl.Cne, N: 0}, []rtl.Reg{cond}, ifso, ifnot)
			f.cfg.Start(ifso)
			f.jump(x.IfTrue)
			f.cfg.Start(ifnot)
			f.jump(x.IfFalse)
			return
		case *mil.Case:
			f.caseOf(x)
			return
		default:
			diag.Internal("unexpected code %T", c)
		}
	}
}

func (f *funcGen) caseOf(c *mil.Case) {
	scrut := f.atom(c.Scrut)
	if len(c.Alts) == 0 {
		f.otherwise(c)
		return
	}
	cfuns := c.Alts[0].Cfun.Data.Cfuns
	tag := f.regs.Fresh()
	f.ib.EmitLoad(f.l.chunk, rtl.Aindexed{Offset: 0}, []rtl.Reg{scrut}, tag)

	targets := make([]rtl.Node, len(cfuns))
	alts := make([]rtl.Node, len(c.Alts))
	for i, a := range c.Alts {
		if a.Cfun.Tag >= len(targets) || targets[a.Cfun.Tag] != 0 {
			continue
		}
		alts[i] = f.cfg.AllocNode()
		targets[a.Cfun.Tag] = alts[i]
	}
	var def rtl.Node
	for i := range targets {
		if targets[i] == 0 {
			if def == 0 {
				def = f.cfg.AllocNode()
			}
			targets[i] = def
		}
	}
	f.ib.EmitJumptable(tag, targets)
	for i, a := range c.Alts {
		if alts[i] != 0 {
			f.cfg.Start(alts[i])
			f.jump(a.Call)
		}
	}
	if def != 0 {
		f.cfg.Start(def)
		f.otherwise(c)
	}
}

func (f *funcGen) otherwise(c *mil.Case) {
	if c.Default != nil {
		f.jump(c.Default)
		return
	}
	f.ib.EmitAbort("no alternative")
}

// jump transfers control to a block from tail position.
func (f *funcGen) jump(bc *mil.BlockCall) {
	target := f.l.prog.Resolve(bc.Block)
	args := f.atoms(bc.Args)
	n, ok := f.cfg.GetLabel(target)
	if !ok {
		if f.l.roots[target] {
			f.ib.EmitTailcall(rtl.FunSymbol{Name: f.l.symbol(target)}, args)
			return
		}
		n, _ = f.cfg.GetOrCreateLabel(target)
		f.pending = append(f.pending, f.l.prog.Block(target))
	}
	params := f.regs.BlockParams(f.l.prog.Block(target))
	if len(params) != len(args) {
		diag.Internal("jump to %s with %d arguments, expected %d", f.l.symbol(target), len(args), len(params))
	}
	tmps := f.regs.FreshN(len(args))
	for i, a := range args {
		f.ib.EmitMove(a, tmps[i])
	}
	for i, t := range tmps {
		f.ib.EmitMove(t, params[i])
	}
	f.ib.EmitGoto(n)
}

func (f *funcGen) tail(t mil.Tail) {
	switch x := t.(type) {
	case *mil.BlockCall:
		f.jump(x)
	case *mil.Enter:
		f.enter(x, nil, true)
	case *mil.Return:
		f.ib.EmitReturn(f.atoms(x.Args))
	default:
		dests := f.regs.FreshN(tailResults(t))
		f.compute(t, dests)
		if f.cfg.Open() {
			f.ib.EmitReturn(dests)
		}
	}
}

// bindRegs evaluates t into dests.
func (f *funcGen) bindRegs(dests []rtl.Reg, t mil.Tail) {
	switch x := t.(type) {
	case *mil.BlockCall:
		target := f.l.prog.Resolve(x.Block)
		f.ib.EmitCall(rtl.FunSymbol{Name: f.l.symbol(target)}, f.atoms(x.Args), dests)
	case *mil.Enter:
		f.enter(x, dests, false)
	default:
		f.compute(t, dests)
	}
}

func (f *funcGen) enter(e *mil.Enter, dests []rtl.Reg, tail bool) {
	clo := f.atom(e.Fun)
	args := append([]rtl.Reg{clo}, f.atoms(e.Args)...)
	code := f.regs.Fresh()
	f.ib.EmitLoad(f.l.chunk, rtl.Aindexed{Offset: 0}, []rtl.Reg{clo}, code)
	if tail {
		f.ib.EmitTailcall(rtl.FunReg{Reg: code}, args)
		return
	}
	f.ib.EmitCall(rtl.FunReg{Reg: code}, args, dests)
}

func (f *funcGen) dest(dests []rtl.Reg) rtl.Reg {
	if len(dests) == 0 {
		return f.regs.Fresh()
	}
	return dests[0]
}

func (f *funcGen) compute(t mil.Tail, dests []rtl.Reg) {
	wb := f.l.wordBytes
	switch x := t.(type) {
	case *mil.Return:
		srcs := f.atoms(x.Args)
		for i, d := range dests {
			f.ib.EmitMove(srcs[i], d)
		}
	case *mil.PrimCall:
		f.prim(x, dests)
	case *mil.ClosAlloc:
		id := f.l.prog.Resolve(x.Closure)
		args := f.atoms(x.Args)
		d := f.dest(dests)
		f.ib.EmitAlloc(1+len(args), d)
		code := f.regs.Fresh()
		f.ib.EmitOp(rtl.Oaddrsymbol{Symbol: f.l.codeSymbol(id)}, nil, code)
		f.ib.EmitStore(f.l.chunk, rtl.Aindexed{Offset: 0}, []rtl.Reg{d}, code)
		for i, a := range args {
			f.ib.EmitStore(f.l.chunk, rtl.Aindexed{Offset: int64(1+i) * wb}, []rtl.Reg{d}, a)
		}
	case *mil.DataAlloc:
		args := f.atoms(x.Args)
		d := f.dest(dests)
		f.ib.EmitAlloc(1+len(args), d)
		tag := f.ib.EmitConst(int64(x.Cfun.Tag))
		f.ib.EmitStore(f.l.chunk, rtl.Aindexed{Offset: 0}, []rtl.Reg{d}, tag)
		for i, a := range args {
			f.ib.EmitStore(f.l.chunk, rtl.Aindexed{Offset: int64(1+i) * wb}, []rtl.Reg{d}, a)
		}
	case *mil.Sel:
		arg := f.atom(x.Arg)
		f.ib.EmitLoad(f.l.chunk, rtl.Aindexed{Offset: int64(1+x.Field) * wb}, []rtl.Reg{arg}, f.dest(dests))
	default:
		diag.Internal("unexpected tail %T", t)
	}
}

func (f *funcGen) prim(c *mil.PrimCall, dests []rtl.Reg) {
	p := c.Prim
	args := f.atoms(c.Args)
	switch p.Op {
	case mil.OpHalt, mil.OpLoop:
		f.ib.EmitAbort(p.Name)
		return
	case mil.OpPrintWord:
		f.ib.EmitBuiltin("printWord", args)
		return
	case mil.OpUser:
		f.ib.EmitCall(rtl.FunSymbol{Name: p.Name}, args, dests)
		if p.DoesntReturn() {
			f.ib.EmitAbort(p.Name)
		}
		return
	case mil.OpDiv, mil.OpRem:
		f.checkDivisor(args[1])
	}
	if n, store, ok := mil.MemWidth(p.Op); ok {
		if n > int(f.l.wordBytes) {
			diag.Internal("%s is wider than a word", p.Name)
		}
		if store {
			f.ib.EmitStore(ChunkFor(n), rtl.Aindexed{Offset: 0}, args[:1], args[1])
		} else {
			f.ib.EmitLoad(ChunkFor(n), rtl.Aindexed{Offset: 0}, args[:1], f.dest(dests))
		}
		return
	}
	op, ok := TranslatePrimOp(p.Op)
	if !ok {
		diag.Internal("no instruction for primitive %s", p.Name)
	}
	f.ib.EmitOp(op, args, f.dest(dests))
}

func (f *funcGen) checkDivisor(y rtl.Reg) {
	bad, ok := f.cfg.AllocNode(), f.cfg.AllocNode()
	f.ib.EmitCond(rtl.Ccompimm{Cond: rtl.Ceq, N: 0}, []rtl.Reg{y}, bad, ok)
	f.cfg.Start(bad)
	f.ib.EmitAbort("divide by zero error")
	f.cfg.Start(ok)
}

func (f *funcGen) atom(a mil.Atom) rtl.Reg {
	switch x := a.(type) {
	case *mil.Temp:
		return f.regs.LookupTemp(x)
	case mil.Word:
		return f.ib.EmitConst(f.l.ctx.Normalize(x.Val))
	case mil.Flag:
		if x.Val {
			return f.ib.EmitConst(1)
		}
		return f.ib.EmitConst(0)
	case *mil.TopRef:
		r := f.regs.Fresh()
		f.ib.EmitLoad(f.l.chunk, f.l.topAddr(x), nil, r)
		return r
	}
	diag.Internal("unexpected atom %T", a)
	return 0
}

func (f *funcGen) atoms(as []mil.Atom) []rtl.Reg {
	regs := make([]rtl.Reg, len(as))
	for i, a := range as {
		regs[i] = f.atom(a)
	}
	return regs
}
