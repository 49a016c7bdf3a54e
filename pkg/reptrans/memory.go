package reptrans

import (
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// wideAccess returns the block replacing a memory primitive wider than a
// word. The block is built on first use and shared by every call site.
func (t *Transform) wideAccess(op mil.PrimOp) (mil.DefnID, bool) {
	if op != mil.OpLoad64 && op != mil.OpStore64 {
		return mil.NoDefn, false
	}
	switch t.ctx.WordSize {
	case 64:
		return mil.NoDefn, false
	case 32:
	default:
		diag.Internal("no decomposition of 64 bit memory access at word size %d", t.ctx.WordSize)
	}
	if id, ok := t.wide[op]; ok {
		return id, true
	}
	var b *mil.Block
	if op == mil.OpLoad64 {
		b = t.load64()
	} else {
		b = t.store64()
	}
	id := t.prog.Add(b)
	t.wide[op] = id
	t.ctx.Log.Debug("decomposed wide memory access", "defn", b.Name)
	return id, true
}

// load64 builds
//
//	load64[a] = lo <- load32(a); a' <- add(a, 4); hi <- load32(a'); return [lo, hi]
func (t *Transform) load64() *mil.Block {
	load := t.canonPrim(t.ctx.Prims.Builtin(mil.OpLoad32))
	add := t.ctx.Prims.Builtin(mil.OpAdd)
	a := mil.NewTemp(types.WordType)
	var cb codeBuilder
	lo := cb.prim(load, a)
	a4 := cb.prim(add, a, mil.Word{Val: 4})
	hi := cb.prim(load, a4)
	b := mil.NewBlock("load64", diag.Builtin, []*mil.Temp{a}, cb.done(&mil.Return{Args: []mil.Atom{lo, hi}}))
	b.Declared = types.NewBlockType(types.Words(1), types.Words(2))
	b.Defining = b.Declared
	return b
}

// store64 builds
//
//	store64[a, lo, hi] = store32(a, lo); a' <- add(a, 4); store32(a', hi); return []
func (t *Transform) store64() *mil.Block {
	store := t.canonPrim(t.ctx.Prims.Builtin(mil.OpStore32))
	add := t.ctx.Prims.Builtin(mil.OpAdd)
	params := mil.NewTemps(types.Words(3))
	a, lo, hi := params[0], params[1], params[2]
	var cb codeBuilder
	cb.effect(store, a, lo)
	a4 := cb.prim(add, a, mil.Word{Val: 4})
	cb.effect(store, a4, hi)
	b := mil.NewBlock("store64", diag.Builtin, params, cb.done(&mil.Return{}))
	b.Declared = types.NewBlockType(types.Words(3), nil)
	b.Defining = b.Declared
	return b
}

// codeBuilder accumulates bindings of word-level primitive calls.
type codeBuilder struct {
	binds []*mil.Bind
}

// prim binds the single result of p applied to args.
func (cb *codeBuilder) prim(p *mil.Prim, args ...mil.Atom) *mil.Temp {
	rng := p.Type.RngTypes()
	if len(rng) != 1 {
		diag.Internal("primitive %s does not return one value", p.Name)
	}
	v := mil.NewTemp(rng[0])
	cb.binds = append(cb.binds, &mil.Bind{Vars: []*mil.Temp{v}, Tail: &mil.PrimCall{Prim: p, Args: args, Inst: p.Type}})
	return v
}

// effect binds no results of p applied to args.
func (cb *codeBuilder) effect(p *mil.Prim, args ...mil.Atom) {
	cb.binds = append(cb.binds, &mil.Bind{Tail: &mil.PrimCall{Prim: p, Args: args, Inst: p.Type}})
}

// done links the bindings in order and ends them with t.
func (cb *codeBuilder) done(t mil.Tail) mil.Code {
	var code mil.Code = &mil.Done{Tail: t}
	for i := len(cb.binds) - 1; i >= 0; i-- {
		cb.binds[i].Next = code
		code = cb.binds[i]
	}
	return code
}
