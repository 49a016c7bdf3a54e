package reptrans

import (
	"fmt"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// RepEnv maps each temporary of the original body to the atoms that
// represent it.
type RepEnv map[*mil.Temp][]mil.Atom

// Transform holds the state of one representation run.
type Transform struct {
	ctx  *mil.Context
	prog *mil.Program
	reps *RepTypeSet
	gens Generators

	prims   map[*mil.Prim]*mil.Prim
	wide    map[mil.PrimOp]mil.DefnID
	impls   map[string]mil.DefnID
	topReps map[mil.DefnID][][]types.Type
}

// New creates a transform for prog at the context's word size.
func New(ctx *mil.Context, prog *mil.Program) *Transform {
	return &Transform{
		ctx:     ctx,
		prog:    prog,
		reps:    NewRepTypeSet(ctx.WordSize),
		gens:    DefaultGenerators(),
		prims:   make(map[*mil.Prim]*mil.Prim),
		wide:    make(map[mil.PrimOp]mil.DefnID),
		impls:   make(map[string]mil.DefnID),
		topReps: make(map[mil.DefnID][][]types.Type),
	}
}

// Program rewrites every reachable definition of a specialized program.
func Program(ctx *mil.Context, prog *mil.Program) error {
	return New(ctx, prog).Run()
}

// Reps exposes the transform's representation cache.
func (t *Transform) Reps() *RepTypeSet { return t.reps }

// Run rewrites the reachable definitions. Definitions created by the
// transform itself are already in word form and are not revisited.
func (t *Transform) Run() error {
	ids := t.prog.Reachable()
	for _, id := range ids {
		if err := t.header(id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		t.body(id)
	}
	t.ctx.Log.Debug("representation transform", "pass", "reptrans", "defns", len(ids), "wordSize", t.ctx.WordSize)
	return nil
}

// header computes the representation of top-level bindings, which other
// bodies refer to, and resolves externals through the generator table.
func (t *Transform) header(id mil.DefnID) error {
	switch d := t.prog.Defn(id).(type) {
	case *mil.TopLevel:
		reps := make([][]types.Type, len(d.Lhs))
		for i, l := range d.Lhs {
			reps[i] = t.reps.Reps(l.Declared.Type)
		}
		t.topReps[id] = reps
	case *mil.External:
		t.topReps[id] = [][]types.Type{t.reps.Reps(d.Declared.Type)}
		impl, err := t.generate(d)
		if err != nil {
			return err
		}
		if impl == mil.NoDefn {
			t.ctx.Log.Debug("external left for the linker", "defn", d.Name, "ref", d.Ref)
			return nil
		}
		if err := t.checkImpl(d, impl, t.topReps[id][0]); err != nil {
			return err
		}
		d.Impl = impl
	}
	return nil
}

func (t *Transform) body(id mil.DefnID) {
	r := &rewriter{t: t, env: make(RepEnv)}
	switch d := t.prog.Defn(id).(type) {
	case *mil.Block:
		params := r.bindTemps(d.Params)
		d.Body = r.code(d.Body)
		d.Params = params
		d.Declared = t.reps.BlockType(d.Declared)
		d.Defining = d.Declared
	case *mil.ClosureDefn:
		params := r.bindTemps(d.Params)
		args := r.bindTemps(d.Args)
		at := t.reps.AllocType(d.Declared)
		_, rng, _ := types.IsFun(at.Result)
		d.Tail = t.tailOf(r.done(d.Tail), d.Name, append(append([]*mil.Temp(nil), params...), args...), rng)
		d.Params, d.Args = params, args
		d.Declared, d.Defining = at, at
	case *mil.TopLevel:
		var lhs []mil.TopLhs
		for i, l := range d.Lhs {
			ts := t.topReps[id][i]
			for j, rt := range ts {
				name := l.Name
				if len(ts) > 1 {
					name = fmt.Sprintf("%s_%d", l.Name, j)
				}
				lhs = append(lhs, mil.TopLhs{Name: name, Declared: types.Mono(rt), Defining: rt})
			}
		}
		rng := make([]types.Type, len(lhs))
		for i, l := range lhs {
			rng[i] = l.Defining
		}
		d.Tail = t.tailOf(r.done(d.Tail), d.Name, nil, types.Tuple(rng...))
		d.Lhs = lhs
	case *mil.External:
		if d.Impl == mil.NoDefn {
			d.Declared = types.Mono(types.Tuple(t.topReps[id][0]...))
			if ts := t.topReps[id][0]; len(ts) == 1 {
				d.Declared = types.Mono(ts[0])
			}
		}
	}
}

// tailOf turns the code for a tail back into a tail. Code that needs more
// than one step is moved into a new block taking params.
func (t *Transform) tailOf(code mil.Code, name string, params []*mil.Temp, rng types.Type) mil.Tail {
	if d, ok := code.(*mil.Done); ok {
		return d.Tail
	}
	c := mil.NewCopier()
	fresh := c.Fresh(params)
	b := mil.NewBlock(name+"_body", diag.Builtin, fresh, c.Code(code))
	b.Declared = &types.BlockType{Dom: types.Tuple(mil.TempTypes(fresh)...), Rng: rng}
	b.Defining = b.Declared
	id := t.prog.Add(b)
	return &mil.BlockCall{Block: id, Args: mil.TempAtoms(params), Inst: b.Declared}
}

// canonPrim returns the word-level version of p, cloning it once if its
// type changes.
func (t *Transform) canonPrim(p *mil.Prim) *mil.Prim {
	if c, ok := t.prims[p]; ok {
		return c
	}
	bt := t.reps.BlockType(p.Type)
	c := p
	if !bt.AlphaEquiv(p.Type) {
		c = t.ctx.Prims.Clone(p, bt)
	}
	t.prims[p] = c
	return c
}

// topRefs returns the atoms representing a top-level reference.
func (t *Transform) topRefs(r *mil.TopRef) []mil.Atom {
	reps, ok := t.topReps[r.Defn]
	if !ok {
		diag.Internal("reference to %s before its representation is known", t.prog.Defn(r.Defn).Head().Name)
	}
	target, off := r.Defn, 0
	for i := 0; i < r.Index; i++ {
		off += len(reps[i])
	}
	if x, ok := t.prog.Defn(r.Defn).(*mil.External); ok && x.Impl != mil.NoDefn {
		target = x.Impl
	}
	out := make([]mil.Atom, len(reps[r.Index]))
	for j, rt := range reps[r.Index] {
		out[j] = &mil.TopRef{Defn: target, Index: off + j, Inst: rt}
	}
	return out
}

type rewriter struct {
	t   *Transform
	env RepEnv
}

// bindTemps gives each temporary fresh word-level replacements.
func (r *rewriter) bindTemps(vs []*mil.Temp) []*mil.Temp {
	var out []*mil.Temp
	for _, v := range vs {
		ts := mil.NewTemps(r.t.reps.Reps(v.Type))
		r.env[v] = mil.TempAtoms(ts)
		out = append(out, ts...)
	}
	return out
}

func (r *rewriter) atom(a mil.Atom) []mil.Atom {
	switch x := a.(type) {
	case *mil.Temp:
		as, ok := r.env[x]
		if !ok {
			diag.Internal("temporary %s has no representation", x)
		}
		return as
	case *mil.TopRef:
		return r.t.topRefs(x)
	}
	return []mil.Atom{a}
}

func (r *rewriter) atoms(as []mil.Atom) []mil.Atom {
	var out []mil.Atom
	for _, a := range as {
		out = append(out, r.atom(a)...)
	}
	return out
}

func (r *rewriter) single(a mil.Atom) mil.Atom {
	as := r.atom(a)
	if len(as) != 1 {
		diag.Internal("atom %s is represented by %d words", a, len(as))
	}
	return as[0]
}

func (r *rewriter) blockCall(bc *mil.BlockCall) *mil.BlockCall {
	if bc == nil {
		return nil
	}
	return &mil.BlockCall{Block: bc.Block, Args: r.atoms(bc.Args), Inst: r.t.reps.BlockType(bc.Inst)}
}

// tail rewrites every tail except selections, which may expand to several
// bindings.
func (r *rewriter) tail(t mil.Tail) mil.Tail {
	switch x := t.(type) {
	case *mil.Return:
		return &mil.Return{Args: r.atoms(x.Args)}
	case *mil.BlockCall:
		return r.blockCall(x)
	case *mil.PrimCall:
		args := r.atoms(x.Args)
		if id, ok := r.t.wideAccess(x.Prim.Op); ok {
			b := r.t.prog.Block(id)
			return &mil.BlockCall{Block: id, Args: args, Inst: b.Declared}
		}
		p := r.t.canonPrim(x.Prim)
		return &mil.PrimCall{Prim: p, Args: args, Inst: p.Type}
	case *mil.ClosAlloc:
		return &mil.ClosAlloc{Closure: x.Closure, Args: r.atoms(x.Args), Inst: r.t.reps.AllocType(x.Inst)}
	case *mil.DataAlloc:
		if x.Cfun.Data == types.UnitTycon {
			return &mil.Return{}
		}
		return &mil.DataAlloc{Cfun: x.Cfun, Args: r.atoms(x.Args), Inst: r.t.reps.AllocType(x.Inst)}
	case *mil.Enter:
		return &mil.Enter{Fun: r.single(x.Fun), Args: r.atoms(x.Args)}
	}
	diag.Internal("unexpected tail %T", t)
	return nil
}

// bind produces the code for vs <- t; next, where vs are already in word
// form. A selection of a field spanning several words becomes one
// selection per word.
func (r *rewriter) bind(vs []*mil.Temp, t mil.Tail, next mil.Code) mil.Code {
	sel, ok := t.(*mil.Sel)
	if !ok {
		return &mil.Bind{Vars: vs, Tail: r.tail(t), Next: next}
	}
	inst := r.t.reps.AllocType(sel.Inst)
	off := len(r.t.reps.RepsAll(sel.Inst.Stored[:sel.Field]))
	n := len(r.t.reps.Reps(sel.Inst.Stored[sel.Field]))
	if n != len(vs) {
		diag.Internal("selection of %d words bound to %d temporaries", n, len(vs))
	}
	if n == 0 {
		return next
	}
	arg := r.single(sel.Arg)
	code := next
	for j := n - 1; j >= 0; j-- {
		code = &mil.Bind{Vars: vs[j : j+1], Tail: &mil.Sel{Cfun: sel.Cfun, Field: off + j, Arg: arg, Inst: inst}, Next: code}
	}
	return code
}

// done produces the code that ends a body with t.
func (r *rewriter) done(t mil.Tail) mil.Code {
	sel, ok := t.(*mil.Sel)
	if !ok {
		return &mil.Done{Tail: r.tail(t)}
	}
	vs := mil.NewTemps(r.t.reps.Reps(sel.Inst.Stored[sel.Field]))
	if len(vs) == 1 {
		inst := r.t.reps.AllocType(sel.Inst)
		off := len(r.t.reps.RepsAll(sel.Inst.Stored[:sel.Field]))
		return &mil.Done{Tail: &mil.Sel{Cfun: sel.Cfun, Field: off, Arg: r.single(sel.Arg), Inst: inst}}
	}
	return r.bind(vs, sel, &mil.Done{Tail: &mil.Return{Args: mil.TempAtoms(vs)}})
}

func (r *rewriter) code(c mil.Code) mil.Code {
	switch x := c.(type) {
	case *mil.Bind:
		t := x.Tail
		// the tail is rewritten before its binders come into scope
		if _, ok := t.(*mil.Sel); !ok {
			t = r.tail(t)
			vs := r.bindTemps(x.Vars)
			return &mil.Bind{Vars: vs, Tail: t, Next: r.code(x.Next)}
		}
		vs := r.bindTemps(x.Vars)
		return r.bind(vs, t, r.code(x.Next))
	case *mil.Done:
		return r.done(x.Tail)
	case *mil.If:
		return &mil.If{Cond: r.single(x.Cond), IfTrue: r.blockCall(x.IfTrue), IfFalse: r.blockCall(x.IfFalse)}
	case *mil.Case:
		scrut := r.atom(x.Scrut)
		if len(scrut) == 0 {
			// values without words have a single constructor
			if len(x.Alts) > 0 {
				return &mil.Done{Tail: r.blockCall(x.Alts[0].Call)}
			}
			return &mil.Done{Tail: r.blockCall(x.Default)}
		}
		alts := make([]mil.Alt, len(x.Alts))
		for i, a := range x.Alts {
			alts[i] = mil.Alt{Cfun: a.Cfun, Call: r.blockCall(a.Call)}
		}
		return &mil.Case{Scrut: scrut[0], Alts: alts, Default: r.blockCall(x.Default)}
	}
	diag.Internal("unexpected code %T", c)
	return nil
}
