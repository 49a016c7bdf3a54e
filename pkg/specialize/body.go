package specialize

import (
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// rewriter copies one body under a type substitution, redirecting every
// reference to the clone for its instance type.
type rewriter struct {
	s     *Spec
	subst types.Subst
	env   map[*mil.Temp]*mil.Temp
}

func (s *Spec) fill(p pending) {
	r := &rewriter{s: s, subst: p.subst, env: make(map[*mil.Temp]*mil.Temp)}
	switch o := s.prog.Defn(p.orig).(type) {
	case *mil.Block:
		c := s.prog.Block(p.clone)
		c.Params = r.temps(o.Params)
		c.Body = r.code(o.Body)
		if p.orig == p.clone {
			c.Declared = r.blockType(o.Declared)
		}
		c.Defining, c.Generics = c.Declared, nil
	case *mil.ClosureDefn:
		c := s.prog.Closure(p.clone)
		c.Params = r.temps(o.Params)
		c.Args = r.temps(o.Args)
		c.Tail = r.tail(o.Tail)
		if p.orig == p.clone {
			c.Declared = r.allocType(o.Declared)
		}
		c.Defining, c.Generics = c.Declared, nil
	case *mil.TopLevel:
		c := s.prog.Defn(p.clone).(*mil.TopLevel)
		c.Tail = r.tail(o.Tail)
		if p.orig == p.clone {
			for i := range c.Lhs {
				c.Lhs[i].Declared = types.Mono(r.typ(c.Lhs[i].Defining))
			}
		}
		for i := range c.Lhs {
			c.Lhs[i].Defining, c.Lhs[i].Generics = c.Lhs[i].Declared.Type, nil
		}
		c.Generics = nil
	default:
		diag.Internal("cannot specialize %s", o.Head().Name)
	}
}

func (r *rewriter) typ(t types.Type) types.Type {
	return types.Ground(types.Apply(r.subst, t))
}

func (r *rewriter) blockType(bt *types.BlockType) *types.BlockType {
	if bt == nil {
		diag.Internal("call site without an instantiated type")
	}
	return &types.BlockType{Dom: r.typ(bt.Dom), Rng: r.typ(bt.Rng)}
}

func (r *rewriter) allocType(at *types.AllocType) *types.AllocType {
	if at == nil {
		diag.Internal("allocation without an instantiated type")
	}
	stored := make([]types.Type, len(at.Stored))
	for i, t := range at.Stored {
		stored[i] = r.typ(t)
	}
	return &types.AllocType{Stored: stored, Result: r.typ(at.Result)}
}

func (r *rewriter) temps(vs []*mil.Temp) []*mil.Temp {
	out := make([]*mil.Temp, len(vs))
	for i, v := range vs {
		out[i] = mil.NewTemp(r.typ(v.Type))
		r.env[v] = out[i]
	}
	return out
}

func (r *rewriter) atom(a mil.Atom) mil.Atom {
	switch x := a.(type) {
	case *mil.Temp:
		t, ok := r.env[x]
		if !ok {
			diag.Internal("temporary %s is not in scope", x)
		}
		return t
	case *mil.TopRef:
		return r.s.TopRef(x, r.typ(x.Inst))
	}
	return a
}

func (r *rewriter) atoms(as []mil.Atom) []mil.Atom {
	out := make([]mil.Atom, len(as))
	for i, a := range as {
		out[i] = r.atom(a)
	}
	return out
}

func (r *rewriter) blockCall(bc *mil.BlockCall) *mil.BlockCall {
	if bc == nil {
		return nil
	}
	inst := r.blockType(bc.Inst)
	return &mil.BlockCall{Block: r.s.Block(bc.Block, inst), Args: r.atoms(bc.Args), Inst: inst}
}

func (r *rewriter) tail(t mil.Tail) mil.Tail {
	switch x := t.(type) {
	case *mil.Return:
		return &mil.Return{Args: r.atoms(x.Args)}
	case *mil.BlockCall:
		return r.blockCall(x)
	case *mil.PrimCall:
		inst := r.blockType(x.Inst)
		return &mil.PrimCall{Prim: r.s.Prim(x.Prim, inst), Args: r.atoms(x.Args), Inst: inst}
	case *mil.ClosAlloc:
		inst := r.allocType(x.Inst)
		return &mil.ClosAlloc{Closure: r.s.Closure(x.Closure, inst), Args: r.atoms(x.Args), Inst: inst}
	case *mil.DataAlloc:
		return &mil.DataAlloc{Cfun: x.Cfun, Args: r.atoms(x.Args), Inst: r.allocType(x.Inst)}
	case *mil.Enter:
		return &mil.Enter{Fun: r.atom(x.Fun), Args: r.atoms(x.Args)}
	case *mil.Sel:
		return &mil.Sel{Cfun: x.Cfun, Field: x.Field, Arg: r.atom(x.Arg), Inst: r.allocType(x.Inst)}
	}
	diag.Internal("unknown tail %T", t)
	return nil
}

func (r *rewriter) code(c mil.Code) mil.Code {
	switch x := c.(type) {
	case *mil.Bind:
		t := r.tail(x.Tail)
		return &mil.Bind{Vars: r.temps(x.Vars), Tail: t, Next: r.code(x.Next)}
	case *mil.Done:
		return &mil.Done{Tail: r.tail(x.Tail)}
	case *mil.If:
		return &mil.If{Cond: r.atom(x.Cond), IfTrue: r.blockCall(x.IfTrue), IfFalse: r.blockCall(x.IfFalse)}
	case *mil.Case:
		alts := make([]mil.Alt, len(x.Alts))
		for i, a := range x.Alts {
			alts[i] = mil.Alt{Cfun: a.Cfun, Call: r.blockCall(a.Call)}
		}
		return &mil.Case{Scrut: r.atom(x.Scrut), Alts: alts, Default: r.blockCall(x.Default)}
	}
	diag.Internal("unknown code %T", c)
	return nil
}
