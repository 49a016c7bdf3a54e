package optimize

import (
	"strconv"
	"strings"

	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// Simplify rewrites every reachable body using facts collected along its
// straight-line bindings: constant folding, bnot duals, common
// subexpressions, known closures and constructors, and dead bindings. It
// reports whether anything changed.
func Simplify(ctx *mil.Context, prog *mil.Program) bool {
	s := &simplifier{ctx: ctx, prog: prog}
	for _, id := range prog.Reachable() {
		switch d := prog.Defn(id).(type) {
		case *mil.Block:
			f := newFacts()
			d.Body = s.removeDead(s.code(f, d.Body))
		case *mil.ClosureDefn:
			d.Tail = s.tail(newFacts(), d.Tail)
		case *mil.TopLevel:
			d.Tail = s.tail(newFacts(), d.Tail)
		}
	}
	ctx.Log.Debug("simplify", "pass", "simplify", "changed", s.changed)
	return s.changed > 0
}

type simplifier struct {
	ctx     *mil.Context
	prog    *mil.Program
	changed int
}

// facts describes the bindings seen so far in one body.
type facts struct {
	env   map[*mil.Temp]mil.Atom
	known map[*mil.Temp]mil.Tail
	avail map[string][]*mil.Temp
}

func newFacts() *facts {
	return &facts{
		env:   make(map[*mil.Temp]mil.Atom),
		known: make(map[*mil.Temp]mil.Tail),
		avail: make(map[string][]*mil.Temp),
	}
}

func (f *facts) atom(a mil.Atom) mil.Atom {
	for {
		t, ok := a.(*mil.Temp)
		if !ok {
			return a
		}
		r, ok := f.env[t]
		if !ok {
			return a
		}
		a = r
	}
}

func (f *facts) copier() *mil.Copier {
	c := mil.NewCopier()
	for t := range f.env {
		c.Bind(t, f.atom(t))
	}
	return c
}

// forget drops available results that an effect may invalidate.
func (f *facts) forget() {
	for k := range f.avail {
		if !strings.HasPrefix(k, "pure ") {
			delete(f.avail, k)
		}
	}
}

// availKey identifies a repeatable tail by operator and arguments.
func availKey(t mil.Tail) (string, bool) {
	var sb strings.Builder
	switch x := t.(type) {
	case *mil.PrimCall:
		if !x.Prim.IsRepeatable() {
			return "", false
		}
		if x.Prim.Purity == mil.Pure {
			sb.WriteString("pure ")
		} else {
			sb.WriteString("observe ")
		}
		sb.WriteString(strconv.Itoa(x.Prim.Index))
	case *mil.Sel:
		sb.WriteString("pure sel ")
		sb.WriteString(x.Cfun.Name)
		sb.WriteString(" ")
		sb.WriteString(strconv.Itoa(x.Field))
	default:
		return "", false
	}
	for _, a := range mil.TailArgs(t) {
		sb.WriteString(" ")
		switch v := a.(type) {
		case *mil.Temp:
			sb.WriteString("t")
			sb.WriteString(strconv.FormatInt(v.ID, 10))
		default:
			sb.WriteString(a.String())
		}
	}
	return sb.String(), true
}

func (s *simplifier) code(f *facts, c mil.Code) mil.Code {
	switch x := c.(type) {
	case *mil.Bind:
		t := s.tail(f, x.Tail)
		if mil.TailDoesntReturn(t) {
			s.changed++
			return &mil.Done{Tail: t}
		}
		if r, ok := t.(*mil.Return); ok && len(r.Args) == len(x.Vars) {
			for i, v := range x.Vars {
				f.env[v] = r.Args[i]
			}
			s.changed++
			return s.code(f, x.Next)
		}
		key, repeatable := availKey(t)
		if repeatable {
			if prev, ok := f.avail[key]; ok && len(prev) == len(x.Vars) {
				for i, v := range x.Vars {
					f.env[v] = prev[i]
				}
				s.changed++
				return s.code(f, x.Next)
			}
		}
		if mil.HasNoEffect(t) {
			if repeatable {
				f.avail[key] = x.Vars
			}
		} else {
			f.forget()
		}
		if len(x.Vars) == 1 {
			f.known[x.Vars[0]] = t
		}
		return &mil.Bind{Vars: x.Vars, Tail: t, Next: s.code(f, x.Next)}

	case *mil.Done:
		return &mil.Done{Tail: s.tail(f, x.Tail)}

	case *mil.If:
		cond := f.atom(x.Cond)
		c := f.copier()
		t, e := c.BlockCall(x.IfTrue), c.BlockCall(x.IfFalse)
		if lit, ok := cond.(mil.Flag); ok {
			s.changed++
			if lit.Val {
				return &mil.Done{Tail: t}
			}
			return &mil.Done{Tail: e}
		}
		if v, ok := cond.(*mil.Temp); ok {
			if p, ok := f.known[v].(*mil.PrimCall); ok && p.Prim.Op == mil.OpBnot {
				s.changed++
				return &mil.If{Cond: p.Args[0], IfTrue: e, IfFalse: t}
			}
		}
		return &mil.If{Cond: cond, IfTrue: t, IfFalse: e}

	case *mil.Case:
		scrut := f.atom(x.Scrut)
		c := f.copier()
		if v, ok := scrut.(*mil.Temp); ok {
			if d, ok := f.known[v].(*mil.DataAlloc); ok {
				for _, a := range x.Alts {
					if a.Cfun == d.Cfun {
						s.changed++
						return &mil.Done{Tail: c.BlockCall(a.Call)}
					}
				}
				if x.Default != nil {
					s.changed++
					return &mil.Done{Tail: c.BlockCall(x.Default)}
				}
			}
		}
		alts := make([]mil.Alt, len(x.Alts))
		for i, a := range x.Alts {
			alts[i] = mil.Alt{Cfun: a.Cfun, Call: c.BlockCall(a.Call)}
		}
		return &mil.Case{Scrut: scrut, Alts: alts, Default: c.BlockCall(x.Default)}
	}
	return c
}

func (s *simplifier) tail(f *facts, t mil.Tail) mil.Tail {
	t = f.copier().Tail(t)
	switch x := t.(type) {
	case *mil.PrimCall:
		if a, ok := x.Prim.Fold(s.ctx.WordSize, x.Args); ok {
			s.changed++
			return &mil.Return{Args: []mil.Atom{a}}
		}
		if r, ok := s.identity(x); ok {
			s.changed++
			return r
		}
		if x.Prim.Op == mil.OpBnot {
			if v, ok := x.Args[0].(*mil.Temp); ok {
				if p, ok := f.known[v].(*mil.PrimCall); ok {
					if d, ok := s.ctx.Prims.Dual(p.Prim); ok {
						s.changed++
						return &mil.PrimCall{Prim: d, Args: p.Args, Inst: d.Type}
					}
				}
			}
		}
	case *mil.Enter:
		if v, ok := x.Fun.(*mil.Temp); ok {
			if alloc, ok := f.known[v].(*mil.ClosAlloc); ok {
				k := s.prog.Closure(alloc.Closure)
				if len(k.Args) == len(x.Args) && len(k.Params) == len(alloc.Args) {
					c := mil.NewCopier()
					c.BindAll(k.Params, alloc.Args)
					c.BindAll(k.Args, x.Args)
					s.changed++
					return c.Tail(k.Tail)
				}
			}
		}
	case *mil.Sel:
		if v, ok := x.Arg.(*mil.Temp); ok {
			if d, ok := f.known[v].(*mil.DataAlloc); ok && d.Cfun == x.Cfun && x.Field < len(d.Args) {
				s.changed++
				return &mil.Return{Args: []mil.Atom{d.Args[x.Field]}}
			}
		}
	case *mil.ClosAlloc:
		if r, ok := s.knownCons(f, x); ok {
			s.changed++
			return r
		}
	}
	return t
}

// identity rewrites arithmetic with a neutral literal operand to its other
// operand.
func (s *simplifier) identity(p *mil.PrimCall) (mil.Tail, bool) {
	if len(p.Args) != 2 || p.Prim.Purity != mil.Pure {
		return nil, false
	}
	x, y := p.Args[0], p.Args[1]
	isWord := func(a mil.Atom, v int64) bool {
		w, ok := a.(mil.Word)
		return ok && w.Val == v
	}
	switch p.Prim.Op {
	case mil.OpAdd, mil.OpOr, mil.OpXor:
		if isWord(y, 0) {
			return &mil.Return{Args: []mil.Atom{x}}, true
		}
		if isWord(x, 0) {
			return &mil.Return{Args: []mil.Atom{y}}, true
		}
	case mil.OpSub, mil.OpShl, mil.OpLshr, mil.OpAshr:
		if isWord(y, 0) {
			return &mil.Return{Args: []mil.Atom{x}}, true
		}
	case mil.OpMul:
		if isWord(y, 1) {
			return &mil.Return{Args: []mil.Atom{x}}, true
		}
		if isWord(x, 1) {
			return &mil.Return{Args: []mil.Atom{y}}, true
		}
	}
	return nil, false
}

// knownCons replaces an allocation that stores known constructor values by
// an allocation of a closure derived for that shape.
func (s *simplifier) knownCons(f *facts, x *mil.ClosAlloc) (mil.Tail, bool) {
	shape := make([]*types.Cfun, len(x.Args))
	allocs := make([]*mil.DataAlloc, len(x.Args))
	found := false
	for i, a := range x.Args {
		if v, ok := a.(*mil.Temp); ok {
			if d, ok := f.known[v].(*mil.DataAlloc); ok {
				shape[i], allocs[i] = d.Cfun, d
				found = true
			}
		}
	}
	if !found {
		return nil, false
	}
	id := DeriveWithKnownCons(s.ctx, s.prog, x.Closure, shape, allocs)
	var args []mil.Atom
	for i, a := range x.Args {
		if allocs[i] != nil {
			args = append(args, allocs[i].Args...)
		} else {
			args = append(args, a)
		}
	}
	return &mil.ClosAlloc{Closure: id, Args: args, Inst: s.prog.Closure(id).Declared}, true
}

// removeDead drops bindings whose results are unused and whose tails have
// no effect.
func (s *simplifier) removeDead(c mil.Code) mil.Code {
	var binds []*mil.Bind
	for {
		b, ok := c.(*mil.Bind)
		if !ok {
			break
		}
		binds = append(binds, b)
		c = b.Next
	}
	live := make(map[*mil.Temp]bool)
	use := func(as []mil.Atom) {
		for _, a := range as {
			if t, ok := a.(*mil.Temp); ok {
				live[t] = true
			}
		}
	}
	use(mil.CodeAtoms(c))
	out := c
	for i := len(binds) - 1; i >= 0; i-- {
		b := binds[i]
		used := false
		for _, v := range b.Vars {
			used = used || live[v]
		}
		if !used && mil.HasNoEffect(b.Tail) {
			s.changed++
			continue
		}
		use(mil.TailArgs(b.Tail))
		out = &mil.Bind{Vars: b.Vars, Tail: b.Tail, Next: out}
	}
	return out
}
