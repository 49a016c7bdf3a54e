package optimize

import (
	"github.com/bgins/mil-tools/pkg/mil"
)

type inliner struct {
	prog      *mil.Program
	maxSize   int
	recursive map[mil.DefnID]bool
	changed   int
}

// Inline replaces calls to small, non-recursive blocks with copies of their
// bodies. A call in tail position may take any body; a call whose results
// are bound needs a body that is a straight sequence of bindings.
func Inline(ctx *mil.Context, prog *mil.Program, maxSize int) bool {
	ids := prog.Reachable()
	in := &inliner{prog: prog, maxSize: maxSize, recursive: make(map[mil.DefnID]bool)}
	for _, scc := range prog.SCCs(ids) {
		if prog.IsRecursive(scc) {
			for _, id := range scc {
				in.recursive[id] = true
			}
		}
	}
	for _, id := range ids {
		switch d := prog.Defn(id).(type) {
		case *mil.Block:
			d.Body = in.code(id, d.Body)
		case *mil.ClosureDefn:
			d.Tail = in.trivial(d.Tail)
		case *mil.TopLevel:
			d.Tail = in.trivial(d.Tail)
		}
	}
	ctx.Log.Debug("inline", "pass", "inline", "changed", in.changed)
	return in.changed > 0
}

func (in *inliner) target(self mil.DefnID, t mil.Tail) (*mil.Block, *mil.BlockCall, bool) {
	bc, ok := t.(*mil.BlockCall)
	if !ok || bc.Block == self || in.recursive[bc.Block] {
		return nil, nil, false
	}
	b := in.prog.Block(bc.Block)
	if b.Failed || len(b.Params) != len(bc.Args) || mil.CodeSize(b.Body) > in.maxSize {
		return nil, nil, false
	}
	return b, bc, true
}

func (in *inliner) copyBody(b *mil.Block, bc *mil.BlockCall) mil.Code {
	c := mil.NewCopier()
	c.BindAll(b.Params, bc.Args)
	return c.Code(b.Body)
}

func (in *inliner) code(self mil.DefnID, c mil.Code) mil.Code {
	switch x := c.(type) {
	case *mil.Bind:
		next := in.code(self, x.Next)
		if b, bc, ok := in.target(self, x.Tail); ok && straight(b.Body) {
			in.changed++
			return splice(in.copyBody(b, bc), x.Vars, next)
		}
		return &mil.Bind{Vars: x.Vars, Tail: x.Tail, Next: next}
	case *mil.Done:
		if b, bc, ok := in.target(self, x.Tail); ok {
			in.changed++
			return in.copyBody(b, bc)
		}
	}
	return c
}

// trivial inlines a call to a block whose body is a single tail.
func (in *inliner) trivial(t mil.Tail) mil.Tail {
	b, bc, ok := in.target(mil.NoDefn, t)
	if !ok {
		return t
	}
	d, ok := b.Body.(*mil.Done)
	if !ok {
		return t
	}
	c := mil.NewCopier()
	c.BindAll(b.Params, bc.Args)
	in.changed++
	return c.Tail(d.Tail)
}

// straight reports whether c ends in a single tail rather than a branch.
func straight(c mil.Code) bool {
	for {
		switch x := c.(type) {
		case *mil.Bind:
			c = x.Next
		case *mil.Done:
			return true
		default:
			return false
		}
	}
}

// splice replaces the final tail t of a straight body by vs <- t; next.
func splice(c mil.Code, vs []*mil.Temp, next mil.Code) mil.Code {
	switch x := c.(type) {
	case *mil.Bind:
		return &mil.Bind{Vars: x.Vars, Tail: x.Tail, Next: splice(x.Next, vs, next)}
	case *mil.Done:
		return &mil.Bind{Vars: vs, Tail: x.Tail, Next: next}
	}
	return c
}
