package optimize

import (
	"github.com/bgins/mil-tools/pkg/mil"
)

type dupKey struct {
	sum   uint64
	arity int
}

type dupEntry struct {
	key dupKey
	id  mil.DefnID
}

// EliminateDuplicates merges blocks and closure definitions that are
// alpha-equivalent, redirecting every reference to the survivor. Candidates
// are chained in a table of tableSize buckets indexed by a structural
// summary. Entrypoints may survive a merge but are never replaced, and a
// definition is only replaced by one whose declared type matches its own.
func EliminateDuplicates(ctx *mil.Context, prog *mil.Program, tableSize int) bool {
	table := make([][]dupEntry, max(tableSize, 1))
	merged := 0
	for _, id := range prog.Reachable() {
		d := prog.Defn(id)
		k, ok := summarize(d)
		if !ok {
			continue
		}
		idx := k.sum % uint64(len(table))
		if survivor, found := findIn(prog, table[idx], k, d); found {
			if survivor != mil.NoDefn {
				d.Head().ReplaceWith = survivor
				ctx.Log.Debug("merged duplicate", "defn", d.Head().Name, "into", prog.Defn(survivor).Head().Name)
				merged++
			}
			continue
		}
		table[idx] = append(table[idx], dupEntry{key: k, id: id})
	}
	if merged == 0 {
		return false
	}
	redirect(prog)
	ctx.Log.Debug("eliminated duplicates", "pass", "duplicates", "count", merged)
	return true
}

// findIn looks for an equivalent of d in bucket. found is true when d
// should stay out of the table: either it has a replacement, or it is an
// entrypoint with an equivalent already present (survivor is NoDefn).
func findIn(prog *mil.Program, bucket []dupEntry, k dupKey, d mil.Defn) (survivor mil.DefnID, found bool) {
	for _, e := range bucket {
		other := prog.Defn(e.id)
		if e.key != k || !sameDefn(other, d) {
			continue
		}
		if d.Head().Entrypoint {
			return mil.NoDefn, true
		}
		if sameDeclared(other, d) {
			return e.id, true
		}
	}
	return mil.NoDefn, false
}

func summarize(d mil.Defn) (dupKey, bool) {
	s := mil.NewSummary()
	switch x := d.(type) {
	case *mil.Block:
		if x.Failed {
			return dupKey{}, false
		}
		s.Code(x.Body)
		return dupKey{sum: s.Sum(), arity: len(x.Params)}, true
	case *mil.ClosureDefn:
		if x.Failed {
			return dupKey{}, false
		}
		s.Tail(x.Tail)
		return dupKey{sum: s.Sum(), arity: len(x.Params)<<16 | len(x.Args)}, true
	}
	return dupKey{}, false
}

// sameDefn reports whether a and b have alpha-equivalent code.
func sameDefn(a, b mil.Defn) bool {
	switch x := a.(type) {
	case *mil.Block:
		y, ok := b.(*mil.Block)
		if !ok {
			return false
		}
		al := mil.NewAlpha(x.Params, y.Params)
		return al != nil && al.Code(x.Body, y.Body)
	case *mil.ClosureDefn:
		y, ok := b.(*mil.ClosureDefn)
		if !ok {
			return false
		}
		al := mil.NewAlpha(append(append([]*mil.Temp(nil), x.Params...), x.Args...), append(append([]*mil.Temp(nil), y.Params...), y.Args...))
		return al != nil && al.Tail(x.Tail, y.Tail)
	}
	return false
}

// sameDeclared reports whether survivor may stand in for d: survivor has
// no declared type, or both declared types are alpha-equivalent.
func sameDeclared(survivor, d mil.Defn) bool {
	switch x := survivor.(type) {
	case *mil.Block:
		y := d.(*mil.Block)
		return x.Declared == nil || (y.Declared != nil && x.Declared.AlphaEquiv(y.Declared))
	case *mil.ClosureDefn:
		y := d.(*mil.ClosureDefn)
		return x.Declared == nil || (y.Declared != nil && x.Declared.AlphaEquiv(y.Declared))
	}
	return false
}

// redirect rewrites every reference in prog to follow ReplaceWith links.
func redirect(prog *mil.Program) {
	atom := func(a mil.Atom) mil.Atom {
		if r, ok := a.(*mil.TopRef); ok {
			if id := prog.Resolve(r.Defn); id != r.Defn {
				return &mil.TopRef{Defn: id, Index: r.Index, Inst: r.Inst}
			}
		}
		return a
	}
	atoms := func(as []mil.Atom) []mil.Atom {
		out := make([]mil.Atom, len(as))
		for i, a := range as {
			out[i] = atom(a)
		}
		return out
	}
	blockCall := func(bc *mil.BlockCall) *mil.BlockCall {
		if bc == nil {
			return nil
		}
		return &mil.BlockCall{Block: prog.Resolve(bc.Block), Args: atoms(bc.Args), Inst: bc.Inst}
	}
	tail := func(t mil.Tail) mil.Tail {
		switch x := t.(type) {
		case *mil.Return:
			return &mil.Return{Args: atoms(x.Args)}
		case *mil.BlockCall:
			return blockCall(x)
		case *mil.PrimCall:
			return &mil.PrimCall{Prim: x.Prim, Args: atoms(x.Args), Inst: x.Inst}
		case *mil.ClosAlloc:
			return &mil.ClosAlloc{Closure: prog.Resolve(x.Closure), Args: atoms(x.Args), Inst: x.Inst}
		case *mil.DataAlloc:
			return &mil.DataAlloc{Cfun: x.Cfun, Args: atoms(x.Args), Inst: x.Inst}
		case *mil.Enter:
			return &mil.Enter{Fun: atom(x.Fun), Args: atoms(x.Args)}
		case *mil.Sel:
			return &mil.Sel{Cfun: x.Cfun, Field: x.Field, Arg: atom(x.Arg), Inst: x.Inst}
		}
		return t
	}
	var code func(c mil.Code) mil.Code
	code = func(c mil.Code) mil.Code {
		switch x := c.(type) {
		case *mil.Bind:
			return &mil.Bind{Vars: x.Vars, Tail: tail(x.Tail), Next: code(x.Next)}
		case *mil.Done:
			return &mil.Done{Tail: tail(x.Tail)}
		case *mil.If:
			return &mil.If{Cond: atom(x.Cond), IfTrue: blockCall(x.IfTrue), IfFalse: blockCall(x.IfFalse)}
		case *mil.Case:
			alts := make([]mil.Alt, len(x.Alts))
			for i, a := range x.Alts {
				alts[i] = mil.Alt{Cfun: a.Cfun, Call: blockCall(a.Call)}
			}
			return &mil.Case{Scrut: atom(x.Scrut), Alts: alts, Default: blockCall(x.Default)}
		}
		return c
	}
	for _, id := range prog.All() {
		switch d := prog.Defn(id).(type) {
		case *mil.Block:
			d.Body = code(d.Body)
		case *mil.ClosureDefn:
			d.Tail = tail(d.Tail)
			for i := range d.Derived {
				d.Derived[i].Closure = prog.Resolve(d.Derived[i].Closure)
			}
		case *mil.TopLevel:
			d.Tail = tail(d.Tail)
		case *mil.External:
			if d.Impl != mil.NoDefn {
				d.Impl = prog.Resolve(d.Impl)
			}
		}
	}
}
