package optimize

import (
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// RemoveUnusedArgs drops block parameters and stored closure parameters
// that are never needed, rewriting every call and allocation to match.
// A parameter is needed if the body reads it other than as an argument, or
// passes it at a position the callee needs. Entrypoints keep every
// parameter.
func RemoveUnusedArgs(ctx *mil.Context, prog *mil.Program) bool {
	ids := prog.Reachable()
	u := &usage{prog: prog}
	for _, id := range ids {
		d := prog.Defn(id)
		ps := mil.Params(d)
		if ps == nil && !hasParams(d) {
			continue
		}
		used := make([]bool, len(ps))
		if d.Head().Entrypoint {
			for i := range used {
				used[i] = true
			}
		}
		setUsedArgs(d, used)
	}
	for changed := true; changed; {
		changed = false
		for _, id := range ids {
			if u.update(prog.Defn(id)) {
				changed = true
			}
		}
	}

	removed := 0
	for _, id := range ids {
		removed += u.shrink(prog.Defn(id))
	}
	if removed == 0 {
		return false
	}
	for _, id := range ids {
		u.rewriteCalls(prog.Defn(id))
	}
	ctx.Log.Debug("removed unused arguments", "pass", "unusedArgs", "count", removed)
	return true
}

func hasParams(d mil.Defn) bool {
	switch d.(type) {
	case *mil.Block, *mil.ClosureDefn:
		return true
	}
	return false
}

func usedArgs(d mil.Defn) []bool {
	switch x := d.(type) {
	case *mil.Block:
		return x.UsedArgs
	case *mil.ClosureDefn:
		return x.UsedArgs
	}
	return nil
}

func setUsedArgs(d mil.Defn, used []bool) {
	switch x := d.(type) {
	case *mil.Block:
		x.UsedArgs = used
	case *mil.ClosureDefn:
		x.UsedArgs = used
	}
}

type usage struct {
	prog *mil.Program
}

// duplicated reports whether the parameter at position i also appears at
// an earlier position, in which case the later one need not be passed.
func duplicated(i int, ps []*mil.Temp) bool {
	for j := 0; j < i; j++ {
		if ps[j] == ps[i] {
			return true
		}
	}
	return false
}

// update marks newly needed parameters of d and reports any change.
func (u *usage) update(d mil.Defn) bool {
	used := usedArgs(d)
	if used == nil || d.Head().Entrypoint {
		return false
	}
	ps := mil.Params(d)
	vars := u.usedVars(d)
	changed := false
	for i, p := range ps {
		if !used[i] && vars[p] && !duplicated(i, ps) {
			used[i] = true
			changed = true
		}
	}
	return changed
}

// usedVars collects the temporaries d needs. Arguments to calls and
// allocations only count at positions the target needs.
func (u *usage) usedVars(d mil.Defn) map[*mil.Temp]bool {
	vars := make(map[*mil.Temp]bool)
	add := func(as []mil.Atom) {
		for _, a := range as {
			if t, ok := a.(*mil.Temp); ok {
				vars[t] = true
			}
		}
	}
	addCall := func(target mil.DefnID, as []mil.Atom) {
		used := usedArgs(u.prog.Defn(target))
		for i, a := range as {
			if used == nil || i >= len(used) || used[i] {
				add([]mil.Atom{a})
			}
		}
	}
	tail := func(t mil.Tail) {
		switch x := t.(type) {
		case *mil.BlockCall:
			addCall(x.Block, x.Args)
		case *mil.ClosAlloc:
			addCall(x.Closure, x.Args)
		default:
			add(mil.TailArgs(t))
		}
	}
	switch x := d.(type) {
	case *mil.Block:
		mil.WalkCode(x.Body, func(c mil.Code) {
			switch c := c.(type) {
			case *mil.Bind:
				tail(c.Tail)
			case *mil.Done:
				tail(c.Tail)
			case *mil.If:
				add([]mil.Atom{c.Cond})
			case *mil.Case:
				add([]mil.Atom{c.Scrut})
			}
			for _, bc := range mil.Calls(c) {
				tail(bc)
			}
		})
	case *mil.ClosureDefn:
		tail(x.Tail)
	}
	return vars
}

// shrink removes unneeded parameters of d and returns how many it removed.
func (u *usage) shrink(d mil.Defn) int {
	used := usedArgs(d)
	if used == nil || d.Head().Entrypoint {
		return 0
	}
	removed := 0
	for _, b := range used {
		if !b {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	switch x := d.(type) {
	case *mil.Block:
		x.Params = keepTemps(x.Params, used)
		dom := keepTypes(x.Declared.DomTypes(), used)
		x.Declared = &types.BlockType{Dom: types.Tuple(dom...), Rng: x.Declared.Rng}
		x.Defining = x.Declared
	case *mil.ClosureDefn:
		x.Params = keepTemps(x.Params, used)
		x.Declared = &types.AllocType{Stored: keepTypes(x.Declared.Stored, used), Result: x.Declared.Result}
		x.Defining = x.Declared
		x.Derived = nil
	}
	return removed
}

func keepTemps(ts []*mil.Temp, used []bool) []*mil.Temp {
	var out []*mil.Temp
	for i, t := range ts {
		if used[i] {
			out = append(out, t)
		}
	}
	return out
}

func keepTypes(ts []types.Type, used []bool) []types.Type {
	var out []types.Type
	for i, t := range ts {
		if used[i] {
			out = append(out, t)
		}
	}
	return out
}

func keepAtoms(as []mil.Atom, used []bool) []mil.Atom {
	var out []mil.Atom
	for i, a := range as {
		if used[i] {
			out = append(out, a)
		}
	}
	return out
}

// rewriteCalls drops the arguments of calls and allocations at removed
// positions.
func (u *usage) rewriteCalls(d mil.Defn) {
	tail := func(t mil.Tail) mil.Tail {
		switch x := t.(type) {
		case *mil.BlockCall:
			return u.blockCall(x)
		case *mil.ClosAlloc:
			k := u.prog.Closure(x.Closure)
			if len(k.Params) == len(x.Args) {
				return x
			}
			return &mil.ClosAlloc{Closure: x.Closure, Args: keepAtoms(x.Args, k.UsedArgs), Inst: k.Declared}
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
			return &mil.If{Cond: x.Cond, IfTrue: u.blockCall(x.IfTrue), IfFalse: u.blockCall(x.IfFalse)}
		case *mil.Case:
			alts := make([]mil.Alt, len(x.Alts))
			for i, a := range x.Alts {
				alts[i] = mil.Alt{Cfun: a.Cfun, Call: u.blockCall(a.Call)}
			}
			return &mil.Case{Scrut: x.Scrut, Alts: alts, Default: u.blockCall(x.Default)}
		}
		return c
	}
	switch x := d.(type) {
	case *mil.Block:
		x.Body = code(x.Body)
	case *mil.ClosureDefn:
		x.Tail = tail(x.Tail)
	case *mil.TopLevel:
		x.Tail = tail(x.Tail)
	}
}

func (u *usage) blockCall(bc *mil.BlockCall) *mil.BlockCall {
	if bc == nil {
		return nil
	}
	b := u.prog.Block(bc.Block)
	if len(b.Params) == len(bc.Args) {
		return bc
	}
	return &mil.BlockCall{Block: bc.Block, Args: keepAtoms(bc.Args, b.UsedArgs), Inst: b.Declared}
}
