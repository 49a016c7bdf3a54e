package mil

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
)

// Copier rebuilds code while renaming temporaries. Binders are replaced by
// fresh temporaries of the same type, so a copy can be spliced into another
// body without capturing names.
type Copier struct {
	Env map[*Temp]Atom
}

// NewCopier creates a copier with an empty environment.
func NewCopier() *Copier {
	return &Copier{Env: make(map[*Temp]Atom)}
}

// Bind maps old to a replacement atom.
func (c *Copier) Bind(old *Temp, a Atom) {
	c.Env[old] = a
}

// BindAll maps olds to replacement atoms pairwise.
func (c *Copier) BindAll(olds []*Temp, as []Atom) {
	for i, t := range olds {
		c.Env[t] = as[i]
	}
}

// Fresh replaces each binder with a fresh temporary.
func (c *Copier) Fresh(vs []*Temp) []*Temp {
	out := make([]*Temp, len(vs))
	for i, v := range vs {
		out[i] = NewTemp(v.Type)
		c.Env[v] = out[i]
	}
	return out
}

// Atom renames a single atom.
func (c *Copier) Atom(a Atom) Atom {
	if t, ok := a.(*Temp); ok {
		if r, ok := c.Env[t]; ok {
			return r
		}
	}
	return a
}

// Atoms renames a list of atoms.
func (c *Copier) Atoms(as []Atom) []Atom {
	out := make([]Atom, len(as))
	for i, a := range as {
		out[i] = c.Atom(a)
	}
	return out
}

// BlockCall copies a block call.
func (c *Copier) BlockCall(bc *BlockCall) *BlockCall {
	if bc == nil {
		return nil
	}
	return &BlockCall{Block: bc.Block, Args: c.Atoms(bc.Args), Inst: bc.Inst}
}

// Tail copies a tail.
func (c *Copier) Tail(t Tail) Tail {
	switch x := t.(type) {
	case *Return:
		return &Return{Args: c.Atoms(x.Args)}
	case *BlockCall:
		return c.BlockCall(x)
	case *PrimCall:
		return &PrimCall{Prim: x.Prim, Args: c.Atoms(x.Args), Inst: x.Inst}
	case *ClosAlloc:
		return &ClosAlloc{Closure: x.Closure, Args: c.Atoms(x.Args), Inst: x.Inst}
	case *DataAlloc:
		return &DataAlloc{Cfun: x.Cfun, Args: c.Atoms(x.Args), Inst: x.Inst}
	case *Enter:
		return &Enter{Fun: c.Atom(x.Fun), Args: c.Atoms(x.Args)}
	case *Sel:
		return &Sel{Cfun: x.Cfun, Field: x.Field, Arg: c.Atom(x.Arg), Inst: x.Inst}
	}
	return t
}

// Code copies a body.
func (c *Copier) Code(code Code) Code {
	switch x := code.(type) {
	case *Bind:
		t := c.Tail(x.Tail)
		vs := c.Fresh(x.Vars)
		return &Bind{Vars: vs, Tail: t, Next: c.Code(x.Next)}
	case *Done:
		return &Done{Tail: c.Tail(x.Tail)}
	case *If:
		return &If{Cond: c.Atom(x.Cond), IfTrue: c.BlockCall(x.IfTrue), IfFalse: c.BlockCall(x.IfFalse)}
	case *Case:
		alts := make([]Alt, len(x.Alts))
		for i, a := range x.Alts {
			alts[i] = Alt{Cfun: a.Cfun, Call: c.BlockCall(a.Call)}
		}
		return &Case{Scrut: c.Atom(x.Scrut), Alts: alts, Default: c.BlockCall(x.Default)}
	}
	return code
}

// UsedTemps returns the temporaries read anywhere in c.
func UsedTemps(c Code) map[*Temp]bool {
	used := make(map[*Temp]bool)
	WalkCode(c, func(c Code) {
		for _, a := range CodeAtoms(c) {
			if t, ok := a.(*Temp); ok {
				used[t] = true
			}
		}
	})
	return used
}

// CodeAtoms returns the atoms read by a single code node (not its
// continuation).
func CodeAtoms(c Code) []Atom {
	switch x := c.(type) {
	case *Bind:
		return TailArgs(x.Tail)
	case *Done:
		return TailArgs(x.Tail)
	case *If:
		return append(append([]Atom{x.Cond}, x.IfTrue.Args...), x.IfFalse.Args...)
	case *Case:
		as := []Atom{x.Scrut}
		for _, bc := range Calls(x) {
			as = append(as, bc.Args...)
		}
		return as
	}
	return nil
}

// CodeSize counts the bindings and transfer of a body.
func CodeSize(c Code) int {
	n := 0
	WalkCode(c, func(Code) { n++ })
	return n
}

// Alpha tracks a bijection between the temporaries of two bodies.
type Alpha struct {
	fwd map[*Temp]*Temp
	bwd map[*Temp]*Temp
}

// NewAlpha pairs two parameter lists. It returns nil if their lengths
// differ.
func NewAlpha(xs, ys []*Temp) *Alpha {
	if len(xs) != len(ys) {
		return nil
	}
	a := &Alpha{fwd: make(map[*Temp]*Temp), bwd: make(map[*Temp]*Temp)}
	if !a.bindAll(xs, ys) {
		return nil
	}
	return a
}

func (a *Alpha) bindAll(xs, ys []*Temp) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i := range xs {
		if _, ok := a.fwd[xs[i]]; ok {
			return false
		}
		if _, ok := a.bwd[ys[i]]; ok {
			return false
		}
		a.fwd[xs[i]] = ys[i]
		a.bwd[ys[i]] = xs[i]
	}
	return true
}

func (a *Alpha) atom(x, y Atom) bool {
	switch u := x.(type) {
	case *Temp:
		v, ok := y.(*Temp)
		if !ok {
			return false
		}
		if w, ok := a.fwd[u]; ok {
			return w == v
		}
		_, bound := a.bwd[v]
		return !bound && u == v
	case Word:
		v, ok := y.(Word)
		return ok && u.Val == v.Val
	case Flag:
		v, ok := y.(Flag)
		return ok && u.Val == v.Val
	case *TopRef:
		v, ok := y.(*TopRef)
		return ok && u.Defn == v.Defn && u.Index == v.Index
	}
	return false
}

func (a *Alpha) atoms(xs, ys []Atom) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i := range xs {
		if !a.atom(xs[i], ys[i]) {
			return false
		}
	}
	return true
}

func (a *Alpha) blockCall(x, y *BlockCall) bool {
	if x == nil || y == nil {
		return x == y
	}
	return x.Block == y.Block && a.atoms(x.Args, y.Args)
}

// Tail compares two tails under the current bijection.
func (a *Alpha) Tail(x, y Tail) bool {
	switch u := x.(type) {
	case *Return:
		v, ok := y.(*Return)
		return ok && a.atoms(u.Args, v.Args)
	case *BlockCall:
		v, ok := y.(*BlockCall)
		return ok && a.blockCall(u, v)
	case *PrimCall:
		v, ok := y.(*PrimCall)
		return ok && u.Prim == v.Prim && a.atoms(u.Args, v.Args)
	case *ClosAlloc:
		v, ok := y.(*ClosAlloc)
		return ok && u.Closure == v.Closure && a.atoms(u.Args, v.Args)
	case *DataAlloc:
		v, ok := y.(*DataAlloc)
		return ok && u.Cfun == v.Cfun && a.atoms(u.Args, v.Args)
	case *Enter:
		v, ok := y.(*Enter)
		return ok && a.atom(u.Fun, v.Fun) && a.atoms(u.Args, v.Args)
	case *Sel:
		v, ok := y.(*Sel)
		return ok && u.Cfun == v.Cfun && u.Field == v.Field && a.atom(u.Arg, v.Arg)
	}
	return false
}

// Code compares two bodies under the current bijection, extending it at
// each binding.
func (a *Alpha) Code(x, y Code) bool {
	for {
		switch u := x.(type) {
		case *Bind:
			v, ok := y.(*Bind)
			if !ok || !a.Tail(u.Tail, v.Tail) || !a.bindAll(u.Vars, v.Vars) {
				return false
			}
			x, y = u.Next, v.Next
			continue
		case *Done:
			v, ok := y.(*Done)
			return ok && a.Tail(u.Tail, v.Tail)
		case *If:
			v, ok := y.(*If)
			return ok && a.atom(u.Cond, v.Cond) && a.blockCall(u.IfTrue, v.IfTrue) && a.blockCall(u.IfFalse, v.IfFalse)
		case *Case:
			v, ok := y.(*Case)
			if !ok || len(u.Alts) != len(v.Alts) || !a.atom(u.Scrut, v.Scrut) {
				return false
			}
			for i := range u.Alts {
				if u.Alts[i].Cfun != v.Alts[i].Cfun || !a.blockCall(u.Alts[i].Call, v.Alts[i].Call) {
					return false
				}
			}
			return a.blockCall(u.Default, v.Default)
		}
		return false
	}
}

// Summary hashes code structure. Temporaries contribute only their
// position, so alpha-equivalent bodies summarize equally.
type Summary struct {
	h hash.Hash64
}

// NewSummary starts a summary.
func NewSummary() *Summary {
	return &Summary{h: fnv.New64a()}
}

// Sum returns the summary value.
func (s *Summary) Sum() uint64 {
	return s.h.Sum64()
}

func (s *Summary) int(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	s.h.Write(buf[:])
}

func (s *Summary) str(v string) {
	s.h.Write([]byte(v))
	s.h.Write([]byte{0})
}

func (s *Summary) atoms(as []Atom) {
	s.int(int64(len(as)))
	for _, a := range as {
		switch x := a.(type) {
		case *Temp:
			s.str("t")
		case Word:
			s.str("w")
			s.int(x.Val)
		case Flag:
			s.str("f")
			if x.Val {
				s.int(1)
			} else {
				s.int(0)
			}
		case *TopRef:
			s.str("r")
			s.int(int64(x.Defn))
			s.int(int64(x.Index))
		}
	}
}

// Tail adds a tail to the summary.
func (s *Summary) Tail(t Tail) {
	switch x := t.(type) {
	case *Return:
		s.str("return")
	case *BlockCall:
		s.str("call")
		s.int(int64(x.Block))
	case *PrimCall:
		s.str("prim")
		s.str(x.Prim.Name)
		s.int(int64(x.Prim.Index))
	case *ClosAlloc:
		s.str("clos")
		s.int(int64(x.Closure))
	case *DataAlloc:
		s.str("data")
		s.str(x.Cfun.Name)
	case *Enter:
		s.str("enter")
	case *Sel:
		s.str("sel")
		s.str(x.Cfun.Name)
		s.int(int64(x.Field))
	}
	s.atoms(TailArgs(t))
}

// Code adds a body to the summary.
func (s *Summary) Code(c Code) {
	WalkCode(c, func(c Code) {
		switch x := c.(type) {
		case *Bind:
			s.str("bind")
			s.int(int64(len(x.Vars)))
			s.Tail(x.Tail)
		case *Done:
			s.str("done")
			s.Tail(x.Tail)
		case *If:
			s.str("if")
			s.atoms([]Atom{x.Cond})
			s.Tail(x.IfTrue)
			s.Tail(x.IfFalse)
		case *Case:
			s.str("case")
			s.atoms([]Atom{x.Scrut})
			for _, a := range x.Alts {
				s.str(a.Cfun.Name)
				s.Tail(a.Call)
			}
			if x.Default != nil {
				s.str("default")
				s.Tail(x.Default)
			}
		}
	})
}
