package mil

import (
	"slices"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/types"
)

// Program is the arena holding every definition of a compilation unit.
// Definitions are never removed; dead ones are left out of Reachable.
type Program struct {
	Defns   []Defn
	Entries []DefnID
	Tycons  *types.Env
	names   map[string]DefnID
}

// NewProgram creates an empty program over a type constructor environment.
func NewProgram(env *types.Env) *Program {
	if env == nil {
		env = types.NewEnv()
	}
	return &Program{Tycons: env, names: make(map[string]DefnID)}
}

// Add appends d to the arena and assigns its handle. Names are not checked;
// passes use Add for generated definitions.
func (p *Program) Add(d Defn) DefnID {
	h := d.Head()
	h.ID = DefnID(len(p.Defns))
	h.ReplaceWith = NoDefn
	p.Defns = append(p.Defns, d)
	return h.ID
}

// Define adds a named definition, failing if the name is already taken.
// Each TopLevel binding name is registered separately.
func (p *Program) Define(d Defn) (DefnID, error) {
	names := []string{d.Head().Name}
	if t, ok := d.(*TopLevel); ok {
		names = names[:0]
		for _, l := range t.Lhs {
			names = append(names, l.Name)
		}
	}
	for _, n := range names {
		if _, ok := p.names[n]; ok {
			return NoDefn, diag.Errorf(d.Head().Pos, diag.StructuralError, "multiple definitions for %s", n)
		}
	}
	id := p.Add(d)
	for _, n := range names {
		p.names[n] = id
	}
	return id, nil
}

// Lookup finds a definition by name.
func (p *Program) Lookup(name string) (DefnID, bool) {
	id, ok := p.names[name]
	return id, ok
}

// Defn returns the definition for id.
func (p *Program) Defn(id DefnID) Defn {
	if id < 0 || int(id) >= len(p.Defns) {
		diag.Internal("definition handle %d out of range", id)
	}
	return p.Defns[id]
}

// Block returns the block for id.
func (p *Program) Block(id DefnID) *Block {
	b, ok := p.Defn(id).(*Block)
	if !ok {
		diag.Internal("definition %d is not a block", id)
	}
	return b
}

// Closure returns the closure definition for id.
func (p *Program) Closure(id DefnID) *ClosureDefn {
	k, ok := p.Defn(id).(*ClosureDefn)
	if !ok {
		diag.Internal("definition %d is not a closure", id)
	}
	return k
}

// AddEntry marks id as an entrypoint.
func (p *Program) AddEntry(id DefnID) {
	p.Defn(id).Head().Entrypoint = true
	if !slices.Contains(p.Entries, id) {
		p.Entries = append(p.Entries, id)
	}
}

// Dependencies lists the definitions d refers to, without duplicates.
func Dependencies(d Defn) []DefnID {
	var deps []DefnID
	add := func(id DefnID) {
		if !slices.Contains(deps, id) {
			deps = append(deps, id)
		}
	}
	atoms := func(as []Atom) {
		for _, a := range as {
			if r, ok := a.(*TopRef); ok {
				add(r.Defn)
			}
		}
	}
	tail := func(t Tail) {
		atoms(TailArgs(t))
		switch x := t.(type) {
		case *BlockCall:
			add(x.Block)
		case *ClosAlloc:
			add(x.Closure)
		}
	}
	switch x := d.(type) {
	case *Block:
		WalkCode(x.Body, func(c Code) {
			switch c := c.(type) {
			case *Bind:
				tail(c.Tail)
			case *Done:
				tail(c.Tail)
			case *If:
				atoms([]Atom{c.Cond})
			case *Case:
				atoms([]Atom{c.Scrut})
			}
			for _, bc := range Calls(c) {
				tail(bc)
			}
		})
	case *ClosureDefn:
		tail(x.Tail)
	case *TopLevel:
		tail(x.Tail)
	case *External:
		if x.Impl != NoDefn {
			add(x.Impl)
		}
	}
	return deps
}

// WalkCode calls f on each code node of c in order.
func WalkCode(c Code, f func(Code)) {
	for c != nil {
		f(c)
		b, ok := c.(*Bind)
		if !ok {
			return
		}
		c = b.Next
	}
}

// Reachable returns the handles reachable from the entrypoints, in
// ascending order.
func (p *Program) Reachable() []DefnID {
	seen := make(map[DefnID]bool)
	work := slices.Clone(p.Entries)
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, dep := range Dependencies(p.Defn(id)) {
			if !seen[dep] {
				work = append(work, dep)
			}
		}
	}
	ids := make([]DefnID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All returns every handle in the arena.
func (p *Program) All() []DefnID {
	ids := make([]DefnID, len(p.Defns))
	for i := range ids {
		ids[i] = DefnID(i)
	}
	return ids
}

// SCCs partitions ids into strongly connected components of the dependency
// graph. Components are returned so that every component comes after the
// components it depends on.
func (p *Program) SCCs(ids []DefnID) [][]DefnID {
	in := make(map[DefnID]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	t := &tarjan{
		prog:  p,
		in:    in,
		index: make(map[DefnID]int),
		low:   make(map[DefnID]int),
		on:    make(map[DefnID]bool),
	}
	for _, id := range ids {
		if _, ok := t.index[id]; !ok {
			t.visit(id)
		}
	}
	return t.sccs
}

type tarjan struct {
	prog  *Program
	in    map[DefnID]bool
	next  int
	index map[DefnID]int
	low   map[DefnID]int
	on    map[DefnID]bool
	stack []DefnID
	sccs  [][]DefnID
}

func (t *tarjan) visit(v DefnID) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.on[v] = true
	for _, w := range Dependencies(t.prog.Defn(v)) {
		if !t.in[w] {
			continue
		}
		if _, ok := t.index[w]; !ok {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.on[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}
	if t.low[v] != t.index[v] {
		return
	}
	var scc []DefnID
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.on[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	slices.Sort(scc)
	t.sccs = append(t.sccs, scc)
}

// IsRecursive reports whether scc contains a cycle.
func (p *Program) IsRecursive(scc []DefnID) bool {
	if len(scc) > 1 {
		return true
	}
	return slices.Contains(Dependencies(p.Defn(scc[0])), scc[0])
}

// Resolve follows ReplaceWith links to the surviving definition.
func (p *Program) Resolve(id DefnID) DefnID {
	for {
		r := p.Defn(id).Head().ReplaceWith
		if r == NoDefn || r == id {
			return id
		}
		id = r
	}
}
