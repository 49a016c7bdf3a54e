// Package specialize produces a monomorphic program: starting from the
// entrypoints, every reference to a polymorphic definition is redirected to
// a clone at the instance type the reference uses.
package specialize

import (
	"fmt"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// monoKey marks the entry for a definition that is kept in place.
const monoKey = "<mono>"

type cloneKey struct {
	defn  mil.DefnID
	index int
	inst  string
}

type pending struct {
	orig  mil.DefnID
	clone mil.DefnID
	subst types.Subst
}

// Spec is the specialization cache for one run. A (definition, instance
// type) pair is cloned at most once; later requests get the same handle.
type Spec struct {
	ctx    *mil.Context
	prog   *mil.Program
	clones map[cloneKey]mil.DefnID
	prims  map[*mil.Prim][]*mil.Prim
	counts map[mil.DefnID]int
	work   []pending
}

// New creates an empty cache for prog.
func New(ctx *mil.Context, prog *mil.Program) *Spec {
	return &Spec{
		ctx:    ctx,
		prog:   prog,
		clones: make(map[cloneKey]mil.DefnID),
		prims:  make(map[*mil.Prim][]*mil.Prim),
		counts: make(map[mil.DefnID]int),
	}
}

// Program specializes prog from its entrypoints. Entrypoint failures are
// returned; nothing is rewritten unless every entrypoint is acceptable.
func Program(ctx *mil.Context, prog *mil.Program) error {
	s := New(ctx, prog)
	for _, id := range prog.Entries {
		if err := s.checkEntry(id); err != nil {
			return err
		}
	}
	for _, id := range prog.Entries {
		if _, err := s.SpecializeEntry(id); err != nil {
			return err
		}
	}
	s.Run()
	ctx.Log.Debug("specialized program", "pass", "specialize", "clones", len(s.clones), "prims", len(s.prims))
	return nil
}

func (s *Spec) checkEntry(id mil.DefnID) error {
	d := s.prog.Defn(id)
	h := d.Head()
	if _, ok := d.(*mil.External); ok {
		return diag.Errorf(h.Pos, diag.StructuralError, "external %s cannot be an entrypoint", h.Name)
	}
	if mil.IsPolymorphic(d) {
		return diag.Errorf(h.Pos, diag.StructuralError, "polymorphic entrypoint %s", h.Name)
	}
	return nil
}

// SpecializeEntry accepts a monomorphic entrypoint. Its body is specialized
// in place when Run drains the work list.
func (s *Spec) SpecializeEntry(id mil.DefnID) (mil.DefnID, error) {
	if err := s.checkEntry(id); err != nil {
		return mil.NoDefn, err
	}
	return s.mono(id), nil
}

// Run specializes the bodies of every definition requested so far,
// including those requested while doing so.
func (s *Spec) Run() {
	for len(s.work) > 0 {
		p := s.work[0]
		s.work = s.work[1:]
		s.fill(p)
	}
}

// Clones is the number of cached definitions.
func (s *Spec) Clones() int { return len(s.clones) }

func (s *Spec) mono(id mil.DefnID) mil.DefnID {
	k := cloneKey{defn: id, inst: monoKey}
	if _, ok := s.clones[k]; !ok {
		s.clones[k] = id
		s.work = append(s.work, pending{orig: id, clone: id})
	}
	return id
}

func (s *Spec) cloneName(id mil.DefnID) string {
	s.counts[id]++
	return fmt.Sprintf("%s%d", s.prog.Defn(id).Head().Name, s.counts[id])
}

func subst(gens []*types.TVar, slots []types.Type) types.Subst {
	sub, err := types.SpecializingSubst(gens, slots)
	if err != nil {
		diag.Internal("specializing substitution: %v", err)
	}
	return sub
}

// Block returns the block specialized at inst, a monomorphic instance of
// the block's type.
func (s *Spec) Block(id mil.DefnID, inst *types.BlockType) mil.DefnID {
	b := s.prog.Block(id)
	if len(b.Generics) == 0 {
		return s.mono(id)
	}
	k := cloneKey{defn: id, inst: inst.Key()}
	if c, ok := s.clones[k]; ok {
		return c
	}
	slots := make([]types.Type, len(b.Declared.Prefix))
	if !b.Declared.Match(inst, slots) {
		diag.Internal("instance %s does not match type %s of %s", inst, b.Declared, b.Name)
	}
	c := &mil.Block{Header: mil.Header{Name: s.cloneName(id), Pos: b.Pos}}
	c.Declared = &types.BlockType{Dom: types.Ground(inst.Dom), Rng: types.Ground(inst.Rng)}
	cid := s.prog.Add(c)
	s.clones[k] = cid
	s.work = append(s.work, pending{orig: id, clone: cid, subst: subst(b.Generics, slots)})
	s.ctx.Log.Debug("specialized block", "defn", b.Name, "clone", c.Name, "type", c.Declared)
	return cid
}

// Closure returns the closure definition specialized at inst.
func (s *Spec) Closure(id mil.DefnID, inst *types.AllocType) mil.DefnID {
	k := s.prog.Closure(id)
	if len(k.Generics) == 0 {
		return s.mono(id)
	}
	key := cloneKey{defn: id, inst: inst.Key()}
	if c, ok := s.clones[key]; ok {
		return c
	}
	slots := make([]types.Type, len(k.Declared.Prefix))
	if !k.Declared.Match(inst, slots) {
		diag.Internal("instance %s does not match type %s of %s", inst, k.Declared, k.Name)
	}
	c := &mil.ClosureDefn{Header: mil.Header{Name: s.cloneName(id), Pos: k.Pos}}
	c.Declared = &types.AllocType{Stored: groundAll(inst.Stored), Result: types.Ground(inst.Result)}
	cid := s.prog.Add(c)
	s.clones[key] = cid
	s.work = append(s.work, pending{orig: id, clone: cid, subst: subst(k.Generics, slots)})
	s.ctx.Log.Debug("specialized closure", "defn", k.Name, "clone", c.Name, "type", c.Declared)
	return cid
}

// TopRef returns a reference to the value r names at type inst.
func (s *Spec) TopRef(r *mil.TopRef, inst types.Type) *mil.TopRef {
	switch d := s.prog.Defn(r.Defn).(type) {
	case *mil.TopLevel:
		return &mil.TopRef{Defn: s.TopLevel(r.Defn, r.Index, inst), Index: r.Index, Inst: inst}
	case *mil.External:
		return &mil.TopRef{Defn: s.External(r.Defn, inst), Inst: inst}
	default:
		diag.Internal("reference to %s, which is not a top-level value", d.Head().Name)
	}
	return nil
}

// TopLevel returns the top-level definition whose index-th binding has
// type inst.
func (s *Spec) TopLevel(id mil.DefnID, index int, inst types.Type) mil.DefnID {
	t := s.prog.Defn(id).(*mil.TopLevel)
	if len(t.Generics) == 0 {
		return s.mono(id)
	}
	k := cloneKey{defn: id, index: index, inst: types.Key(inst)}
	if c, ok := s.clones[k]; ok {
		return c
	}
	l := t.Lhs[index]
	slots := make([]types.Type, len(l.Declared.Prefix))
	if !types.Match(l.Declared.Type, inst, slots) {
		diag.Internal("instance %s does not match type %s of %s", inst, l.Declared, l.Name)
	}
	sub := subst(l.Generics, slots)
	for _, g := range t.Generics {
		if _, ok := sub[g]; !ok {
			sub[g] = types.DefaultType(g.Kind)
		}
	}
	n := s.counts[id] + 1
	s.counts[id] = n
	lhs := make([]mil.TopLhs, len(t.Lhs))
	for i, l := range t.Lhs {
		lhs[i] = mil.TopLhs{Name: fmt.Sprintf("%s%d", l.Name, n), Declared: types.Mono(types.Ground(types.Apply(sub, l.Defining)))}
	}
	c := mil.NewTopLevel(t.Pos, lhs, nil)
	cid := s.prog.Add(c)
	s.clones[k] = cid
	s.work = append(s.work, pending{orig: id, clone: cid, subst: sub})
	s.ctx.Log.Debug("specialized top-level", "defn", t.Name, "clone", c.Name)
	return cid
}

// External returns an external at type inst. Type arguments are
// instantiated along with the declared type.
func (s *Spec) External(id mil.DefnID, inst types.Type) mil.DefnID {
	x := s.prog.Defn(id).(*mil.External)
	if !x.Declared.IsPolymorphic() {
		return id
	}
	k := cloneKey{defn: id, inst: types.Key(inst)}
	if c, ok := s.clones[k]; ok {
		return c
	}
	slots := make([]types.Type, len(x.Declared.Prefix))
	if !types.Match(x.Declared.Type, inst, slots) {
		diag.Internal("instance %s does not match type %s of %s", inst, x.Declared, x.Name)
	}
	slots = types.Fill(x.Declared.Prefix, slots)
	ts := make([]types.Type, len(x.Ts))
	for i, t := range x.Ts {
		ts[i] = types.Ground((&types.Scheme{Type: t}).InstantiateWith(slots))
	}
	c := mil.NewExternal(s.cloneName(id), x.Pos, types.Mono(types.Ground(inst)), x.Ref, ts)
	cid := s.prog.Add(c)
	s.clones[k] = cid
	return cid
}

// Prim returns a primitive at type inst, reusing a clone whose type is
// already equivalent.
func (s *Spec) Prim(p *mil.Prim, inst *types.BlockType) *mil.Prim {
	if !p.Type.IsPolymorphic() {
		return p
	}
	inst = &types.BlockType{Dom: types.Ground(inst.Dom), Rng: types.Ground(inst.Rng)}
	for _, c := range s.prims[p] {
		if c.Type.AlphaEquiv(inst) {
			return c
		}
	}
	c := s.ctx.Prims.Clone(p, inst)
	s.prims[p] = append(s.prims[p], c)
	return c
}

func groundAll(ts []types.Type) []types.Type {
	out := make([]types.Type, len(ts))
	for i, t := range ts {
		out[i] = types.Ground(t)
	}
	return out
}
