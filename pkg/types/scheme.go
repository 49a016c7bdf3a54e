package types

import (
	"fmt"
	"strings"
)

// Scheme is a type quantified over Prefix; TGen n refers to Prefix[n].
type Scheme struct {
	Prefix []Kind
	Type   Type
}

// BlockType is the (possibly quantified) type of a block or primitive:
// a domain tuple and a range tuple.
type BlockType struct {
	Prefix []Kind
	Dom    Type
	Rng    Type
}

// AllocType is the (possibly quantified) type of a closure or data
// allocation: the types of the stored fields and the type of the result.
type AllocType struct {
	Prefix []Kind
	Stored []Type
	Result Type
}

// Mono wraps a type as a scheme with no generics.
func Mono(t Type) *Scheme {
	return &Scheme{Type: t}
}

// NewBlockType builds a monomorphic block type from domain and range lists.
func NewBlockType(dom, rng []Type) *BlockType {
	return &BlockType{Dom: Tuple(dom...), Rng: Tuple(rng...)}
}

func fresh(prefix []Kind) []Type {
	vs := make([]Type, len(prefix))
	for i, k := range prefix {
		vs[i] = NewTVar(k)
	}
	return vs
}

func kindsOf(gens []*TVar) []Kind {
	if len(gens) == 0 {
		return nil
	}
	ks := make([]Kind, len(gens))
	for i, g := range gens {
		ks[i] = g.Kind
	}
	return ks
}

// IsPolymorphic reports whether the scheme quantifies any variable.
func (s *Scheme) IsPolymorphic() bool { return len(s.Prefix) > 0 }

// Instantiate returns the scheme's type with fresh variables for its generics.
func (s *Scheme) Instantiate() Type {
	return instantiate(s.Type, fresh(s.Prefix))
}

// InstantiateWith replaces the generics with the given types.
func (s *Scheme) InstantiateWith(vs []Type) Type {
	return instantiate(s.Type, vs)
}

// GeneralizeScheme quantifies t over gens.
func GeneralizeScheme(t Type, gens []*TVar) *Scheme {
	return &Scheme{Prefix: kindsOf(gens), Type: generalize(t, gens)}
}

// AlphaEquiv compares two schemes up to renaming of generics.
func (s *Scheme) AlphaEquiv(o *Scheme) bool {
	return len(s.Prefix) == len(o.Prefix) && AlphaEquiv(s.Type, o.Type)
}

func (s *Scheme) String() string {
	return withPrefix(s.Prefix, s.Type.String())
}

// IsPolymorphic reports whether the block type quantifies any variable.
func (bt *BlockType) IsPolymorphic() bool { return len(bt.Prefix) > 0 }

// Instantiate returns a monomorphic copy with fresh variables for generics.
func (bt *BlockType) Instantiate() *BlockType {
	vs := fresh(bt.Prefix)
	return &BlockType{Dom: instantiate(bt.Dom, vs), Rng: instantiate(bt.Rng, vs)}
}

// Generalize quantifies bt over gens.
func (bt *BlockType) Generalize(gens []*TVar) *BlockType {
	return &BlockType{Prefix: kindsOf(gens), Dom: generalize(bt.Dom, gens), Rng: generalize(bt.Rng, gens)}
}

// TVars appends the unbound variables of bt.
func (bt *BlockType) TVars(acc []*TVar) []*TVar {
	return TVars(bt.Rng, TVars(bt.Dom, acc))
}

// Apply substitutes s throughout bt.
func (bt *BlockType) Apply(s Subst) *BlockType {
	return &BlockType{Prefix: bt.Prefix, Dom: Apply(s, bt.Dom), Rng: Apply(s, bt.Rng)}
}

// Resolve returns a copy with bound variables replaced.
func (bt *BlockType) Resolve() *BlockType {
	return bt.Apply(nil)
}

// Unify unifies both domain and range.
func (bt *BlockType) Unify(o *BlockType) error {
	if err := Unify(bt.Dom, o.Dom); err != nil {
		return err
	}
	return Unify(bt.Rng, o.Rng)
}

// AlphaEquiv compares two block types up to renaming.
func (bt *BlockType) AlphaEquiv(o *BlockType) bool {
	if len(bt.Prefix) != len(o.Prefix) {
		return false
	}
	m := newAlphaMap()
	return m.equiv(bt.Dom, o.Dom) && m.equiv(bt.Rng, o.Rng)
}

// Key is a canonical string for a monomorphic block type.
func (bt *BlockType) Key() string {
	return Key(bt.Dom) + " >>= " + Key(bt.Rng)
}

// DomTypes returns the domain elements, or nil if the domain is not a tuple.
func (bt *BlockType) DomTypes() []Type {
	ts, _ := TupleElems(bt.Dom)
	return ts
}

// RngTypes returns the range elements, or nil if the range is not a tuple.
func (bt *BlockType) RngTypes() []Type {
	ts, _ := TupleElems(bt.Rng)
	return ts
}

// Match fills s so that bt with generics replaced by s equals inst.
func (bt *BlockType) Match(inst *BlockType, s []Type) bool {
	return Match(bt.Dom, inst.Dom, s) && Match(bt.Rng, inst.Rng, s)
}

func (bt *BlockType) String() string {
	return withPrefix(bt.Prefix, bt.Dom.String()+" >>= "+bt.Rng.String())
}

// IsPolymorphic reports whether the alloc type quantifies any variable.
func (at *AllocType) IsPolymorphic() bool { return len(at.Prefix) > 0 }

// Instantiate returns a monomorphic copy with fresh variables for generics.
func (at *AllocType) Instantiate() *AllocType {
	return at.InstantiateWith(fresh(at.Prefix))
}

// InstantiateWith replaces the generics with the given types.
func (at *AllocType) InstantiateWith(vs []Type) *AllocType {
	stored := make([]Type, len(at.Stored))
	for i, t := range at.Stored {
		stored[i] = instantiate(t, vs)
	}
	return &AllocType{Stored: stored, Result: instantiate(at.Result, vs)}
}

// Generalize quantifies at over gens.
func (at *AllocType) Generalize(gens []*TVar) *AllocType {
	stored := make([]Type, len(at.Stored))
	for i, t := range at.Stored {
		stored[i] = generalize(t, gens)
	}
	return &AllocType{Prefix: kindsOf(gens), Stored: stored, Result: generalize(at.Result, gens)}
}

// TVars appends the unbound variables of at.
func (at *AllocType) TVars(acc []*TVar) []*TVar {
	for _, t := range at.Stored {
		acc = TVars(t, acc)
	}
	return TVars(at.Result, acc)
}

// Apply substitutes s throughout at.
func (at *AllocType) Apply(s Subst) *AllocType {
	return &AllocType{Prefix: at.Prefix, Stored: ApplyAll(s, at.Stored), Result: Apply(s, at.Result)}
}

// Resolve returns a copy with bound variables replaced.
func (at *AllocType) Resolve() *AllocType {
	return at.Apply(nil)
}

// AlphaEquiv compares two alloc types up to renaming.
func (at *AllocType) AlphaEquiv(o *AllocType) bool {
	if len(at.Prefix) != len(o.Prefix) || len(at.Stored) != len(o.Stored) {
		return false
	}
	m := newAlphaMap()
	for i := range at.Stored {
		if !m.equiv(at.Stored[i], o.Stored[i]) {
			return false
		}
	}
	return m.equiv(at.Result, o.Result)
}

// Key is a canonical string for a monomorphic alloc type.
func (at *AllocType) Key() string {
	parts := make([]string, len(at.Stored))
	for i, t := range at.Stored {
		parts[i] = Key(t)
	}
	return "{" + strings.Join(parts, ", ") + "} " + Key(at.Result)
}

// Match fills s so that at with generics replaced by s equals inst.
func (at *AllocType) Match(inst *AllocType, s []Type) bool {
	if len(at.Stored) != len(inst.Stored) {
		return false
	}
	for i := range at.Stored {
		if !Match(at.Stored[i], inst.Stored[i], s) {
			return false
		}
	}
	return Match(at.Result, inst.Result, s)
}

func (at *AllocType) String() string {
	return withPrefix(at.Prefix, "{"+joinTypes(at.Stored)+"} "+at.Result.String())
}

func withPrefix(prefix []Kind, body string) string {
	if len(prefix) == 0 {
		return body
	}
	names := make([]string, len(prefix))
	for i := range prefix {
		names[i] = TGen{N: i}.String()
	}
	return "forall " + strings.Join(names, " ") + ". " + body
}

// DefaultType is the type given to a generic of kind k that no use
// determines.
func DefaultType(k Kind) Type {
	switch k {
	case KTuple:
		return Tuple()
	case KNat:
		return Nat(0)
	}
	return UnitType
}

// Ground resolves t and replaces any remaining unbound variable by the
// default type of its kind.
func Ground(t Type) Type {
	t = Resolve(t)
	s := make(Subst)
	for _, v := range TVars(t, nil) {
		s[v] = DefaultType(v.Kind)
	}
	if len(s) == 0 {
		return t
	}
	return Apply(s, t)
}

// Fill replaces the unset entries of slots with default types for the
// corresponding kinds of prefix.
func Fill(prefix []Kind, slots []Type) []Type {
	out := make([]Type, len(prefix))
	for i, k := range prefix {
		if i < len(slots) && slots[i] != nil {
			out[i] = slots[i]
		} else {
			out[i] = DefaultType(k)
		}
	}
	return out
}

// SpecializingSubst maps each generic variable of a definition to the type it
// takes in an instance. s holds the matched types for the TGen indices;
// generics left undetermined by the match take their default type.
func SpecializingSubst(gens []*TVar, s []Type) (Subst, error) {
	if len(gens) != len(s) {
		return nil, fmt.Errorf("generic count mismatch: %d generics, %d types", len(gens), len(s))
	}
	sub := make(Subst, len(gens))
	for i, g := range gens {
		t := s[i]
		if t == nil {
			t = DefaultType(g.Kind)
		}
		sub[g] = t
	}
	return sub, nil
}
