package types

import (
	"fmt"
	"slices"
)

// Prune follows bound type variables until reaching an unbound variable or a
// non-variable type.
func Prune(t Type) Type {
	for {
		v, ok := t.(*TVar)
		if !ok || v.ref == nil {
			return t
		}
		t = v.ref
	}
}

// UnifyError describes a unification failure between two types.
type UnifyError struct {
	Expected Type
	Found    Type
	Reason   string
}

func (e *UnifyError) Error() string {
	msg := fmt.Sprintf("type mismatch: expected %s, found %s", e.Expected, e.Found)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Unify makes expected and found equal by binding type variables. Bindings
// made before a failure are kept.
func Unify(expected, found Type) error {
	if reason, ok := unify(expected, found); !ok {
		return &UnifyError{Expected: expected, Found: found, Reason: reason}
	}
	return nil
}

// UnifyAll unifies two lists of types pairwise.
func UnifyAll(expected, found []Type) error {
	if len(expected) != len(found) {
		return &UnifyError{Expected: Tuple(expected...), Found: Tuple(found...), Reason: "arity mismatch"}
	}
	for i := range expected {
		if err := Unify(expected[i], found[i]); err != nil {
			return err
		}
	}
	return nil
}

func unify(a, b Type) (string, bool) {
	a, b = Prune(a), Prune(b)
	if va, ok := a.(*TVar); ok {
		return bind(va, b)
	}
	if vb, ok := b.(*TVar); ok {
		return bind(vb, a)
	}
	switch x := a.(type) {
	case TCon:
		if y, ok := b.(TCon); ok && x.Tycon == y.Tycon {
			return "", true
		}
	case TAp:
		if y, ok := b.(TAp); ok {
			if r, ok := unify(x.Fun, y.Fun); !ok {
				return r, false
			}
			return unify(x.Arg, y.Arg)
		}
	case TNat:
		if y, ok := b.(TNat); ok && x.N.Cmp(y.N) == 0 {
			return "", true
		}
	case TTuple:
		if y, ok := b.(TTuple); ok {
			if len(x.Elems) != len(y.Elems) {
				return "tuple arity mismatch", false
			}
			for i := range x.Elems {
				if r, ok := unify(x.Elems[i], y.Elems[i]); !ok {
					return r, false
				}
			}
			return "", true
		}
	case TGen:
		if y, ok := b.(TGen); ok && x.N == y.N {
			return "", true
		}
	}
	return "", false
}

func bind(v *TVar, t Type) (string, bool) {
	if w, ok := t.(*TVar); ok && w == v {
		return "", true
	}
	if occurs(v, t) {
		return "infinite type", false
	}
	v.ref = t
	return "", true
}

func occurs(v *TVar, t Type) bool {
	switch x := Prune(t).(type) {
	case *TVar:
		return x == v
	case TAp:
		return occurs(v, x.Fun) || occurs(v, x.Arg)
	case TTuple:
		for _, e := range x.Elems {
			if occurs(v, e) {
				return true
			}
		}
	}
	return false
}

// Equal reports structural equality, treating unbound variables by identity.
func Equal(a, b Type) bool {
	a, b = Prune(a), Prune(b)
	switch x := a.(type) {
	case *TVar:
		y, ok := b.(*TVar)
		return ok && x == y
	case TGen:
		y, ok := b.(TGen)
		return ok && x.N == y.N
	case TCon:
		y, ok := b.(TCon)
		return ok && x.Tycon == y.Tycon
	case TAp:
		y, ok := b.(TAp)
		return ok && Equal(x.Fun, y.Fun) && Equal(x.Arg, y.Arg)
	case TNat:
		y, ok := b.(TNat)
		return ok && x.N.Cmp(y.N) == 0
	case TTuple:
		y, ok := b.(TTuple)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Match matches pattern against inst one way: TGen n in pattern is recorded
// in s[n] on first use and must agree afterwards.
func Match(pattern, inst Type, s []Type) bool {
	inst = Prune(inst)
	switch p := Prune(pattern).(type) {
	case TGen:
		if p.N >= len(s) {
			return false
		}
		if s[p.N] == nil {
			s[p.N] = inst
			return true
		}
		return Equal(s[p.N], inst)
	case TAp:
		y, ok := inst.(TAp)
		return ok && Match(p.Fun, y.Fun, s) && Match(p.Arg, y.Arg, s)
	case TTuple:
		y, ok := inst.(TTuple)
		if !ok || len(p.Elems) != len(y.Elems) {
			return false
		}
		for i := range p.Elems {
			if !Match(p.Elems[i], y.Elems[i], s) {
				return false
			}
		}
		return true
	default:
		return Equal(p, inst)
	}
}

// Subst maps type variables to types.
type Subst map[*TVar]Type

// Apply replaces variables of s throughout t. Bound variables are followed.
func Apply(s Subst, t Type) Type {
	switch x := Prune(t).(type) {
	case *TVar:
		if r, ok := s[x]; ok {
			return r
		}
		return x
	case TAp:
		return TAp{Fun: Apply(s, x.Fun), Arg: Apply(s, x.Arg)}
	case TTuple:
		elems := make([]Type, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = Apply(s, e)
		}
		return TTuple{Elems: elems}
	default:
		return x
	}
}

// ApplyAll applies s to each type.
func ApplyAll(s Subst, ts []Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = Apply(s, t)
	}
	return out
}

// Resolve returns a copy of t with every bound variable replaced by its
// binding.
func Resolve(t Type) Type {
	return Apply(nil, t)
}

// TVars appends the unbound variables of t to acc, skipping duplicates.
func TVars(t Type, acc []*TVar) []*TVar {
	switch x := Prune(t).(type) {
	case *TVar:
		if !slices.Contains(acc, x) {
			acc = append(acc, x)
		}
	case TAp:
		acc = TVars(x.Fun, acc)
		acc = TVars(x.Arg, acc)
	case TTuple:
		for _, e := range x.Elems {
			acc = TVars(e, acc)
		}
	}
	return acc
}

// IsMonomorphic reports whether t has no unbound variables and no generics.
func IsMonomorphic(t Type) bool {
	switch x := Prune(t).(type) {
	case *TVar, TGen:
		return false
	case TAp:
		return IsMonomorphic(x.Fun) && IsMonomorphic(x.Arg)
	case TTuple:
		for _, e := range x.Elems {
			if !IsMonomorphic(e) {
				return false
			}
		}
	}
	return true
}

// Key is a canonical string for a monomorphic type, suitable as a cache key.
func Key(t Type) string {
	return Resolve(t).String()
}

// instantiate replaces TGen n with vs[n].
func instantiate(t Type, vs []Type) Type {
	switch x := Prune(t).(type) {
	case TGen:
		if x.N < len(vs) {
			return vs[x.N]
		}
		return x
	case TAp:
		return TAp{Fun: instantiate(x.Fun, vs), Arg: instantiate(x.Arg, vs)}
	case TTuple:
		elems := make([]Type, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = instantiate(e, vs)
		}
		return TTuple{Elems: elems}
	default:
		return x
	}
}

// generalize replaces each variable of gens with its TGen index.
func generalize(t Type, gens []*TVar) Type {
	switch x := Prune(t).(type) {
	case *TVar:
		if i := slices.Index(gens, x); i >= 0 {
			return TGen{N: i}
		}
		return x
	case TAp:
		return TAp{Fun: generalize(x.Fun, gens), Arg: generalize(x.Arg, gens)}
	case TTuple:
		elems := make([]Type, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = generalize(e, gens)
		}
		return TTuple{Elems: elems}
	default:
		return x
	}
}

// alphaMap records a bijection between generics and between unbound
// variables of two types.
type alphaMap struct {
	gens  map[int]int
	rgens map[int]int
	vars  map[*TVar]*TVar
	rvars map[*TVar]*TVar
}

func newAlphaMap() *alphaMap {
	return &alphaMap{
		gens:  make(map[int]int),
		rgens: make(map[int]int),
		vars:  make(map[*TVar]*TVar),
		rvars: make(map[*TVar]*TVar),
	}
}

func (m *alphaMap) equiv(a, b Type) bool {
	a, b = Prune(a), Prune(b)
	switch x := a.(type) {
	case *TVar:
		y, ok := b.(*TVar)
		if !ok {
			return false
		}
		if z, ok := m.vars[x]; ok {
			return z == y
		}
		if _, ok := m.rvars[y]; ok {
			return false
		}
		m.vars[x], m.rvars[y] = y, x
		return true
	case TGen:
		y, ok := b.(TGen)
		if !ok {
			return false
		}
		if z, ok := m.gens[x.N]; ok {
			return z == y.N
		}
		if _, ok := m.rgens[y.N]; ok {
			return false
		}
		m.gens[x.N], m.rgens[y.N] = y.N, x.N
		return true
	case TAp:
		y, ok := b.(TAp)
		return ok && m.equiv(x.Fun, y.Fun) && m.equiv(x.Arg, y.Arg)
	case TTuple:
		y, ok := b.(TTuple)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !m.equiv(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return Equal(a, b)
	}
}

// AlphaEquiv reports whether a and b are equal up to a consistent renaming of
// generics and unbound variables.
func AlphaEquiv(a, b Type) bool {
	return newAlphaMap().equiv(a, b)
}
