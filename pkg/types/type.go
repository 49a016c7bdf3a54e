// Package types defines MIL types: type variables, quantified generics,
// constructor applications, type-level naturals and tuples, plus the
// Scheme, BlockType and AllocType wrappers used by definitions.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
)

// Kind classifies types.
type Kind int

const (
	KStar  Kind = iota // ordinary value types
	KNat               // type-level naturals (bit widths, index bounds)
	KTuple             // tuples of value types
)

func (k Kind) String() string {
	switch k {
	case KStar:
		return "*"
	case KNat:
		return "nat"
	case KTuple:
		return "tuple"
	}
	return "?"
}

// Type is the interface for all MIL types.
type Type interface {
	implType()
	String() string
}

// TVar is a unification variable. Once bound, it stands for its binding.
type TVar struct {
	id   int64
	Kind Kind
	ref  Type
}

// TGen is the n-th quantified variable of an enclosing prefix.
type TGen struct {
	N int
}

// TCon is a type constructor used as a type.
type TCon struct {
	Tycon *Tycon
}

// TAp applies a type to an argument.
type TAp struct {
	Fun Type
	Arg Type
}

// TNat is a type-level natural number.
type TNat struct {
	N *big.Int
}

// TTuple is a tuple of types, used for block and function domains and ranges.
type TTuple struct {
	Elems []Type
}

func (*TVar) implType()  {}
func (TGen) implType()   {}
func (TCon) implType()   {}
func (TAp) implType()    {}
func (TNat) implType()   {}
func (TTuple) implType() {}

var tvarCount atomic.Int64

// NewTVar returns a fresh unbound type variable.
func NewTVar(k Kind) *TVar {
	return &TVar{id: tvarCount.Add(1), Kind: k}
}

// Bound returns the type this variable is bound to, or nil.
func (v *TVar) Bound() Type {
	return v.ref
}

// Con wraps a tycon as a type.
func Con(tc *Tycon) Type {
	return TCon{Tycon: tc}
}

// Ap applies f to each argument in turn.
func Ap(f Type, args ...Type) Type {
	for _, a := range args {
		f = TAp{Fun: f, Arg: a}
	}
	return f
}

// Nat returns the type-level natural n.
func Nat(n int64) Type {
	return TNat{N: big.NewInt(n)}
}

// Tuple builds a tuple type.
func Tuple(ts ...Type) Type {
	return TTuple{Elems: ts}
}

// Fun builds the function type dom ->> rng.
func Fun(dom, rng Type) Type {
	return Ap(Con(FuncTycon), dom, rng)
}

// BitType returns Bit n.
func BitType(n int64) Type {
	return Ap(Con(BitTycon), Nat(n))
}

// IxType returns Ix n.
func IxType(n int64) Type {
	return Ap(Con(IxTycon), Nat(n))
}

var (
	WordType   = Con(WordTycon)
	FlagType   = Con(FlagTycon)
	NZWordType = Con(NZWordTycon)
	AddrType   = Con(AddrTycon)
	UnitType   = Con(UnitTycon)
)

// Words returns a tuple of n Word types.
func Words(n int) []Type {
	ts := make([]Type, n)
	for i := range ts {
		ts[i] = WordType
	}
	return ts
}

// Spine splits an application into its head and arguments. The head is
// pruned; arguments are returned as stored.
func Spine(t Type) (Type, []Type) {
	t = Prune(t)
	var args []Type
	for {
		ap, ok := t.(TAp)
		if !ok {
			break
		}
		args = append(args, ap.Arg)
		t = Prune(ap.Fun)
	}
	for i, j := 0, len(args)-1; i < j; i, j = i+1, j-1 {
		args[i], args[j] = args[j], args[i]
	}
	return t, args
}

// HeadTycon returns the constructor at the head of t and its arguments.
func HeadTycon(t Type) (*Tycon, []Type, bool) {
	h, args := Spine(t)
	c, ok := h.(TCon)
	if !ok {
		return nil, nil, false
	}
	return c.Tycon, args, true
}

// IsFun reports whether t is a function type and returns its domain and range.
func IsFun(t Type) (Type, Type, bool) {
	tc, args, ok := HeadTycon(t)
	if !ok || tc != FuncTycon || len(args) != 2 {
		return nil, nil, false
	}
	return args[0], args[1], true
}

// NatValue returns the value of a (pruned) type-level natural.
func NatValue(t Type) (*big.Int, bool) {
	n, ok := Prune(t).(TNat)
	if !ok {
		return nil, false
	}
	return n.N, true
}

// BitWidth returns n for Bit n.
func BitWidth(t Type) (int, bool) {
	tc, args, ok := HeadTycon(t)
	if !ok || tc != BitTycon || len(args) != 1 {
		return 0, false
	}
	n, ok := NatValue(args[0])
	if !ok || !n.IsInt64() {
		return 0, false
	}
	return int(n.Int64()), true
}

// TupleElems returns the elements of a (pruned) tuple type.
func TupleElems(t Type) ([]Type, bool) {
	tt, ok := Prune(t).(TTuple)
	if !ok {
		return nil, false
	}
	return tt.Elems, true
}

// --- Printing ---

func (v *TVar) String() string {
	if v.ref != nil {
		return v.ref.String()
	}
	return fmt.Sprintf("_%d", v.id)
}

func (g TGen) String() string {
	if g.N < 26 {
		return string(rune('a' + g.N))
	}
	return fmt.Sprintf("a%d", g.N)
}

func (c TCon) String() string {
	return c.Tycon.Name
}

func (n TNat) String() string {
	return n.N.String()
}

func (t TTuple) String() string {
	return "[" + joinTypes(t.Elems) + "]"
}

func (a TAp) String() string {
	if dom, rng, ok := IsFun(a); ok {
		return dom.String() + " ->> " + rng.String()
	}
	head, args := Spine(a)
	var sb strings.Builder
	sb.WriteString(head.String())
	for _, arg := range args {
		sb.WriteByte(' ')
		if needsParens(arg) {
			sb.WriteString("(" + arg.String() + ")")
		} else {
			sb.WriteString(arg.String())
		}
	}
	return sb.String()
}

func needsParens(t Type) bool {
	_, ok := Prune(t).(TAp)
	return ok
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
