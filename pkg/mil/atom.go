package mil

import (
	"fmt"
	"sync/atomic"

	"github.com/bgins/mil-tools/pkg/types"
)

// Atom is an operand: a temporary, a literal or a reference to a top-level
// value.
type Atom interface {
	implAtom()
	String() string
}

// Temp is a local variable. Temps are compared by identity.
type Temp struct {
	ID   int64
	Type types.Type
}

// Word is a word literal.
type Word struct {
	Val int64
}

// Flag is a boolean literal.
type Flag struct {
	Val bool
}

// TopRef refers to the Index-th value bound by a TopLevel, or to an External
// (Index 0). Inst is the instantiated type recorded by type checking.
type TopRef struct {
	Defn  DefnID
	Index int
	Inst  types.Type
}

func (*Temp) implAtom()   {}
func (Word) implAtom()    {}
func (Flag) implAtom()    {}
func (*TopRef) implAtom() {}

var tempCount atomic.Int64

// NewTemp returns a fresh temporary of type t (which may be nil before type
// checking assigns one).
func NewTemp(t types.Type) *Temp {
	return &Temp{ID: tempCount.Add(1), Type: t}
}

// NewTemps returns one fresh temporary per type.
func NewTemps(ts []types.Type) []*Temp {
	vs := make([]*Temp, len(ts))
	for i, t := range ts {
		vs[i] = NewTemp(t)
	}
	return vs
}

// FreshTemps returns n fresh temporaries without types.
func FreshTemps(n int) []*Temp {
	vs := make([]*Temp, n)
	for i := range vs {
		vs[i] = NewTemp(nil)
	}
	return vs
}

func (t *Temp) String() string { return fmt.Sprintf("t%d", t.ID) }
func (w Word) String() string  { return fmt.Sprintf("%d", w.Val) }
func (f Flag) String() string {
	if f.Val {
		return "true"
	}
	return "false"
}
func (r *TopRef) String() string { return fmt.Sprintf("top%d.%d", r.Defn, r.Index) }

// TempAtoms converts temps to atoms.
func TempAtoms(ts []*Temp) []Atom {
	as := make([]Atom, len(ts))
	for i, t := range ts {
		as[i] = t
	}
	return as
}

// TempTypes returns the types of the given temps.
func TempTypes(ts []*Temp) []types.Type {
	out := make([]types.Type, len(ts))
	for i, t := range ts {
		out[i] = t.Type
	}
	return out
}

// AtomType returns the type of an atom after type checking.
func AtomType(a Atom) types.Type {
	switch x := a.(type) {
	case *Temp:
		return x.Type
	case Word:
		return types.WordType
	case Flag:
		return types.FlagType
	case *TopRef:
		return x.Inst
	}
	return nil
}

// AtomTypes maps AtomType over as.
func AtomTypes(as []Atom) []types.Type {
	out := make([]types.Type, len(as))
	for i, a := range as {
		out[i] = AtomType(a)
	}
	return out
}

// IsLiteral reports whether a is a Word or Flag literal.
func IsLiteral(a Atom) bool {
	switch a.(type) {
	case Word, Flag:
		return true
	}
	return false
}
