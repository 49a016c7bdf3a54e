package mil

import (
	"strings"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/types"
)

// DefnID is a handle into Program.Defns.
type DefnID int

// NoDefn marks an absent handle.
const NoDefn DefnID = -1

// Header is the part shared by every definition.
type Header struct {
	ID          DefnID
	Name        string
	Pos         diag.Position
	Entrypoint  bool
	ReplaceWith DefnID
}

// Head gives passes uniform access to a definition's header.
func (h *Header) Head() *Header { return h }

// Defn is a definition in a Program arena.
type Defn interface {
	Head() *Header
	implDefn()
}

// Block is a parameterized body of code.
type Block struct {
	Header
	Params   []*Temp
	Body     Code
	Declared *types.BlockType
	Defining *types.BlockType
	Generics []*types.TVar
	UsedArgs []bool
	Failed   bool
}

// ClosureDefn is a closure template: Params are stored when the closure is
// allocated, Args are supplied when it is entered.
type ClosureDefn struct {
	Header
	Params   []*Temp
	Args     []*Temp
	Tail     Tail
	Declared *types.AllocType
	Defining *types.AllocType
	Generics []*types.TVar
	Derived  []Derived
	UsedArgs []bool
	Failed   bool
}

// Derived records a closure derived for a known-constructor shape. Shape has
// one entry per stored parameter; nil means the argument is unknown.
type Derived struct {
	Shape   []*types.Cfun
	Closure DefnID
}

// TopLevel binds one or more top-level names to the results of a tail.
type TopLevel struct {
	Header
	Lhs      []TopLhs
	Tail     Tail
	Generics []*types.TVar
	Failed   bool
}

// TopLhs is one name bound by a TopLevel.
type TopLhs struct {
	Name     string
	Declared *types.Scheme
	Defining types.Type
	Generics []*types.TVar
}

// External names a value implemented outside the program. Ts are type
// arguments selecting a generator; Impl is set when a generator supplies
// code.
type External struct {
	Header
	Declared *types.Scheme
	Ref      string
	Ts       []types.Type
	Impl     DefnID
}

func (*Block) implDefn()       {}
func (*ClosureDefn) implDefn() {}
func (*TopLevel) implDefn()    {}
func (*External) implDefn()    {}

// NewBlock creates a block; its ID is assigned by Program.Add.
func NewBlock(name string, pos diag.Position, params []*Temp, body Code) *Block {
	return &Block{Header: Header{Name: name, Pos: pos}, Params: params, Body: body}
}

// NewClosureDefn creates a closure definition.
func NewClosureDefn(name string, pos diag.Position, params, args []*Temp, tail Tail) *ClosureDefn {
	return &ClosureDefn{Header: Header{Name: name, Pos: pos}, Params: params, Args: args, Tail: tail}
}

// NewTopLevel creates a top-level binding.
func NewTopLevel(pos diag.Position, lhs []TopLhs, tail Tail) *TopLevel {
	names := make([]string, len(lhs))
	for i, l := range lhs {
		names[i] = l.Name
	}
	return &TopLevel{Header: Header{Name: strings.Join(names, ","), Pos: pos}, Lhs: lhs, Tail: tail}
}

// NewExternal creates an external definition.
func NewExternal(name string, pos diag.Position, declared *types.Scheme, ref string, ts []types.Type) *External {
	return &External{Header: Header{Name: name, Pos: pos}, Declared: declared, Ref: ref, Ts: ts, Impl: NoDefn}
}

// AllTypesDeclared reports whether every binding of d carries a declared
// type, which allows a type error in its body to be recovered from.
func AllTypesDeclared(d Defn) bool {
	switch x := d.(type) {
	case *Block:
		return x.Declared != nil
	case *ClosureDefn:
		return x.Declared != nil
	case *TopLevel:
		for _, l := range x.Lhs {
			if l.Declared == nil {
				return false
			}
		}
		return true
	case *External:
		return true
	}
	return false
}

// Params returns the formal parameters of blocks and the stored parameters
// of closures.
func Params(d Defn) []*Temp {
	switch x := d.(type) {
	case *Block:
		return x.Params
	case *ClosureDefn:
		return x.Params
	}
	return nil
}

// IsPolymorphic reports whether d was generalized over any type variable.
func IsPolymorphic(d Defn) bool {
	switch x := d.(type) {
	case *Block:
		return len(x.Generics) > 0
	case *ClosureDefn:
		return len(x.Generics) > 0
	case *TopLevel:
		return len(x.Generics) > 0
	case *External:
		return x.Declared.IsPolymorphic()
	}
	return false
}
