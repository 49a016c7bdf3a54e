package mil

import "github.com/bgins/mil-tools/pkg/types"

// Tail is the terminal operation of a binding or a body.
type Tail interface {
	implTail()
}

// Return yields its arguments.
type Return struct {
	Args []Atom
}

// BlockCall jumps to (or calls) a block.
type BlockCall struct {
	Block DefnID
	Args  []Atom
	Inst  *types.BlockType
}

// PrimCall applies a primitive.
type PrimCall struct {
	Prim *Prim
	Args []Atom
	Inst *types.BlockType
}

// ClosAlloc allocates a closure storing Args.
type ClosAlloc struct {
	Closure DefnID
	Args    []Atom
	Inst    *types.AllocType
}

// DataAlloc allocates a data value.
type DataAlloc struct {
	Cfun *types.Cfun
	Args []Atom
	Inst *types.AllocType
}

// Enter applies a closure value to arguments.
type Enter struct {
	Fun  Atom
	Args []Atom
}

// Sel reads field Field of a value built by Cfun.
type Sel struct {
	Cfun  *types.Cfun
	Field int
	Arg   Atom
	Inst  *types.AllocType
}

func (*Return) implTail()    {}
func (*BlockCall) implTail() {}
func (*PrimCall) implTail()  {}
func (*ClosAlloc) implTail() {}
func (*DataAlloc) implTail() {}
func (*Enter) implTail()     {}
func (*Sel) implTail()       {}

// Code is a block body: a sequence of bindings ending in a transfer.
type Code interface {
	implCode()
}

// Bind runs Tail, binds its results to Vars and continues with Next.
type Bind struct {
	Vars []*Temp
	Tail Tail
	Next Code
}

// Done ends the body with Tail.
type Done struct {
	Tail Tail
}

// If branches on a flag.
type If struct {
	Cond    Atom
	IfTrue  *BlockCall
	IfFalse *BlockCall
}

// Alt is one arm of a Case.
type Alt struct {
	Cfun *types.Cfun
	Call *BlockCall
}

// Case branches on the constructor of a data value.
type Case struct {
	Scrut   Atom
	Alts    []Alt
	Default *BlockCall
}

func (*Bind) implCode() {}
func (*Done) implCode() {}
func (*If) implCode()   {}
func (*Case) implCode() {}

// TailArgs returns the atom operands of a tail.
func TailArgs(t Tail) []Atom {
	switch x := t.(type) {
	case *Return:
		return x.Args
	case *BlockCall:
		return x.Args
	case *PrimCall:
		return x.Args
	case *ClosAlloc:
		return x.Args
	case *DataAlloc:
		return x.Args
	case *Enter:
		return append([]Atom{x.Fun}, x.Args...)
	case *Sel:
		return []Atom{x.Arg}
	}
	return nil
}

// Calls returns the block calls a body transfers control to from If and
// Case, which are the only non-tail call sites besides Bind/Done tails.
func Calls(c Code) []*BlockCall {
	switch x := c.(type) {
	case *If:
		return []*BlockCall{x.IfTrue, x.IfFalse}
	case *Case:
		calls := make([]*BlockCall, 0, len(x.Alts)+1)
		for _, a := range x.Alts {
			calls = append(calls, a.Call)
		}
		if x.Default != nil {
			calls = append(calls, x.Default)
		}
		return calls
	}
	return nil
}

// HasNoEffect reports whether evaluating t cannot have an observable effect,
// so a binding of unused results may be dropped.
func HasNoEffect(t Tail) bool {
	switch x := t.(type) {
	case *Return, *ClosAlloc, *DataAlloc, *Sel:
		return true
	case *PrimCall:
		return x.Prim.HasNoEffect()
	}
	return false
}

// IsRepeatable reports whether t may be evaluated again, or reused from an
// earlier evaluation, without changing behavior.
func IsRepeatable(t Tail) bool {
	switch x := t.(type) {
	case *Return, *Sel:
		return true
	case *PrimCall:
		return x.Prim.IsRepeatable()
	}
	return false
}

// TailDoesntReturn reports whether t never transfers control to a successor.
func TailDoesntReturn(t Tail) bool {
	if p, ok := t.(*PrimCall); ok {
		return p.Prim.DoesntReturn()
	}
	return false
}
