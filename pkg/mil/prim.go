package mil

import (
	"fmt"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/types"
)

// Purity orders primitives by the strength of their side effects.
type Purity int

const (
	Pure         Purity = iota // no effect, result depends only on arguments
	Observer                   // reads state, no effect
	Volatile                   // reads state that may change between calls
	Impure                     // has side effects
	DoesntReturn               // never returns to its caller
)

func (p Purity) String() string {
	switch p {
	case Pure:
		return "pure"
	case Observer:
		return "observer"
	case Volatile:
		return "volatile"
	case Impure:
		return "impure"
	case DoesntReturn:
		return "doesntReturn"
	}
	return fmt.Sprintf("purity(%d)", int(p))
}

// ParsePurity converts a purity name back to its level.
func ParsePurity(s string) (Purity, error) {
	for p := Pure; p <= DoesntReturn; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown purity %q", s)
}

// PrimOp identifies the behavior of a built-in primitive.
type PrimOp int

const (
	OpUser PrimOp = iota // declared by the program, no built-in behavior
	OpNot
	OpNeg
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLshr
	OpAshr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNzdiv
	OpBnot
	OpBand
	OpBor
	OpBxor
	OpBeq
	OpBlt
	OpBle
	OpBgt
	OpBge
	OpEq
	OpNeq
	OpSlt
	OpSle
	OpSgt
	OpSge
	OpUlt
	OpUle
	OpUgt
	OpUge
	OpFlagToWord
	OpHalt
	OpLoop
	OpPrintWord
	OpLoad8
	OpLoad16
	OpLoad32
	OpLoad64
	OpStore8
	OpStore16
	OpStore32
	OpStore64
	numOps
)

// Prim is a primitive operation. Specialized and representation-changed
// versions are registered as clones that keep the Op and point to their
// Origin.
type Prim struct {
	Index  int
	Name   string
	Purity Purity
	Type   *types.BlockType
	Op     PrimOp
	Origin *Prim
}

func (p *Prim) String() string { return p.Name }

// IsRepeatable reports whether calls may be duplicated or shared.
func (p *Prim) IsRepeatable() bool { return p.Purity <= Observer }

// HasNoEffect reports whether an unused call may be removed.
func (p *Prim) HasNoEffect() bool { return p.Purity <= Volatile }

// DoesntReturn reports whether a call never reaches a successor.
func (p *Prim) DoesntReturn() bool { return p.Purity >= DoesntReturn }

// Root returns the primitive p was cloned from, or p itself.
func (p *Prim) Root() *Prim {
	for p.Origin != nil {
		p = p.Origin
	}
	return p
}

// Fold evaluates p on literal arguments. It declines (false) for
// primitives without a pure evaluation rule or when an argument is not a
// literal.
func (p *Prim) Fold(wordSize int, args []Atom) (Atom, bool) {
	spec := primSpecs[p.Op]
	if spec.fold == nil || p.Purity != Pure {
		return nil, false
	}
	for _, a := range args {
		if !IsLiteral(a) {
			return nil, false
		}
	}
	return spec.fold(wordSize, args)
}

// PrimTable is the registry of primitives for one compilation.
type PrimTable struct {
	prims  []*Prim
	byName map[string]*Prim
}

// NewPrimTable returns a registry holding every built-in primitive.
func NewPrimTable() *PrimTable {
	t := &PrimTable{byName: make(map[string]*Prim)}
	for op := OpNot; op < numOps; op++ {
		spec := primSpecs[op]
		if err := t.Add(&Prim{Name: spec.name, Purity: spec.purity, Type: spec.typ, Op: op}); err != nil {
			diag.Internal("registering %s: %v", spec.name, err)
		}
	}
	return t
}

// Add registers a new named primitive.
func (t *PrimTable) Add(p *Prim) error {
	if _, ok := t.byName[p.Name]; ok {
		return fmt.Errorf("multiple definitions for primitive %s", p.Name)
	}
	p.Index = len(t.prims)
	t.prims = append(t.prims, p)
	t.byName[p.Name] = p
	return nil
}

// Lookup finds a primitive by name.
func (t *PrimTable) Lookup(name string) (*Prim, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// MustLookup finds a built-in primitive by name.
func (t *PrimTable) MustLookup(name string) *Prim {
	p, ok := t.byName[name]
	if !ok {
		diag.Internal("missing primitive %s", name)
	}
	return p
}

// Builtin returns the registered primitive for op.
func (t *PrimTable) Builtin(op PrimOp) *Prim {
	return t.MustLookup(primSpecs[op].name)
}

// Clone registers a copy of p at a different type.
func (t *PrimTable) Clone(p *Prim, bt *types.BlockType) *Prim {
	c := &Prim{Index: len(t.prims), Name: p.Name, Purity: p.Purity, Type: bt, Op: p.Op, Origin: p}
	t.prims = append(t.prims, c)
	return c
}

// Len is the number of registered primitives, clones included.
func (t *PrimTable) Len() int { return len(t.prims) }

// Dual returns the primitive q such that bnot(p(x, y)) == q(x, y).
func (t *PrimTable) Dual(p *Prim) (*Prim, bool) {
	d := primSpecs[p.Op].dual
	if d == OpUser {
		return nil, false
	}
	return t.Builtin(d), true
}

// Normalize wraps v to a signed value of the given word size.
func Normalize(wordSize int, v int64) int64 {
	if wordSize == 32 {
		return int64(int32(v))
	}
	return v
}

// Unsigned returns v as an unsigned value of the given word size.
func Unsigned(wordSize int, v int64) uint64 {
	if wordSize == 32 {
		return uint64(uint32(v))
	}
	return uint64(v)
}

type foldFunc func(wordSize int, args []Atom) (Atom, bool)

type primSpec struct {
	name   string
	purity Purity
	typ    *types.BlockType
	fold   foldFunc
	dual   PrimOp
}

func word(a Atom) int64 {
	if w, ok := a.(Word); ok {
		return w.Val
	}
	return 0
}

func flag(a Atom) bool {
	if f, ok := a.(Flag); ok {
		return f.Val
	}
	return false
}

func unop(f func(x int64) int64) foldFunc {
	return func(ws int, args []Atom) (Atom, bool) {
		return Word{Val: Normalize(ws, f(word(args[0])))}, true
	}
}

func binop(f func(ws int, x, y int64) int64) foldFunc {
	return func(ws int, args []Atom) (Atom, bool) {
		return Word{Val: Normalize(ws, f(ws, word(args[0]), word(args[1])))}, true
	}
}

func relop(f func(x, y int64) bool) foldFunc {
	return func(ws int, args []Atom) (Atom, bool) {
		return Flag{Val: f(Normalize(ws, word(args[0])), Normalize(ws, word(args[1])))}, true
	}
}

func urelop(f func(x, y uint64) bool) foldFunc {
	return func(ws int, args []Atom) (Atom, bool) {
		return Flag{Val: f(Unsigned(ws, word(args[0])), Unsigned(ws, word(args[1])))}, true
	}
}

func funop(f func(x bool) bool) foldFunc {
	return func(_ int, args []Atom) (Atom, bool) {
		return Flag{Val: f(flag(args[0]))}, true
	}
}

func fbinop(f func(x, y bool) bool) foldFunc {
	return func(_ int, args []Atom) (Atom, bool) {
		return Flag{Val: f(flag(args[0]), flag(args[1]))}, true
	}
}

func shiftAmount(ws int, y int64) uint {
	return uint(y) & uint(ws-1)
}

var (
	wordUnary   = types.NewBlockType([]types.Type{types.WordType}, []types.Type{types.WordType})
	wordBinary  = types.NewBlockType([]types.Type{types.WordType, types.WordType}, []types.Type{types.WordType})
	flagUnary   = types.NewBlockType([]types.Type{types.FlagType}, []types.Type{types.FlagType})
	flagBinary  = types.NewBlockType([]types.Type{types.FlagType, types.FlagType}, []types.Type{types.FlagType})
	relType     = types.NewBlockType([]types.Type{types.WordType, types.WordType}, []types.Type{types.FlagType})
	nzdivType   = types.NewBlockType([]types.Type{types.WordType, types.NZWordType}, []types.Type{types.WordType})
	flagToWordT = types.NewBlockType([]types.Type{types.FlagType}, []types.Type{types.WordType})
	printType   = types.NewBlockType([]types.Type{types.WordType}, nil)
	haltType    = &types.BlockType{Prefix: []types.Kind{types.KTuple}, Dom: types.Tuple(), Rng: types.TGen{N: 0}}
)

func loadType(bits int64) *types.BlockType {
	return types.NewBlockType([]types.Type{types.AddrType}, []types.Type{types.BitType(bits)})
}

func storeType(bits int64) *types.BlockType {
	return types.NewBlockType([]types.Type{types.AddrType, types.BitType(bits)}, nil)
}

var primSpecs = [numOps]primSpec{
	OpNot: {name: "not", typ: wordUnary, fold: unop(func(x int64) int64 { return ^x })},
	OpNeg: {name: "neg", typ: wordUnary, fold: unop(func(x int64) int64 { return -x })},
	OpAnd: {name: "and", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x & y })},
	OpOr:  {name: "or", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x | y })},
	OpXor: {name: "xor", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x ^ y })},
	OpShl: {name: "shl", typ: wordBinary, fold: binop(func(ws int, x, y int64) int64 { return x << shiftAmount(ws, y) })},
	OpLshr: {name: "lshr", typ: wordBinary, fold: binop(func(ws int, x, y int64) int64 {
		return int64(Unsigned(ws, x) >> shiftAmount(ws, y))
	})},
	OpAshr: {name: "ashr", typ: wordBinary, fold: binop(func(ws int, x, y int64) int64 {
		return Normalize(ws, x) >> shiftAmount(ws, y)
	})},
	OpAdd: {name: "add", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x + y })},
	OpSub: {name: "sub", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x - y })},
	OpMul: {name: "mul", typ: wordBinary, fold: binop(func(_ int, x, y int64) int64 { return x * y })},
	OpDiv: {name: "div", purity: Impure, typ: wordBinary},
	OpRem: {name: "rem", purity: Impure, typ: wordBinary},
	OpNzdiv: {name: "nzdiv", typ: nzdivType, fold: func(ws int, args []Atom) (Atom, bool) {
		y := Normalize(ws, word(args[1]))
		if y == 0 {
			return nil, false
		}
		return Word{Val: Normalize(ws, Normalize(ws, word(args[0]))/y)}, true
	}},

	OpBnot: {name: "bnot", typ: flagUnary, fold: funop(func(x bool) bool { return !x })},
	OpBand: {name: "band", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x && y })},
	OpBor:  {name: "bor", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x || y })},
	OpBxor: {name: "bxor", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x != y }), dual: OpBeq},
	OpBeq:  {name: "beq", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x == y }), dual: OpBxor},
	OpBlt:  {name: "blt", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return !x && y }), dual: OpBge},
	OpBle:  {name: "ble", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return !x || y }), dual: OpBgt},
	OpBgt:  {name: "bgt", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x && !y }), dual: OpBle},
	OpBge:  {name: "bge", typ: flagBinary, fold: fbinop(func(x, y bool) bool { return x || !y }), dual: OpBlt},

	OpEq:  {name: "primEq", typ: relType, fold: relop(func(x, y int64) bool { return x == y }), dual: OpNeq},
	OpNeq: {name: "primNeq", typ: relType, fold: relop(func(x, y int64) bool { return x != y }), dual: OpEq},
	OpSlt: {name: "primSlt", typ: relType, fold: relop(func(x, y int64) bool { return x < y }), dual: OpSge},
	OpSle: {name: "primSle", typ: relType, fold: relop(func(x, y int64) bool { return x <= y }), dual: OpSgt},
	OpSgt: {name: "primSgt", typ: relType, fold: relop(func(x, y int64) bool { return x > y }), dual: OpSle},
	OpSge: {name: "primSge", typ: relType, fold: relop(func(x, y int64) bool { return x >= y }), dual: OpSlt},
	OpUlt: {name: "primUlt", typ: relType, fold: urelop(func(x, y uint64) bool { return x < y }), dual: OpUge},
	OpUle: {name: "primUle", typ: relType, fold: urelop(func(x, y uint64) bool { return x <= y }), dual: OpUgt},
	OpUgt: {name: "primUgt", typ: relType, fold: urelop(func(x, y uint64) bool { return x > y }), dual: OpUle},
	OpUge: {name: "primUge", typ: relType, fold: urelop(func(x, y uint64) bool { return x >= y }), dual: OpUlt},

	OpFlagToWord: {name: "flagToWord", typ: flagToWordT, fold: func(_ int, args []Atom) (Atom, bool) {
		if flag(args[0]) {
			return Word{Val: 1}, true
		}
		return Word{Val: 0}, true
	}},

	OpHalt:      {name: "halt", purity: DoesntReturn, typ: haltType},
	OpLoop:      {name: "loop", purity: DoesntReturn, typ: haltType},
	OpPrintWord: {name: "printWord", purity: Impure, typ: printType},

	OpLoad8:   {name: "load8", purity: Impure, typ: loadType(8)},
	OpLoad16:  {name: "load16", purity: Impure, typ: loadType(16)},
	OpLoad32:  {name: "load32", purity: Impure, typ: loadType(32)},
	OpLoad64:  {name: "load64", purity: Impure, typ: loadType(64)},
	OpStore8:  {name: "store8", purity: Impure, typ: storeType(8)},
	OpStore16: {name: "store16", purity: Impure, typ: storeType(16)},
	OpStore32: {name: "store32", purity: Impure, typ: storeType(32)},
	OpStore64: {name: "store64", purity: Impure, typ: storeType(64)},
}

// MemWidth returns the access width in bytes of a load or store primitive,
// and whether op is a store.
func MemWidth(op PrimOp) (int, bool, bool) {
	switch op {
	case OpLoad8:
		return 1, false, true
	case OpLoad16:
		return 2, false, true
	case OpLoad32:
		return 4, false, true
	case OpLoad64:
		return 8, false, true
	case OpStore8:
		return 1, true, true
	case OpStore16:
		return 2, true, true
	case OpStore32:
		return 4, true, true
	case OpStore64:
		return 8, true, true
	}
	return 0, false, false
}
