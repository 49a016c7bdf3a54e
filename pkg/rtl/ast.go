// Package rtl defines the low-level output form of the MIL pipeline: each
// function is a control-flow graph of three-address instructions over an
// unbounded supply of word-sized pseudo-registers.
package rtl

// Node represents a program point in the CFG (positive integer identifier)
type Node int

// Reg represents a pseudo-register (positive integer, infinite supply)
type Reg int

// Chunk is the width of a memory access.
type Chunk int

const (
	Mint8unsigned Chunk = iota
	Mint16unsigned
	Mint32
	Mint64
)

// Bytes is the number of bytes a chunk covers.
func (c Chunk) Bytes() int {
	switch c {
	case Mint8unsigned:
		return 1
	case Mint16unsigned:
		return 2
	case Mint32:
		return 4
	}
	return 8
}

// AddressingMode describes how a load or store computes its address.
type AddressingMode interface {
	implAddressingMode()
}

// Aindexed addresses args[0] + Offset.
type Aindexed struct {
	Offset int64
}

// Aglobal addresses a global symbol plus Offset.
type Aglobal struct {
	Symbol string
	Offset int64
}

func (Aindexed) implAddressingMode() {}
func (Aglobal) implAddressingMode()  {}

// Sig is the number of word arguments and word results of a function.
type Sig struct {
	Args    int
	Results int
}

// --- Operation Types ---

// Operation represents an RTL operation (arithmetic, load address, etc.)
type Operation interface {
	implOperation()
}

// Omove copies a register value (identity operation)
type Omove struct{}

// Ointconst loads a word constant
type Ointconst struct {
	Value int64
}

// Oaddrsymbol loads the address of a global or function symbol
type Oaddrsymbol struct {
	Symbol string
	Offset int64
}

type Oadd struct{}             // rd = rs1 + rs2
type Oaddimm struct{ N int64 } // rd = rs + n
type Oneg struct{}             // rd = -rs
type Osub struct{}             // rd = rs1 - rs2
type Omul struct{}             // rd = rs1 * rs2
type Odiv struct{}             // rd = rs1 / rs2 (signed)
type Omod struct{}             // rd = rs1 % rs2 (signed)
type Oand struct{}             // rd = rs1 & rs2
type Oor struct{}              // rd = rs1 | rs2
type Oxor struct{}             // rd = rs1 ^ rs2
type Oxorimm struct{ N int64 } // rd = rs ^ n
type Onot struct{}             // rd = ~rs
type Oshl struct{}             // rd = rs1 << rs2
type Oshr struct{}             // rd = rs1 >> rs2 (signed)
type Oshru struct{}            // rd = rs1 >> rs2 (unsigned)

// Comparison operations (produce 0 or 1)
type Ocmp struct{ Cond Condition }  // compare signed
type Ocmpu struct{ Cond Condition } // compare unsigned

func (Omove) implOperation()       {}
func (Ointconst) implOperation()   {}
func (Oaddrsymbol) implOperation() {}
func (Oadd) implOperation()        {}
func (Oaddimm) implOperation()     {}
func (Oneg) implOperation()        {}
func (Osub) implOperation()        {}
func (Omul) implOperation()        {}
func (Odiv) implOperation()        {}
func (Omod) implOperation()        {}
func (Oand) implOperation()        {}
func (Oor) implOperation()         {}
func (Oxor) implOperation()        {}
func (Oxorimm) implOperation()     {}
func (Onot) implOperation()        {}
func (Oshl) implOperation()        {}
func (Oshr) implOperation()        {}
func (Oshru) implOperation()       {}
func (Ocmp) implOperation()        {}
func (Ocmpu) implOperation()       {}

// --- Condition Codes ---

// Condition represents a comparison condition
type Condition int

const (
	Ceq Condition = iota // equal
	Cne                  // not equal
	Clt                  // less than
	Cle                  // less than or equal
	Cgt                  // greater than
	Cge                  // greater than or equal
)

func (c Condition) String() string {
	names := []string{"==", "!=", "<", "<=", ">", ">="}
	if int(c) < len(names) {
		return names[c]
	}
	return "?"
}

// Negate returns the negated condition
func (c Condition) Negate() Condition {
	switch c {
	case Ceq:
		return Cne
	case Cne:
		return Ceq
	case Clt:
		return Cge
	case Cle:
		return Cgt
	case Cgt:
		return Cle
	case Cge:
		return Clt
	}
	return c
}

// ConditionCode represents a comparison condition for Icond
type ConditionCode interface {
	implConditionCode()
}

// Ccomp is a signed comparison of two registers
type Ccomp struct {
	Cond Condition
}

// Ccompu is an unsigned comparison of two registers
type Ccompu struct {
	Cond Condition
}

// Ccompimm is a signed comparison with an immediate
type Ccompimm struct {
	Cond Condition
	N    int64
}

func (Ccomp) implConditionCode()    {}
func (Ccompu) implConditionCode()   {}
func (Ccompimm) implConditionCode() {}

// --- Instruction Types ---

// Instruction is the interface for RTL instructions
type Instruction interface {
	implInstruction()
	Successors() []Node
}

// Inop is a no-operation that just branches to the successor
type Inop struct {
	Succ Node
}

// Iop performs an operation: dest = op(args...)
type Iop struct {
	Op   Operation
	Args []Reg
	Dest Reg
	Succ Node
}

// Iload loads from memory: dest = Mem[addr(args...)]
type Iload struct {
	Chunk Chunk
	Addr  AddressingMode
	Args  []Reg
	Dest  Reg
	Succ  Node
}

// Istore stores to memory: Mem[addr(args...)] = src
type Istore struct {
	Chunk Chunk
	Addr  AddressingMode
	Args  []Reg
	Src   Reg
	Succ  Node
}

// Icall calls a function and receives its results in Dests
type Icall struct {
	Sig   Sig
	Fn    FunRef
	Args  []Reg
	Dests []Reg
	Succ  Node
}

// Itailcall performs a tail call (no return to caller)
type Itailcall struct {
	Sig  Sig
	Fn   FunRef
	Args []Reg
}

// Ibuiltin calls a runtime routine such as printWord
type Ibuiltin struct {
	Builtin string
	Args    []Reg
	Dest    *Reg
	Succ    Node
}

// Ialloc allocates Words heap words and stores the address in Dest
type Ialloc struct {
	Words int
	Dest  Reg
	Succ  Node
}

// Icond is a conditional branch
type Icond struct {
	Cond  ConditionCode
	Args  []Reg
	IfSo  Node
	IfNot Node
}

// Ijumptable is an indexed jump (constructor tag dispatch)
type Ijumptable struct {
	Arg     Reg
	Targets []Node
}

// Ireturn returns zero or more words from the function
type Ireturn struct {
	Args []Reg
}

// Iabort stops the program; it has no successor
type Iabort struct {
	Reason string
}

func (Inop) implInstruction()       {}
func (Iop) implInstruction()        {}
func (Iload) implInstruction()      {}
func (Istore) implInstruction()     {}
func (Icall) implInstruction()      {}
func (Itailcall) implInstruction()  {}
func (Ibuiltin) implInstruction()   {}
func (Ialloc) implInstruction()     {}
func (Icond) implInstruction()      {}
func (Ijumptable) implInstruction() {}
func (Ireturn) implInstruction()    {}
func (Iabort) implInstruction()     {}

// Successors returns the list of successor nodes
func (i Inop) Successors() []Node       { return []Node{i.Succ} }
func (i Iop) Successors() []Node        { return []Node{i.Succ} }
func (i Iload) Successors() []Node      { return []Node{i.Succ} }
func (i Istore) Successors() []Node     { return []Node{i.Succ} }
func (i Icall) Successors() []Node      { return []Node{i.Succ} }
func (i Itailcall) Successors() []Node  { return nil }
func (i Ibuiltin) Successors() []Node   { return []Node{i.Succ} }
func (i Ialloc) Successors() []Node     { return []Node{i.Succ} }
func (i Icond) Successors() []Node      { return []Node{i.IfSo, i.IfNot} }
func (i Ijumptable) Successors() []Node { return i.Targets }
func (i Ireturn) Successors() []Node    { return nil }
func (i Iabort) Successors() []Node     { return nil }

// FunRef represents a function reference (either register or symbol)
type FunRef interface {
	implFunRef()
}

// FunReg is a function pointer in a register
type FunReg struct {
	Reg Reg
}

// FunSymbol is a named function symbol
type FunSymbol struct {
	Name string
}

func (FunReg) implFunRef()    {}
func (FunSymbol) implFunRef() {}

// --- Function and Program ---

// Function represents an RTL function
type Function struct {
	Name       string
	Sig        Sig
	Params     []Reg
	Code       map[Node]Instruction
	Entrypoint Node
	Exported   bool
}

// Layout describes a closure record: word 0 holds the code pointer of Fun,
// then one word per stored value.
type Layout struct {
	Closure string
	Fun     string
	Stored  int
}

// Words is the size of the record.
func (l Layout) Words() int { return 1 + l.Stored }

// GlobVar is a word-aligned global initialized by its Init function.
type GlobVar struct {
	Name  string
	Words int
	Init  string
}

// Program represents a complete RTL program
type Program struct {
	WordSize  int
	Globals   []GlobVar
	Layouts   []Layout
	Functions []Function
}

// NewFunction creates a new RTL function with initialized code map
func NewFunction(name string, sig Sig) *Function {
	return &Function{
		Name: name,
		Sig:  sig,
		Code: make(map[Node]Instruction),
	}
}

// Function looks up a function by name.
func (p *Program) Function(name string) (*Function, bool) {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}
