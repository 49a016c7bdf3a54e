package rtl

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Printer writes RTL programs as text. Registers print as xN and
// instructions as "N: instr".
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints the globals and closure layouts of prog, then every
// function separated by blank lines.
func (p *Printer) PrintProgram(prog *Program) {
	for _, g := range prog.Globals {
		fmt.Fprintf(p.w, "var %q[%d] init %q\n", g.Name, g.Words, g.Init)
	}
	for _, l := range prog.Layouts {
		fmt.Fprintf(p.w, "closure %q = {code %q, %d stored}\n", l.Closure, l.Fun, l.Stored)
	}
	if len(prog.Globals)+len(prog.Layouts) > 0 {
		fmt.Fprintln(p.w)
	}
	for i := range prog.Functions {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(&prog.Functions[i])
	}
}

// PrintFunction prints fn with its nodes in increasing order.
func (p *Printer) PrintFunction(fn *Function) {
	export := ""
	if fn.Exported {
		export = "export "
	}
	fmt.Fprintf(p.w, "%s%s(%s) : %d {\n", export, fn.Name, regList(fn.Params), fn.Sig.Results)
	nodes := make([]Node, 0, len(fn.Code))
	for n := range fn.Code {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		fmt.Fprintf(p.w, "  %d: %s\n", n, instrString(fn.Code[n]))
	}
	fmt.Fprintf(p.w, "}\nentry: %d\n", fn.Entrypoint)
}

func regList(rs []Reg) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = fmt.Sprintf("x%d", r)
	}
	return strings.Join(parts, ", ")
}

func instrString(instr Instruction) string {
	switch i := instr.(type) {
	case Inop:
		return fmt.Sprintf("nop goto %d", i.Succ)
	case Iop:
		return fmt.Sprintf("x%d = %s(%s) goto %d", i.Dest, opString(i.Op), regList(i.Args), i.Succ)
	case Iload:
		return fmt.Sprintf("x%d = %s[%s] goto %d", i.Dest, i.Chunk, addrString(i.Addr, i.Args), i.Succ)
	case Istore:
		return fmt.Sprintf("%s[%s] = x%d goto %d", i.Chunk, addrString(i.Addr, i.Args), i.Src, i.Succ)
	case Icall:
		lhs := ""
		if len(i.Dests) > 0 {
			lhs = regList(i.Dests) + " = "
		}
		return fmt.Sprintf("%scall %s(%s) goto %d", lhs, funRefString(i.Fn), regList(i.Args), i.Succ)
	case Itailcall:
		return fmt.Sprintf("tailcall %s(%s)", funRefString(i.Fn), regList(i.Args))
	case Ibuiltin:
		lhs := ""
		if i.Dest != nil {
			lhs = fmt.Sprintf("x%d = ", *i.Dest)
		}
		return fmt.Sprintf("%sbuiltin %q(%s) goto %d", lhs, i.Builtin, regList(i.Args), i.Succ)
	case Ialloc:
		return fmt.Sprintf("x%d = alloc %d goto %d", i.Dest, i.Words, i.Succ)
	case Icond:
		return fmt.Sprintf("if %s goto %d else goto %d", condString(i.Cond, i.Args), i.IfSo, i.IfNot)
	case Ijumptable:
		targets := make([]string, len(i.Targets))
		for j, t := range i.Targets {
			targets[j] = fmt.Sprint(t)
		}
		return fmt.Sprintf("jumptable x%d [%s]", i.Arg, strings.Join(targets, ", "))
	case Ireturn:
		if len(i.Args) == 0 {
			return "return"
		}
		return "return " + regList(i.Args)
	case Iabort:
		return fmt.Sprintf("abort %q", i.Reason)
	}
	return "???"
}

var opNames = map[Operation]string{
	Omove{}: "move",
	Oadd{}:  "add",
	Oneg{}:  "neg",
	Osub{}:  "sub",
	Omul{}:  "mul",
	Odiv{}:  "div",
	Omod{}:  "mod",
	Oand{}:  "and",
	Oor{}:   "or",
	Oxor{}:  "xor",
	Onot{}:  "not",
	Oshl{}:  "shl",
	Oshr{}:  "shr",
	Oshru{}: "shru",
}

func opString(op Operation) string {
	switch o := op.(type) {
	case Ointconst:
		return fmt.Sprintf("int %d", o.Value)
	case Oaddrsymbol:
		return fmt.Sprintf("addrsymbol %q %d", o.Symbol, o.Offset)
	case Oaddimm:
		return fmt.Sprintf("addimm %d", o.N)
	case Oxorimm:
		return fmt.Sprintf("xorimm %d", o.N)
	case Ocmp:
		return "cmp " + o.Cond.String()
	case Ocmpu:
		return "cmpu " + o.Cond.String()
	}
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op?(%T)", op)
}

func addrString(addr AddressingMode, args []Reg) string {
	switch a := addr.(type) {
	case Aindexed:
		if len(args) == 0 {
			return fmt.Sprint(a.Offset)
		}
		return fmt.Sprintf("x%d + %d", args[0], a.Offset)
	case Aglobal:
		return fmt.Sprintf("%q + %d", a.Symbol, a.Offset)
	}
	return "addr?"
}

func funRefString(fn FunRef) string {
	switch f := fn.(type) {
	case FunSymbol:
		return fmt.Sprintf("%q", f.Name)
	case FunReg:
		return fmt.Sprintf("x%d", f.Reg)
	}
	return "fun?"
}

// condString prints a comparison; unsigned ones carry a u suffix.
func condString(cc ConditionCode, args []Reg) string {
	switch c := cc.(type) {
	case Ccomp:
		if len(args) >= 2 {
			return fmt.Sprintf("x%d %s x%d", args[0], c.Cond, args[1])
		}
	case Ccompu:
		if len(args) >= 2 {
			return fmt.Sprintf("x%d %su x%d", args[0], c.Cond, args[1])
		}
	case Ccompimm:
		if len(args) >= 1 {
			return fmt.Sprintf("x%d %s %d", args[0], c.Cond, c.N)
		}
	}
	return "cond?"
}

// String names the chunk as it appears in loads and stores.
func (c Chunk) String() string {
	switch c {
	case Mint8unsigned:
		return "int8u"
	case Mint16unsigned:
		return "int16u"
	case Mint32:
		return "int32"
	case Mint64:
		return "int64"
	}
	return "mem"
}
