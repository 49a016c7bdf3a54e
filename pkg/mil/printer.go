package mil

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes MIL definitions in a readable text form. Temporaries are
// renumbered per definition so output does not depend on allocation order.
type Printer struct {
	w     io.Writer
	prog  *Program
	names map[*Temp]string
}

// NewPrinter creates a printer for definitions of prog.
func NewPrinter(w io.Writer, prog *Program) *Printer {
	return &Printer{w: w, prog: prog}
}

// PrintProgram prints the definitions reachable from the entrypoints, or
// every definition if there are no entrypoints.
func (p *Printer) PrintProgram() {
	ids := p.prog.Reachable()
	if len(p.prog.Entries) == 0 {
		ids = p.prog.All()
	}
	for i, id := range ids {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintDefn(p.prog.Defn(id))
	}
}

// PrintDefn prints one definition.
func (p *Printer) PrintDefn(d Defn) {
	p.names = make(map[*Temp]string)
	h := d.Head()
	if h.Entrypoint {
		fmt.Fprintf(p.w, "export %s\n", h.Name)
	}
	switch x := d.(type) {
	case *Block:
		if x.Declared != nil {
			fmt.Fprintf(p.w, "%s :: %s\n", x.Name, x.Declared)
		}
		fmt.Fprintf(p.w, "%s[%s] =\n", x.Name, p.temps(x.Params))
		p.printCode(x.Body, "  ")
	case *ClosureDefn:
		if x.Declared != nil {
			fmt.Fprintf(p.w, "%s :: %s\n", x.Name, x.Declared)
		}
		fmt.Fprintf(p.w, "%s{%s} [%s] = %s\n", x.Name, p.temps(x.Params), p.temps(x.Args), p.tail(x.Tail))
	case *TopLevel:
		for _, l := range x.Lhs {
			if l.Declared != nil {
				fmt.Fprintf(p.w, "%s :: %s\n", l.Name, l.Declared)
			}
		}
		names := make([]string, len(x.Lhs))
		for i, l := range x.Lhs {
			names[i] = l.Name
		}
		fmt.Fprintf(p.w, "%s <- %s\n", strings.Join(names, ", "), p.tail(x.Tail))
	case *External:
		fmt.Fprintf(p.w, "external %s", x.Name)
		if x.Ref != "" {
			fmt.Fprintf(p.w, " {%s", x.Ref)
			for _, t := range x.Ts {
				fmt.Fprintf(p.w, " (%s)", t)
			}
			fmt.Fprint(p.w, "}")
		}
		fmt.Fprintf(p.w, " :: %s\n", x.Declared)
	}
}

func (p *Printer) temp(t *Temp) string {
	if n, ok := p.names[t]; ok {
		return n
	}
	n := fmt.Sprintf("t%d", len(p.names))
	p.names[t] = n
	return n
}

func (p *Printer) temps(ts []*Temp) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = p.temp(t)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) atom(a Atom) string {
	switch x := a.(type) {
	case *Temp:
		return p.temp(x)
	case *TopRef:
		return p.topName(x)
	}
	return a.String()
}

func (p *Printer) topName(r *TopRef) string {
	if p.prog == nil || int(r.Defn) >= len(p.prog.Defns) {
		return r.String()
	}
	if t, ok := p.prog.Defns[r.Defn].(*TopLevel); ok && r.Index < len(t.Lhs) {
		return t.Lhs[r.Index].Name
	}
	return p.prog.Defns[r.Defn].Head().Name
}

func (p *Printer) atoms(as []Atom) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = p.atom(a)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) defnName(id DefnID) string {
	if p.prog == nil || id < 0 || int(id) >= len(p.prog.Defns) {
		return fmt.Sprintf("defn%d", id)
	}
	return p.prog.Defns[id].Head().Name
}

func (p *Printer) tail(t Tail) string {
	switch x := t.(type) {
	case *Return:
		return "return [" + p.atoms(x.Args) + "]"
	case *BlockCall:
		return p.defnName(x.Block) + "[" + p.atoms(x.Args) + "]"
	case *PrimCall:
		return x.Prim.Name + "((" + p.atoms(x.Args) + "))"
	case *ClosAlloc:
		return p.defnName(x.Closure) + "{" + p.atoms(x.Args) + "}"
	case *DataAlloc:
		return x.Cfun.Name + "(" + p.atoms(x.Args) + ")"
	case *Enter:
		return p.atom(x.Fun) + " @ [" + p.atoms(x.Args) + "]"
	case *Sel:
		return fmt.Sprintf("%s %d %s", x.Cfun.Name, x.Field, p.atom(x.Arg))
	}
	return "?"
}

func (p *Printer) printCode(c Code, indent string) {
	for c != nil {
		switch x := c.(type) {
		case *Bind:
			// number the tail's atoms before the binders
			rhs := p.tail(x.Tail)
			lhs := "[" + p.temps(x.Vars) + "]"
			if len(x.Vars) == 1 {
				lhs = p.temp(x.Vars[0])
			}
			fmt.Fprintf(p.w, "%s%s <- %s\n", indent, lhs, rhs)
			c = x.Next
			continue
		case *Done:
			fmt.Fprintf(p.w, "%s%s\n", indent, p.tail(x.Tail))
		case *If:
			fmt.Fprintf(p.w, "%sif %s then %s else %s\n", indent, p.atom(x.Cond), p.tail(x.IfTrue), p.tail(x.IfFalse))
		case *Case:
			fmt.Fprintf(p.w, "%scase %s of\n", indent, p.atom(x.Scrut))
			for _, a := range x.Alts {
				fmt.Fprintf(p.w, "%s  %s -> %s\n", indent, a.Cfun.Name, p.tail(a.Call))
			}
			if x.Default != nil {
				fmt.Fprintf(p.w, "%s  _ -> %s\n", indent, p.tail(x.Default))
			}
		}
		return
	}
}
