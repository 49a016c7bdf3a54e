package rtlgen

import (
	"slices"

	"github.com/bgins/mil-tools/pkg/rtl"
)

// RegSet is a set of registers.
type RegSet map[rtl.Reg]struct{}

func NewRegSet(rs ...rtl.Reg) RegSet {
	s := make(RegSet, len(rs))
	for _, r := range rs {
		s[r] = struct{}{}
	}
	return s
}

func (s RegSet) Add(r rtl.Reg) { s[r] = struct{}{} }

func (s RegSet) Contains(r rtl.Reg) bool {
	_, ok := s[r]
	return ok
}

// Slice returns the members in increasing order.
func (s RegSet) Slice() []rtl.Reg {
	out := make([]rtl.Reg, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Liveness holds per-node def/use sets and the fixpoint live sets.
type Liveness struct {
	Def     map[rtl.Node]RegSet
	Use     map[rtl.Node]RegSet
	LiveIn  map[rtl.Node]RegSet
	LiveOut map[rtl.Node]RegSet
}

// DefUse computes the registers each instruction writes and reads.
func DefUse(fn *rtl.Function) (def, use map[rtl.Node]RegSet) {
	def = make(map[rtl.Node]RegSet, len(fn.Code))
	use = make(map[rtl.Node]RegSet, len(fn.Code))
	for n, instr := range fn.Code {
		d, u := instrDefUse(instr)
		def[n] = NewRegSet(d...)
		use[n] = NewRegSet(u...)
	}
	return def, use
}

func instrDefUse(instr rtl.Instruction) (def, use []rtl.Reg) {
	switch i := instr.(type) {
	case rtl.Iop:
		return []rtl.Reg{i.Dest}, i.Args
	case rtl.Iload:
		return []rtl.Reg{i.Dest}, i.Args
	case rtl.Istore:
		return nil, append(slices.Clone(i.Args), i.Src)
	case rtl.Icall:
		return i.Dests, append(slices.Clone(i.Args), funRefRegs(i.Fn)...)
	case rtl.Itailcall:
		return nil, append(slices.Clone(i.Args), funRefRegs(i.Fn)...)
	case rtl.Ibuiltin:
		if i.Dest != nil {
			return []rtl.Reg{*i.Dest}, i.Args
		}
		return nil, i.Args
	case rtl.Ialloc:
		return []rtl.Reg{i.Dest}, nil
	case rtl.Icond:
		return nil, i.Args
	case rtl.Ijumptable:
		return nil, []rtl.Reg{i.Arg}
	case rtl.Ireturn:
		return nil, i.Args
	}
	return nil, nil
}

func funRefRegs(f rtl.FunRef) []rtl.Reg {
	if r, ok := f.(rtl.FunReg); ok {
		return []rtl.Reg{r.Reg}
	}
	return nil
}

// AnalyzeLiveness solves live-in = use ∪ (live-out − def) backwards over
// the control-flow graph until nothing changes.
func AnalyzeLiveness(fn *rtl.Function) *Liveness {
	def, use := DefUse(fn)
	info := &Liveness{
		Def:     def,
		Use:     use,
		LiveIn:  make(map[rtl.Node]RegSet, len(fn.Code)),
		LiveOut: make(map[rtl.Node]RegSet, len(fn.Code)),
	}

	// nodes are allocated roughly in program order; visit them backwards
	nodes := make([]rtl.Node, 0, len(fn.Code))
	for n := range fn.Code {
		nodes = append(nodes, n)
		info.LiveIn[n] = NewRegSet()
		info.LiveOut[n] = NewRegSet()
	}
	slices.Sort(nodes)
	slices.Reverse(nodes)

	for changed := true; changed; {
		changed = false
		for _, n := range nodes {
			out := info.LiveOut[n]
			for _, s := range fn.Code[n].Successors() {
				for r := range info.LiveIn[s] {
					if !out.Contains(r) {
						out.Add(r)
						changed = true
					}
				}
			}
			in := info.LiveIn[n]
			for r := range use[n] {
				if !in.Contains(r) {
					in.Add(r)
					changed = true
				}
			}
			for r := range out {
				if !def[n].Contains(r) && !in.Contains(r) {
					in.Add(r)
					changed = true
				}
			}
		}
	}
	return info
}

// DeadCode turns operations and loads whose result is never read into
// nops, repeating until no more are found. It returns the number removed.
// Tunnel cleans up the nops afterwards.
func DeadCode(fn *rtl.Function) int {
	removed := 0
	for {
		info := AnalyzeLiveness(fn)
		found := 0
		for n, instr := range fn.Code {
			var dest rtl.Reg
			var succ rtl.Node
			switch i := instr.(type) {
			case rtl.Iop:
				dest, succ = i.Dest, i.Succ
			case rtl.Iload:
				dest, succ = i.Dest, i.Succ
			default:
				continue
			}
			if !info.LiveOut[n].Contains(dest) {
				fn.Code[n] = rtl.Inop{Succ: succ}
				found++
			}
		}
		if found == 0 {
			return removed
		}
		removed += found
	}
}
