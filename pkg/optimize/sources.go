package optimize

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/bgins/mil-tools/pkg/mil"
)

// SrcKind distinguishes the two forms of Src.
type SrcKind int

const (
	SrcJoin SrcKind = iota
	SrcAny
)

// Comp names the index-th parameter of a block.
type Comp struct {
	Defn  mil.DefnID
	Index int
}

// Src describes where the values of a block parameter come from. A join
// lists the parameters whose values flow into it within one recursive
// group; any means values from inconsistent sources.
type Src struct {
	Kind  SrcKind
	Comps []Comp
}

var anySrc = &Src{Kind: SrcAny}

func (s *Src) join(o *Src) (*Src, bool) {
	if s.Kind == SrcAny {
		return s, false
	}
	if o.Kind == SrcAny {
		return anySrc, true
	}
	comps := s.Comps
	changed := false
	for _, c := range o.Comps {
		found := false
		for _, d := range comps {
			if d.Defn == c.Defn {
				if d.Index != c.Index {
					return anySrc, true
				}
				found = true
			}
		}
		if !found {
			if !changed {
				comps = slices.Clone(comps)
			}
			comps = append(comps, c)
			changed = true
		}
	}
	if !changed {
		return s, false
	}
	return &Src{Kind: SrcJoin, Comps: comps}, true
}

func (s *Src) format(prog *mil.Program) string {
	if s.Kind == SrcAny {
		return "any"
	}
	parts := make([]string, len(s.Comps))
	for i, c := range s.Comps {
		parts[i] = fmt.Sprintf("%s.%d", prog.Defn(c.Defn).Head().Name, c.Index)
	}
	return strings.Join(parts, " | ")
}

// Sources holds the result of AnalyzeInvariants.
type Sources struct {
	prog *mil.Program
	srcs map[mil.DefnID][]*Src
}

// AnalyzeInvariants computes a Src for every parameter of every reachable
// block by propagating arguments along calls within each recursive group
// until nothing changes. A parameter that never receives anything but a
// consistent set of parameters is invariant in its group.
func AnalyzeInvariants(ctx *mil.Context, prog *mil.Program) *Sources {
	s := &Sources{prog: prog, srcs: make(map[mil.DefnID][]*Src)}
	ids := prog.Reachable()
	for _, scc := range prog.SCCs(ids) {
		if !prog.IsRecursive(scc) {
			continue
		}
		group := make(map[mil.DefnID]bool, len(scc))
		var blocks []*mil.Block
		for _, id := range scc {
			if b, ok := prog.Defn(id).(*mil.Block); ok {
				group[id] = true
				blocks = append(blocks, b)
				srcs := make([]*Src, len(b.Params))
				for i := range srcs {
					srcs[i] = &Src{Kind: SrcJoin, Comps: []Comp{{Defn: id, Index: i}}}
				}
				s.srcs[id] = srcs
			}
		}
		for changed := true; changed; {
			changed = false
			for _, b := range blocks {
				for _, bc := range blockCalls(b.Body) {
					if group[bc.Block] && s.propagate(b, bc) {
						changed = true
					}
				}
			}
		}
	}
	ctx.Log.Debug("analyzed invariants", "pass", "sources", "blocks", len(s.srcs))
	return s
}

func blockCalls(c mil.Code) []*mil.BlockCall {
	var calls []*mil.BlockCall
	mil.WalkCode(c, func(c mil.Code) {
		switch x := c.(type) {
		case *mil.Bind:
			if bc, ok := x.Tail.(*mil.BlockCall); ok {
				calls = append(calls, bc)
			}
		case *mil.Done:
			if bc, ok := x.Tail.(*mil.BlockCall); ok {
				calls = append(calls, bc)
			}
		}
		calls = append(calls, mil.Calls(c)...)
	})
	return calls
}

// propagate joins the sources of the caller's arguments into the callee's
// parameters.
func (s *Sources) propagate(caller *mil.Block, bc *mil.BlockCall) bool {
	callee := s.srcs[bc.Block]
	from := s.srcs[caller.ID]
	changed := false
	for i, a := range bc.Args {
		if i >= len(callee) {
			break
		}
		in := anySrc
		if t, ok := a.(*mil.Temp); ok {
			if j := slices.Index(caller.Params, t); j >= 0 {
				in = from[j]
			}
		}
		if r, ok := callee[i].join(in); ok {
			callee[i] = r
			changed = true
		}
	}
	return changed
}

// Src returns the source of the index-th parameter of id, or nil if id was
// not analyzed.
func (s *Sources) Src(id mil.DefnID, index int) *Src {
	srcs := s.srcs[id]
	if index < 0 || index >= len(srcs) {
		return nil
	}
	return srcs[index]
}

// IsInvariant reports whether the index-th parameter of id keeps the value
// it had on entry to its recursive group.
func (s *Sources) IsInvariant(id mil.DefnID, index int) bool {
	src := s.Src(id, index)
	return src != nil && src.Kind == SrcJoin
}

// Dump writes one line per analyzed parameter.
func (s *Sources) Dump(w io.Writer) error {
	ids := make([]mil.DefnID, 0, len(s.srcs))
	for id := range s.srcs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		name := s.prog.Defn(id).Head().Name
		for i, src := range s.srcs[id] {
			if _, err := fmt.Fprintf(w, "%s.%d: %s\n", name, i, src.format(s.prog)); err != nil {
				return err
			}
		}
	}
	return nil
}
