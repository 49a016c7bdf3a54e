// Branch tunneling for RTL graphs.
// Edges into a node holding only "nop goto n" are redirected to n, and
// nodes no longer reachable from the entry are removed.

package rtlgen

import "github.com/bgins/mil-tools/pkg/rtl"

// Tunnel shortcuts chains of nops in fn and drops unreachable nodes.
func Tunnel(fn *rtl.Function) {
	if len(fn.Code) == 0 {
		return
	}

	resolved := resolveChains(buildJumpTargetMap(fn))
	for n, instr := range fn.Code {
		fn.Code[n] = tunnelInstruction(instr, resolved)
	}
	if t, ok := resolved[fn.Entrypoint]; ok {
		fn.Entrypoint = t
	}
	removeUnreachable(fn)
}

// buildJumpTargetMap finds the nodes that only jump elsewhere.
func buildJumpTargetMap(fn *rtl.Function) map[rtl.Node]rtl.Node {
	result := make(map[rtl.Node]rtl.Node)
	for n, instr := range fn.Code {
		if nop, ok := instr.(rtl.Inop); ok {
			result[n] = nop.Succ
		}
	}
	return result
}

// resolveChains follows jump chains to their ultimate target.
func resolveChains(jumpTargets map[rtl.Node]rtl.Node) map[rtl.Node]rtl.Node {
	result := make(map[rtl.Node]rtl.Node)
	for n := range jumpTargets {
		result[n] = resolveNode(n, jumpTargets)
	}
	return result
}

// resolveNode follows a jump chain. A cycle of nops resolves to the node
// where the cycle is detected, which keeps an infinite loop in place.
func resolveNode(n rtl.Node, jumpTargets map[rtl.Node]rtl.Node) rtl.Node {
	visited := make(map[rtl.Node]bool)
	current := n
	for {
		if visited[current] {
			return current
		}
		visited[current] = true

		target, ok := jumpTargets[current]
		if !ok {
			return current
		}
		current = target
	}
}

func tunnelInstruction(instr rtl.Instruction, resolved map[rtl.Node]rtl.Node) rtl.Instruction {
	t := func(n rtl.Node) rtl.Node {
		if r, ok := resolved[n]; ok {
			return r
		}
		return n
	}
	switch i := instr.(type) {
	case rtl.Inop:
		i.Succ = t(i.Succ)
		return i
	case rtl.Iop:
		i.Succ = t(i.Succ)
		return i
	case rtl.Iload:
		i.Succ = t(i.Succ)
		return i
	case rtl.Istore:
		i.Succ = t(i.Succ)
		return i
	case rtl.Icall:
		i.Succ = t(i.Succ)
		return i
	case rtl.Ibuiltin:
		i.Succ = t(i.Succ)
		return i
	case rtl.Ialloc:
		i.Succ = t(i.Succ)
		return i
	case rtl.Icond:
		i.IfSo, i.IfNot = t(i.IfSo), t(i.IfNot)
		return i
	case rtl.Ijumptable:
		targets := make([]rtl.Node, len(i.Targets))
		for j, n := range i.Targets {
			targets[j] = t(n)
		}
		i.Targets = targets
		return i
	default:
		return instr
	}
}

func removeUnreachable(fn *rtl.Function) {
	seen := map[rtl.Node]bool{fn.Entrypoint: true}
	work := []rtl.Node{fn.Entrypoint}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		instr, ok := fn.Code[n]
		if !ok {
			continue
		}
		for _, s := range instr.Successors() {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	for n := range fn.Code {
		if !seen[n] {
			delete(fn.Code, n)
		}
	}
}
