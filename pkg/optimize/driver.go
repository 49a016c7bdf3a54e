// Package optimize rewrites a monomorphic program until it stops shrinking:
// local simplification, inlining, unused-argument removal and duplicate
// elimination, each run over every reachable definition.
package optimize

import (
	"github.com/bgins/mil-tools/pkg/mil"
)

// Options bounds the optimizer.
type Options struct {
	MaxIterations int
	InlineSize    int
	DupTableSize  int
}

// DefaultOptions returns the limits used when no configuration is given.
func DefaultOptions() Options {
	return Options{MaxIterations: 20, InlineSize: 8, DupTableSize: 1024}
}

// Program runs the passes in turn until none of them changes anything or
// the iteration limit is reached. It returns the number of rounds run.
func Program(ctx *mil.Context, prog *mil.Program, opts Options) int {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.DupTableSize <= 0 {
		opts.DupTableSize = DefaultOptions().DupTableSize
	}
	round := 0
	for round < opts.MaxIterations {
		round++
		changed := Simplify(ctx, prog)
		if opts.InlineSize > 0 && Inline(ctx, prog, opts.InlineSize) {
			changed = true
		}
		if RemoveUnusedArgs(ctx, prog) {
			changed = true
		}
		if EliminateDuplicates(ctx, prog, opts.DupTableSize) {
			changed = true
		}
		if !changed {
			break
		}
	}
	ctx.Log.Debug("optimized program", "pass", "optimize", "rounds", round, "defns", len(prog.Reachable()))
	return round
}
