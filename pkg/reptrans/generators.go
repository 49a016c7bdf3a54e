package reptrans

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// Generator synthesizes the implementation of an external from its type
// arguments. Gen returns the top-level definition holding the external's
// words, or NoDefn if it cannot handle the arguments.
type Generator struct {
	MinArgs int
	Gen     func(t *Transform, x *mil.External, ts []types.Type) (mil.DefnID, error)
}

// Generators maps external reference names to generators.
type Generators map[string]Generator

// DefaultGenerators returns the built-in generator table.
func DefaultGenerators() Generators {
	return Generators{
		"primBitFromLiteral": {MinArgs: 2, Gen: genBitFromLiteral},
		"primBitNot":         {MinArgs: 1, Gen: genBitNot},
		"primBitNegate":      {MinArgs: 1, Gen: genBitNegate},
	}
}

// SetGenerators replaces the generator table.
func (t *Transform) SetGenerators(g Generators) { t.gens = g }

func (t *Transform) generate(x *mil.External) (mil.DefnID, error) {
	g, ok := t.gens[x.Ref]
	if !ok || len(x.Ts) < g.MinArgs {
		return mil.NoDefn, nil
	}
	key := x.Ref + typeArgsKey(x.Ts) + " :: " + types.Key(x.Declared.Type)
	if id, ok := t.impls[key]; ok {
		return id, nil
	}
	id, err := g.Gen(t, x, x.Ts)
	if err != nil {
		return mil.NoDefn, err
	}
	if id != mil.NoDefn {
		t.impls[key] = id
		t.ctx.Log.Debug("generated external", "defn", x.Name, "ref", x.Ref, "impl", t.prog.Defn(id).Head().Name)
	}
	return id, nil
}

func typeArgsKey(ts []types.Type) string {
	var sb strings.Builder
	for _, t := range ts {
		sb.WriteString(" ")
		sb.WriteString(types.Key(t))
	}
	return sb.String()
}

func natValue(t types.Type) (*big.Int, bool) {
	return types.NatValue(types.Resolve(t))
}

func widthArg(t types.Type) (int, bool) {
	n, ok := natValue(t)
	if !ok || !n.IsInt64() || n.Sign() < 0 {
		return 0, false
	}
	return int(n.Int64()), true
}

// genBitFromLiteral produces the words of the literal v at width n. When
// the external is declared as a function the words are returned by a
// closure taking the function's arguments, which it ignores.
func genBitFromLiteral(t *Transform, x *mil.External, ts []types.Type) (mil.DefnID, error) {
	v, ok := natValue(ts[0])
	n, ok2 := widthArg(ts[1])
	if !ok || !ok2 {
		return mil.NoDefn, nil
	}
	if v.BitLen() > n {
		return mil.NoDefn, diag.Errorf(x.Pos, diag.StructuralError, "literal %s does not fit in Bit %d", v, n)
	}
	ws := t.reps.SplitWords(v, n)
	args := make([]mil.Atom, len(ws))
	for i, w := range ws {
		args[i] = mil.Word{Val: w}
	}
	name := fmt.Sprintf("bit%s_%d", v, n)

	if rep := t.reps.Reps(x.Declared.Type); len(rep) == 1 {
		if dom, _, ok := types.IsFun(rep[0]); ok {
			domTs, _ := types.TupleElems(dom)
			fun := types.Fun(dom, types.Tuple(types.Words(len(ws))...))
			k := mil.NewClosureDefn(name+"_k", diag.Builtin, nil, mil.NewTemps(domTs), &mil.Return{Args: args})
			k.Declared = &types.AllocType{Result: fun}
			k.Defining = k.Declared
			kid := t.prog.Add(k)
			lhs := []mil.TopLhs{{Name: name, Declared: types.Mono(fun), Defining: fun}}
			return t.prog.Add(mil.NewTopLevel(diag.Builtin, lhs, &mil.ClosAlloc{Closure: kid, Inst: k.Declared})), nil
		}
	}

	lhs := make([]mil.TopLhs, len(ws))
	for i := range ws {
		lhs[i] = mil.TopLhs{Name: fmt.Sprintf("%s_%d", name, i), Declared: types.Mono(types.WordType), Defining: types.WordType}
	}
	return t.prog.Add(mil.NewTopLevel(diag.Builtin, lhs, &mil.Return{Args: args})), nil
}

// checkImpl makes sure the top-level definition impl holds exactly the
// words that references to x expect.
func (t *Transform) checkImpl(x *mil.External, impl mil.DefnID, want []types.Type) error {
	top, ok := t.prog.Defn(impl).(*mil.TopLevel)
	ok = ok && len(top.Lhs) == len(want)
	for i := 0; ok && i < len(want); i++ {
		ok = types.AlphaEquiv(top.Lhs[i].Defining, want[i])
	}
	if !ok {
		return diag.Errorf(x.Pos, diag.StructuralError, "implementation generated by %s does not match the type %s of %s", x.Ref, x.Declared, x.Name)
	}
	return nil
}

// genBitNot produces a closure computing the complement of a width-n
// value, masking the unused bits of the high word.
func genBitNot(t *Transform, _ *mil.External, ts []types.Type) (mil.DefnID, error) {
	n, ok := widthArg(ts[0])
	if !ok {
		return mil.NoDefn, nil
	}
	not := t.ctx.Prims.Builtin(mil.OpNot)
	return t.bitFunction(fmt.Sprintf("primBitNot%d", n), n, func(cb *codeBuilder, xs []*mil.Temp) []mil.Atom {
		out := make([]mil.Atom, len(xs))
		for i, x := range xs {
			out[i] = cb.prim(not, x)
		}
		return out
	}), nil
}

// genBitNegate produces a closure computing the 2's complement negation of
// a width-n value: each word is complemented and the carry from the words
// below is added. The carry into word i is set exactly when every lower
// word is zero.
func genBitNegate(t *Transform, _ *mil.External, ts []types.Type) (mil.DefnID, error) {
	n, ok := widthArg(ts[0])
	if !ok {
		return mil.NoDefn, nil
	}
	prims := t.ctx.Prims
	not, neg, add := prims.Builtin(mil.OpNot), prims.Builtin(mil.OpNeg), prims.Builtin(mil.OpAdd)
	eq, band, toWord := prims.Builtin(mil.OpEq), prims.Builtin(mil.OpBand), prims.Builtin(mil.OpFlagToWord)
	return t.bitFunction(fmt.Sprintf("primBitNegate%d", n), n, func(cb *codeBuilder, xs []*mil.Temp) []mil.Atom {
		out := make([]mil.Atom, len(xs))
		var carry mil.Atom
		for i, x := range xs {
			if i == 0 {
				out[i] = cb.prim(neg, x)
			} else {
				c := cb.prim(toWord, carry)
				out[i] = cb.prim(add, cb.prim(not, x), c)
			}
			if i+1 < len(xs) {
				z := cb.prim(eq, x, mil.Word{Val: 0})
				if carry == nil {
					carry = z
				} else {
					carry = cb.prim(band, carry, z)
				}
			}
		}
		return out
	}), nil
}

// bitFunction wraps a word-level computation on a width-n value as
//
//	name_impl <- k{}
//	k{} [x0, ...] = b[x0, ...]
//	b[x0, ...] = ...; return [r0, ...]
//
// and masks the high word of the result.
func (t *Transform) bitFunction(name string, n int, body func(*codeBuilder, []*mil.Temp) []mil.Atom) mil.DefnID {
	words := types.Words(t.reps.WordsFor(n))
	params := mil.NewTemps(words)
	var cb codeBuilder
	out := body(&cb, params)
	if mask, ok := t.reps.HighMask(n); ok && len(out) > 0 {
		and := t.ctx.Prims.Builtin(mil.OpAnd)
		out[len(out)-1] = cb.prim(and, out[len(out)-1], mil.Word{Val: mask})
	}
	b := mil.NewBlock(name+"_b", diag.Builtin, params, cb.done(&mil.Return{Args: out}))
	b.Declared = types.NewBlockType(words, words)
	b.Defining = b.Declared
	bid := t.prog.Add(b)

	fun := types.Fun(types.Tuple(words...), types.Tuple(words...))
	args := mil.NewTemps(words)
	k := mil.NewClosureDefn(name+"_k", diag.Builtin, nil, args, &mil.BlockCall{Block: bid, Args: mil.TempAtoms(args), Inst: b.Declared})
	k.Declared = &types.AllocType{Result: fun}
	k.Defining = k.Declared
	kid := t.prog.Add(k)

	lhs := []mil.TopLhs{{Name: name, Declared: types.Mono(fun), Defining: fun}}
	return t.prog.Add(mil.NewTopLevel(diag.Builtin, lhs, &mil.ClosAlloc{Closure: kid, Inst: k.Declared}))
}
