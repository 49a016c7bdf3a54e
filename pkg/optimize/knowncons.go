package optimize

import (
	"fmt"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// DeriveWithKnownCons returns a closure equivalent to the closure id when
// the stored arguments marked in shape are known constructor applications.
// The derived closure stores the fields of those constructors in their
// place and rebuilds them before running the original tail. Results are
// memoized on the original closure by shape.
func DeriveWithKnownCons(ctx *mil.Context, prog *mil.Program, id mil.DefnID, shape []*types.Cfun, allocs []*mil.DataAlloc) mil.DefnID {
	k := prog.Closure(id)
	for _, d := range k.Derived {
		if sameShape(d.Shape, shape) {
			return d.Closure
		}
	}
	if len(shape) != len(k.Params) {
		diag.Internal("shape of %d arguments for closure %s with %d stored parameters", len(shape), k.Name, len(k.Params))
	}

	// parameters of the derived closure and of its body block
	var stored, bstored []*mil.Temp
	var storedTypes []types.Type
	for i, p := range k.Params {
		if shape[i] == nil {
			stored = append(stored, mil.NewTemp(p.Type))
			bstored = append(bstored, mil.NewTemp(p.Type))
			storedTypes = append(storedTypes, p.Type)
			continue
		}
		fts := allocs[i].Inst.Stored
		stored = append(stored, mil.NewTemps(fts)...)
		bstored = append(bstored, mil.NewTemps(fts)...)
		storedTypes = append(storedTypes, fts...)
	}
	args := mil.NewTemps(mil.TempTypes(k.Args))
	bargs := mil.NewTemps(mil.TempTypes(k.Args))

	// rebuild the known values, then continue with the original tail
	c := mil.NewCopier()
	var binds []*mil.Bind
	j := 0
	for i, p := range k.Params {
		if shape[i] == nil {
			c.Bind(p, bstored[j])
			j++
			continue
		}
		n := len(allocs[i].Args)
		v := mil.NewTemp(p.Type)
		binds = append(binds, &mil.Bind{
			Vars: []*mil.Temp{v},
			Tail: &mil.DataAlloc{Cfun: shape[i], Args: mil.TempAtoms(bstored[j : j+n]), Inst: allocs[i].Inst},
		})
		c.Bind(p, v)
		j += n
	}
	c.BindAll(k.Args, mil.TempAtoms(bargs))
	var body mil.Code = &mil.Done{Tail: c.Tail(k.Tail)}
	for i := len(binds) - 1; i >= 0; i-- {
		binds[i].Next = body
		body = binds[i]
	}

	_, rng, ok := types.IsFun(k.Declared.Result)
	if !ok {
		diag.Internal("closure %s does not have a function type", k.Name)
	}
	bparams := append(append([]*mil.Temp(nil), bstored...), bargs...)
	n := len(k.Derived)
	b := mil.NewBlock(fmt.Sprintf("%s_k%db", k.Name, n), k.Pos, bparams, body)
	b.Declared = &types.BlockType{Dom: types.Tuple(mil.TempTypes(bparams)...), Rng: rng}
	b.Defining = b.Declared
	bid := prog.Add(b)

	callArgs := append(mil.TempAtoms(stored), mil.TempAtoms(args)...)
	dk := mil.NewClosureDefn(fmt.Sprintf("%s_k%d", k.Name, n), k.Pos, stored, args, &mil.BlockCall{Block: bid, Args: callArgs, Inst: b.Declared})
	dk.Declared = &types.AllocType{Stored: storedTypes, Result: k.Declared.Result}
	dk.Defining = dk.Declared
	did := prog.Add(dk)

	k.Derived = append(k.Derived, mil.Derived{Shape: shape, Closure: did})
	ctx.Log.Debug("derived closure for known constructors", "defn", k.Name, "derived", dk.Name)
	return did
}

func sameShape(a, b []*types.Cfun) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
