// Package typecheck infers and generalizes the types of MIL definitions.
//
// Definitions are checked one strongly connected component at a time, in
// dependency order: every member first receives an initial type, then every
// body is checked, then the whole component is generalized. Members of the
// same component see each other at their working (monomorphic) type unless
// a declared type is available.
package typecheck

import (
	"errors"
	"fmt"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// Checker holds the state of one type checking run.
type Checker struct {
	ctx  *mil.Context
	prog *mil.Program
}

// New creates a checker for prog.
func New(ctx *mil.Context, prog *mil.Program) *Checker {
	return &Checker{ctx: ctx, prog: prog}
}

// Program type checks every definition of prog. Recoverable failures are
// reported to the context's handler; a failure that cannot be recovered from
// is returned and ends checking.
func Program(ctx *mil.Context, prog *mil.Program) error {
	c := New(ctx, prog)
	sccs := prog.SCCs(prog.All())
	ctx.Log.Debug("type checking", "defns", len(prog.Defns), "sccs", len(sccs))
	for _, scc := range sccs {
		if err := c.checkSCC(scc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkSCC(scc []mil.DefnID) error {
	for _, id := range scc {
		if err := c.SetInitialType(c.prog.Defn(id)); err != nil {
			return err
		}
	}
	for _, id := range scc {
		d := c.prog.Defn(id)
		if err := c.CheckBody(d); err != nil {
			if !mil.AllTypesDeclared(d) {
				return err
			}
			c.ctx.Handler.Report(err)
			markFailed(d)
			c.ctx.Log.Debug("definition failed to type check", "defn", d.Head().Name)
		}
	}
	for _, id := range scc {
		if err := c.GeneralizeType(c.prog.Defn(id)); err != nil {
			return err
		}
	}
	return nil
}

func markFailed(d mil.Defn) {
	switch x := d.(type) {
	case *mil.Block:
		x.Failed, x.Defining = true, nil
	case *mil.ClosureDefn:
		x.Failed, x.Defining = true, nil
	case *mil.TopLevel:
		x.Failed = true
		for i := range x.Lhs {
			x.Lhs[i].Defining = nil
		}
	}
}

func (c *Checker) fail(d mil.Defn, err error) *diag.Failure {
	var f *diag.Failure
	if errors.As(err, &f) {
		return f
	}
	h := d.Head()
	return diag.Errorf(h.Pos, diag.TypeError, "in %s: %v", h.Name, err)
}

// SetInitialType gives d a working type: an instance of its declared type
// if it has one, otherwise fresh type variables. Parameter temporaries are
// typed from it.
func (c *Checker) SetInitialType(d mil.Defn) error {
	switch x := d.(type) {
	case *mil.Block:
		if x.Declared != nil {
			x.Defining = x.Declared.Instantiate()
		} else {
			dom := make([]types.Type, len(x.Params))
			for i := range dom {
				dom[i] = types.NewTVar(types.KStar)
			}
			x.Defining = &types.BlockType{Dom: types.Tuple(dom...), Rng: types.NewTVar(types.KTuple)}
		}
		dom, ok := types.TupleElems(x.Defining.Dom)
		if !ok || len(dom) != len(x.Params) {
			return diag.Errorf(x.Pos, diag.TypeError, "declared type %s of %s does not match its %d parameter(s)", x.Declared, x.Name, len(x.Params))
		}
		for i, p := range x.Params {
			p.Type = dom[i]
		}
	case *mil.ClosureDefn:
		if x.Declared != nil {
			x.Defining = x.Declared.Instantiate()
		} else {
			stored := make([]types.Type, len(x.Params))
			for i := range stored {
				stored[i] = types.NewTVar(types.KStar)
			}
			args := make([]types.Type, len(x.Args))
			for i := range args {
				args[i] = types.NewTVar(types.KStar)
			}
			x.Defining = &types.AllocType{Stored: stored, Result: types.Fun(types.Tuple(args...), types.NewTVar(types.KTuple))}
		}
		dom, _, ok := types.IsFun(x.Defining.Result)
		var args []types.Type
		if ok {
			args, ok = types.TupleElems(dom)
		}
		if !ok || len(args) != len(x.Args) || len(x.Defining.Stored) != len(x.Params) {
			return diag.Errorf(x.Pos, diag.TypeError, "declared type %s of %s does not match its parameters", x.Declared, x.Name)
		}
		for i, p := range x.Params {
			p.Type = x.Defining.Stored[i]
		}
		for i, a := range x.Args {
			a.Type = args[i]
		}
	case *mil.TopLevel:
		for i := range x.Lhs {
			if x.Lhs[i].Declared != nil {
				x.Lhs[i].Defining = x.Lhs[i].Declared.Instantiate()
			} else {
				x.Lhs[i].Defining = types.NewTVar(types.KStar)
			}
		}
	case *mil.External:
		if x.Declared == nil {
			return diag.Errorf(x.Pos, diag.TypeError, "external %s has no declared type", x.Name)
		}
	}
	return nil
}

// CheckBody infers the type of d's body and unifies it with d's working
// type.
func (c *Checker) CheckBody(d mil.Defn) error {
	switch x := d.(type) {
	case *mil.Block:
		rng, err := c.inferCode(x.Body)
		if err != nil {
			return c.fail(d, err)
		}
		if err := types.Unify(x.Defining.Rng, rng); err != nil {
			return c.fail(d, err)
		}
	case *mil.ClosureDefn:
		t, err := c.inferTail(x.Tail)
		if err != nil {
			return c.fail(d, err)
		}
		_, rng, _ := types.IsFun(x.Defining.Result)
		if err := types.Unify(rng, t); err != nil {
			return c.fail(d, err)
		}
	case *mil.TopLevel:
		t, err := c.inferTail(x.Tail)
		if err != nil {
			return c.fail(d, err)
		}
		lhs := make([]types.Type, len(x.Lhs))
		for i, l := range x.Lhs {
			lhs[i] = l.Defining
		}
		if err := types.Unify(types.Tuple(lhs...), t); err != nil {
			return c.fail(d, err)
		}
	}
	return nil
}

// GeneralizeType quantifies d's working type over its free type variables.
// A declared type more general than the inferred one is returned as a
// failure; ambiguous variables are only reported to the handler.
func (c *Checker) GeneralizeType(d mil.Defn) error {
	switch x := d.(type) {
	case *mil.Block:
		if x.Failed {
			return nil
		}
		gens := x.Defining.TVars(nil)
		inferred := x.Defining.Generalize(gens)
		if x.Declared != nil && !x.Declared.AlphaEquiv(inferred) {
			return diag.Errorf(x.Pos, diag.TypeError, "declared type %s for %s is more general than inferred type %s", x.Declared, x.Name, inferred)
		}
		x.Declared, x.Generics = inferred, gens
		c.reportAmbiguous(x, gens, blockTVars(x))
	case *mil.ClosureDefn:
		if x.Failed {
			return nil
		}
		gens := x.Defining.TVars(nil)
		inferred := x.Defining.Generalize(gens)
		if x.Declared != nil && !x.Declared.AlphaEquiv(inferred) {
			return diag.Errorf(x.Pos, diag.TypeError, "declared type %s for %s is more general than inferred type %s", x.Declared, x.Name, inferred)
		}
		x.Declared, x.Generics = inferred, gens
		acc := paramTVars(append(append([]*mil.Temp(nil), x.Params...), x.Args...), nil)
		c.reportAmbiguous(x, gens, tailTVars(x.Tail, acc))
	case *mil.TopLevel:
		if x.Failed {
			return nil
		}
		var all []*types.TVar
		for i := range x.Lhs {
			l := &x.Lhs[i]
			gens := types.TVars(l.Defining, nil)
			inferred := types.GeneralizeScheme(l.Defining, gens)
			if l.Declared != nil && !l.Declared.AlphaEquiv(inferred) {
				return diag.Errorf(x.Pos, diag.TypeError, "declared type %s for %s is more general than inferred type %s", l.Declared, l.Name, inferred)
			}
			l.Declared, l.Generics = inferred, gens
			for _, g := range gens {
				all = types.TVars(g, all)
			}
		}
		x.Generics = all
		c.reportAmbiguous(x, all, tailTVars(x.Tail, nil))
	}
	return nil
}

// reportAmbiguous reports type variables used in d's body that its type
// does not quantify. Checking carries on after them.
func (c *Checker) reportAmbiguous(d mil.Defn, gens, used []*types.TVar) {
	var amb []string
	for _, v := range used {
		if !containsTVar(gens, v) {
			amb = append(amb, v.String())
		}
	}
	if len(amb) == 0 {
		return
	}
	h := d.Head()
	c.ctx.Handler.Report(diag.Errorf(h.Pos, diag.TypeError, "ambiguous type variable(s) %v in %s", amb, h.Name))
}

func containsTVar(vs []*types.TVar, v *types.TVar) bool {
	for _, w := range vs {
		if w == v {
			return true
		}
	}
	return false
}

func paramTVars(ts []*mil.Temp, acc []*types.TVar) []*types.TVar {
	for _, t := range ts {
		if t.Type != nil {
			acc = types.TVars(t.Type, acc)
		}
	}
	return acc
}

func blockTVars(b *mil.Block) []*types.TVar {
	acc := paramTVars(b.Params, nil)
	mil.WalkCode(b.Body, func(c mil.Code) {
		switch x := c.(type) {
		case *mil.Bind:
			acc = paramTVars(x.Vars, acc)
			acc = tailTVars(x.Tail, acc)
		case *mil.Done:
			acc = tailTVars(x.Tail, acc)
		}
		for _, bc := range mil.Calls(c) {
			acc = tailTVars(bc, acc)
		}
	})
	return acc
}

// tailTVars collects the variables of the instantiated types recorded at a
// call site.
func tailTVars(t mil.Tail, acc []*types.TVar) []*types.TVar {
	switch x := t.(type) {
	case *mil.BlockCall:
		if x.Inst != nil {
			acc = x.Inst.TVars(acc)
		}
	case *mil.PrimCall:
		if x.Inst != nil {
			acc = x.Inst.TVars(acc)
		}
	case *mil.ClosAlloc:
		if x.Inst != nil {
			acc = x.Inst.TVars(acc)
		}
	case *mil.DataAlloc:
		if x.Inst != nil {
			acc = x.Inst.TVars(acc)
		}
	}
	for _, a := range mil.TailArgs(t) {
		if r, ok := a.(*mil.TopRef); ok && r.Inst != nil {
			acc = types.TVars(r.Inst, acc)
		}
	}
	return acc
}

// --- references ---

func (c *Checker) blockType(id mil.DefnID) (*types.BlockType, error) {
	d := c.prog.Defn(id)
	b, ok := d.(*mil.Block)
	if !ok {
		return nil, fmt.Errorf("%s is not a block", d.Head().Name)
	}
	if b.Declared != nil {
		return b.Declared.Instantiate(), nil
	}
	if b.Defining == nil {
		diag.Internal("block %s referenced before it has a type", b.Name)
	}
	return b.Defining, nil
}

func (c *Checker) allocType(id mil.DefnID) (*types.AllocType, error) {
	d := c.prog.Defn(id)
	k, ok := d.(*mil.ClosureDefn)
	if !ok {
		return nil, fmt.Errorf("%s is not a closure definition", d.Head().Name)
	}
	if k.Declared != nil {
		return k.Declared.Instantiate(), nil
	}
	if k.Defining == nil {
		diag.Internal("closure %s referenced before it has a type", k.Name)
	}
	return k.Defining, nil
}

func (c *Checker) topType(r *mil.TopRef) (types.Type, error) {
	switch x := c.prog.Defn(r.Defn).(type) {
	case *mil.TopLevel:
		if r.Index >= len(x.Lhs) {
			return nil, fmt.Errorf("reference to missing binding %d of %s", r.Index, x.Name)
		}
		l := x.Lhs[r.Index]
		if l.Declared != nil {
			return l.Declared.Instantiate(), nil
		}
		if l.Defining == nil {
			diag.Internal("top-level %s referenced before it has a type", l.Name)
		}
		return l.Defining, nil
	case *mil.External:
		return x.Declared.Instantiate(), nil
	default:
		return nil, fmt.Errorf("%s is not a top-level value", x.Head().Name)
	}
}

func (c *Checker) atomType(a mil.Atom) (types.Type, error) {
	switch x := a.(type) {
	case *mil.Temp:
		if x.Type == nil {
			return nil, fmt.Errorf("temporary %s is used before it is bound", x)
		}
		return x.Type, nil
	case mil.Word:
		return types.WordType, nil
	case mil.Flag:
		return types.FlagType, nil
	case *mil.TopRef:
		t, err := c.topType(x)
		if err != nil {
			return nil, err
		}
		x.Inst = t
		return t, nil
	}
	diag.Internal("unknown atom %T", a)
	return nil, nil
}

func (c *Checker) atomTypes(as []mil.Atom) ([]types.Type, error) {
	ts := make([]types.Type, len(as))
	for i, a := range as {
		t, err := c.atomType(a)
		if err != nil {
			return nil, err
		}
		ts[i] = t
	}
	return ts, nil
}
