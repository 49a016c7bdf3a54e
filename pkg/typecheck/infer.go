package typecheck

import (
	"fmt"

	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// inferTail returns the (tuple) type of the results of t and records the
// instantiated type at call sites.
func (c *Checker) inferTail(t mil.Tail) (types.Type, error) {
	switch x := t.(type) {
	case *mil.Return:
		ts, err := c.atomTypes(x.Args)
		if err != nil {
			return nil, err
		}
		return types.Tuple(ts...), nil

	case *mil.BlockCall:
		bt, err := c.blockType(x.Block)
		if err != nil {
			return nil, err
		}
		if err := c.unifyArgs(bt.Dom, x.Args); err != nil {
			return nil, fmt.Errorf("call to %s: %w", c.prog.Defn(x.Block).Head().Name, err)
		}
		x.Inst = bt
		return bt.Rng, nil

	case *mil.PrimCall:
		bt := x.Prim.Type.Instantiate()
		if err := c.unifyArgs(bt.Dom, x.Args); err != nil {
			return nil, fmt.Errorf("call to primitive %s: %w", x.Prim.Name, err)
		}
		x.Inst = bt
		return bt.Rng, nil

	case *mil.ClosAlloc:
		at, err := c.allocType(x.Closure)
		if err != nil {
			return nil, err
		}
		if err := c.unifyStored(at.Stored, x.Args); err != nil {
			return nil, fmt.Errorf("allocation of %s: %w", c.prog.Defn(x.Closure).Head().Name, err)
		}
		x.Inst = at
		return types.Tuple(at.Result), nil

	case *mil.DataAlloc:
		at := x.Cfun.Type.Instantiate()
		if err := c.unifyStored(at.Stored, x.Args); err != nil {
			return nil, fmt.Errorf("constructor %s: %w", x.Cfun.Name, err)
		}
		x.Inst = at
		return types.Tuple(at.Result), nil

	case *mil.Enter:
		ft, err := c.atomType(x.Fun)
		if err != nil {
			return nil, err
		}
		args, err := c.atomTypes(x.Args)
		if err != nil {
			return nil, err
		}
		rng := types.NewTVar(types.KTuple)
		if err := types.Unify(ft, types.Fun(types.Tuple(args...), rng)); err != nil {
			return nil, fmt.Errorf("enter: %w", err)
		}
		return rng, nil

	case *mil.Sel:
		if x.Field < 0 || x.Field >= x.Cfun.Arity() {
			return nil, fmt.Errorf("constructor %s has no field %d", x.Cfun.Name, x.Field)
		}
		at := x.Cfun.Type.Instantiate()
		t, err := c.atomType(x.Arg)
		if err != nil {
			return nil, err
		}
		if err := types.Unify(at.Result, t); err != nil {
			return nil, fmt.Errorf("selector %s %d: %w", x.Cfun.Name, x.Field, err)
		}
		x.Inst = at
		return types.Tuple(at.Stored[x.Field]), nil
	}
	return nil, fmt.Errorf("unknown tail %T", t)
}

func (c *Checker) unifyArgs(dom types.Type, args []mil.Atom) error {
	ts, err := c.atomTypes(args)
	if err != nil {
		return err
	}
	return types.Unify(dom, types.Tuple(ts...))
}

func (c *Checker) unifyStored(stored []types.Type, args []mil.Atom) error {
	ts, err := c.atomTypes(args)
	if err != nil {
		return err
	}
	return types.UnifyAll(stored, ts)
}

// inferCode returns the result type of a body.
func (c *Checker) inferCode(code mil.Code) (types.Type, error) {
	for {
		switch x := code.(type) {
		case *mil.Bind:
			t, err := c.inferTail(x.Tail)
			if err != nil {
				return nil, err
			}
			vs := make([]types.Type, len(x.Vars))
			for i, v := range x.Vars {
				if v.Type == nil {
					v.Type = types.NewTVar(types.KStar)
				}
				vs[i] = v.Type
			}
			if err := types.Unify(types.Tuple(vs...), t); err != nil {
				return nil, err
			}
			code = x.Next
			continue

		case *mil.Done:
			return c.inferTail(x.Tail)

		case *mil.If:
			ct, err := c.atomType(x.Cond)
			if err != nil {
				return nil, err
			}
			if err := types.Unify(types.FlagType, ct); err != nil {
				return nil, fmt.Errorf("if condition: %w", err)
			}
			t, err := c.inferTail(x.IfTrue)
			if err != nil {
				return nil, err
			}
			f, err := c.inferTail(x.IfFalse)
			if err != nil {
				return nil, err
			}
			if err := types.Unify(t, f); err != nil {
				return nil, fmt.Errorf("if branches: %w", err)
			}
			return t, nil

		case *mil.Case:
			st, err := c.atomType(x.Scrut)
			if err != nil {
				return nil, err
			}
			rng := types.NewTVar(types.KTuple)
			for _, a := range x.Alts {
				at := a.Cfun.Type.Instantiate()
				if err := types.Unify(at.Result, st); err != nil {
					return nil, fmt.Errorf("case alternative %s: %w", a.Cfun.Name, err)
				}
				t, err := c.inferTail(a.Call)
				if err != nil {
					return nil, err
				}
				if err := types.Unify(rng, t); err != nil {
					return nil, fmt.Errorf("case alternative %s: %w", a.Cfun.Name, err)
				}
			}
			if x.Default != nil {
				t, err := c.inferTail(x.Default)
				if err != nil {
					return nil, err
				}
				if err := types.Unify(rng, t); err != nil {
					return nil, fmt.Errorf("case default: %w", err)
				}
			}
			return rng, nil
		}
		return nil, fmt.Errorf("unknown code %T", code)
	}
}
