// Package interp is a reference interpreter for MIL programs, before or
// after representation transformation. It is used to check that the
// pipeline preserves behavior.
package interp

import (
	"fmt"
	"io"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
)

// Machine evaluates definitions of one program.
type Machine struct {
	ctx  *mil.Context
	prog *mil.Program
	out  io.Writer
	mem  *memory

	// Fuel bounds the number of tails evaluated; zero means no bound.
	Fuel  int
	steps int

	tops   map[mil.DefnID][]Value
	active map[mil.DefnID]bool
	pos    diag.Position
}

// New creates a machine whose printWord output goes to out.
func New(ctx *mil.Context, prog *mil.Program, out io.Writer) *Machine {
	if out == nil {
		out = io.Discard
	}
	return &Machine{
		ctx:    ctx,
		prog:   prog,
		out:    out,
		mem:    newMemory(),
		tops:   make(map[mil.DefnID][]Value),
		active: make(map[mil.DefnID]bool),
	}
}

// Steps is the number of tails evaluated so far.
func (m *Machine) Steps() int { return m.steps }

type frame map[*mil.Temp]Value

func bind(env frame, ps []*mil.Temp, vs []Value) frame {
	if env == nil {
		env = make(frame, len(ps))
	}
	for i, p := range ps {
		env[p] = vs[i]
	}
	return env
}

func (m *Machine) fail(format string, args ...any) error {
	return diag.Errorf(m.pos, diag.RuntimeError, format, args...)
}

func (m *Machine) tick() error {
	m.steps++
	if m.Fuel > 0 && m.steps > m.Fuel {
		return m.fail("out of fuel after %d steps", m.Fuel)
	}
	return nil
}

// Run evaluates the definition id. Blocks are called with args; top-level
// definitions are evaluated and their values returned.
func (m *Machine) Run(id mil.DefnID, args []Value) ([]Value, error) {
	id = m.prog.Resolve(id)
	d := m.prog.Defn(id)
	m.pos = d.Head().Pos
	switch x := d.(type) {
	case *mil.Block:
		if len(args) != len(x.Params) {
			return nil, m.fail("%s expects %d arguments, got %d", x.Name, len(x.Params), len(args))
		}
		m.ctx.Log.Debug("running block", "defn", x.Name, "args", FormatValues(args))
		t, env, err := m.code(x.Body, bind(nil, x.Params, args))
		if err != nil {
			return nil, err
		}
		return m.run(t, env)
	case *mil.TopLevel:
		return m.top(id)
	}
	return nil, m.fail("%s cannot be run", d.Head().Name)
}

// run evaluates t. Calls in tail position reuse the loop rather than the Go
// stack, so long-running MIL loops do not grow it.
func (m *Machine) run(t mil.Tail, env frame) ([]Value, error) {
	for {
		if err := m.tick(); err != nil {
			return nil, err
		}
		switch x := t.(type) {
		case *mil.BlockCall:
			vals, err := m.atoms(x.Args, env)
			if err != nil {
				return nil, err
			}
			b := m.prog.Block(m.prog.Resolve(x.Block))
			m.pos = b.Pos
			t, env, err = m.code(b.Body, bind(nil, b.Params, vals))
			if err != nil {
				return nil, err
			}
		case *mil.Enter:
			f, err := m.atom(x.Fun, env)
			if err != nil {
				return nil, err
			}
			if f.Kind != KindClosure {
				return nil, m.fail("entering %s, which is not a closure", f)
			}
			args, err := m.atoms(x.Args, env)
			if err != nil {
				return nil, err
			}
			k := m.prog.Closure(m.prog.Resolve(f.Closure))
			if len(k.Args) != len(args) || len(k.Params) != len(f.Fields) {
				return nil, m.fail("closure %s entered with %d arguments", k.Name, len(args))
			}
			m.pos = k.Pos
			env = bind(bind(nil, k.Params, f.Fields), k.Args, args)
			t = k.Tail
		default:
			return m.eval(t, env)
		}
	}
}

// code runs the bindings of c and returns the tail it ends with.
func (m *Machine) code(c mil.Code, env frame) (mil.Tail, frame, error) {
	for {
		switch x := c.(type) {
		case *mil.Bind:
			vals, err := m.run(x.Tail, env)
			if err != nil {
				return nil, nil, err
			}
			if len(vals) != len(x.Vars) {
				diag.Internal("binding %d variables to %d values", len(x.Vars), len(vals))
			}
			bind(env, x.Vars, vals)
			c = x.Next
		case *mil.Done:
			return x.Tail, env, nil
		case *mil.If:
			v, err := m.atom(x.Cond, env)
			if err != nil {
				return nil, nil, err
			}
			if v.Kind != KindFlag {
				return nil, nil, m.fail("branching on %s, which is not a flag", v)
			}
			if v.Flag {
				return x.IfTrue, env, nil
			}
			return x.IfFalse, env, nil
		case *mil.Case:
			v, err := m.atom(x.Scrut, env)
			if err != nil {
				return nil, nil, err
			}
			if v.Kind != KindData {
				return nil, nil, m.fail("case on %s, which is not a data value", v)
			}
			for _, a := range x.Alts {
				if a.Cfun == v.Cfun || a.Cfun.Tag == v.Cfun.Tag {
					return a.Call, env, nil
				}
			}
			if x.Default == nil {
				return nil, nil, m.fail("no alternative for %s", v.Cfun.Name)
			}
			return x.Default, env, nil
		default:
			diag.Internal("unexpected code %T", c)
		}
	}
}

func (m *Machine) eval(t mil.Tail, env frame) ([]Value, error) {
	switch x := t.(type) {
	case *mil.Return:
		return m.atoms(x.Args, env)
	case *mil.PrimCall:
		vals, err := m.atoms(x.Args, env)
		if err != nil {
			return nil, err
		}
		return m.prim(x.Prim, vals)
	case *mil.ClosAlloc:
		vals, err := m.atoms(x.Args, env)
		if err != nil {
			return nil, err
		}
		return []Value{{Kind: KindClosure, Closure: m.prog.Resolve(x.Closure), Fields: vals}}, nil
	case *mil.DataAlloc:
		vals, err := m.atoms(x.Args, env)
		if err != nil {
			return nil, err
		}
		return []Value{{Kind: KindData, Cfun: x.Cfun, Fields: vals}}, nil
	case *mil.Sel:
		v, err := m.atom(x.Arg, env)
		if err != nil {
			return nil, err
		}
		if v.Kind != KindData || x.Field >= len(v.Fields) {
			return nil, m.fail("cannot select field %d of %s from %s", x.Field, x.Cfun.Name, v)
		}
		return []Value{v.Fields[x.Field]}, nil
	}
	diag.Internal("unexpected tail %T", t)
	return nil, nil
}

func (m *Machine) atom(a mil.Atom, env frame) (Value, error) {
	switch x := a.(type) {
	case *mil.Temp:
		v, ok := env[x]
		if !ok {
			diag.Internal("unbound temporary %s", x)
		}
		return v, nil
	case mil.Word:
		return WordValue(x.Val), nil
	case mil.Flag:
		return FlagValue(x.Val), nil
	case *mil.TopRef:
		return m.topRef(x)
	}
	diag.Internal("unexpected atom %T", a)
	return Value{}, nil
}

func (m *Machine) atoms(as []mil.Atom, env frame) ([]Value, error) {
	vals := make([]Value, len(as))
	for i, a := range as {
		v, err := m.atom(a, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (m *Machine) topRef(r *mil.TopRef) (Value, error) {
	id := m.prog.Resolve(r.Defn)
	if x, ok := m.prog.Defn(id).(*mil.External); ok {
		if x.Impl == mil.NoDefn {
			return Value{}, m.fail("external %s (%s) has no implementation", x.Name, x.Ref)
		}
		id = m.prog.Resolve(x.Impl)
	}
	vals, err := m.top(id)
	if err != nil {
		return Value{}, err
	}
	if r.Index >= len(vals) {
		diag.Internal("reference to value %d of %s, which has %d", r.Index, m.prog.Defn(id).Head().Name, len(vals))
	}
	return vals[r.Index], nil
}

// top evaluates a top-level definition once and caches its values.
func (m *Machine) top(id mil.DefnID) ([]Value, error) {
	if vals, ok := m.tops[id]; ok {
		return vals, nil
	}
	t, ok := m.prog.Defn(id).(*mil.TopLevel)
	if !ok {
		diag.Internal("%s is not a top-level definition", m.prog.Defn(id).Head().Name)
	}
	if m.active[id] {
		return nil, m.fail("top-level %s depends on its own value", t.Name)
	}
	m.active[id] = true
	defer delete(m.active, id)
	saved := m.pos
	m.pos = t.Pos
	vals, err := m.run(t.Tail, make(frame))
	m.pos = saved
	if err != nil {
		return nil, err
	}
	m.tops[id] = vals
	return vals, nil
}

func (m *Machine) prim(p *mil.Prim, args []Value) ([]Value, error) {
	ws := m.ctx.WordSize
	switch p.Op {
	case mil.OpDiv, mil.OpRem, mil.OpNzdiv:
		x, y := mil.Normalize(ws, args[0].Word), mil.Normalize(ws, args[1].Word)
		if y == 0 {
			return nil, m.fail("divide by zero error")
		}
		if p.Op == mil.OpRem {
			return []Value{WordValue(mil.Normalize(ws, x%y))}, nil
		}
		return []Value{WordValue(mil.Normalize(ws, x/y))}, nil
	case mil.OpHalt:
		return nil, m.fail("halt")
	case mil.OpLoop:
		return nil, m.fail("loop")
	case mil.OpPrintWord:
		if _, err := fmt.Fprintln(m.out, mil.Normalize(ws, args[0].Word)); err != nil {
			return nil, err
		}
		return nil, nil
	case mil.OpUser:
		return nil, m.fail("primitive %s has no implementation", p.Name)
	}
	if n, store, ok := mil.MemWidth(p.Op); ok {
		return m.access(n, store, args), nil
	}
	atoms := make([]mil.Atom, len(args))
	for i, v := range args {
		a, ok := v.atom()
		if !ok {
			return nil, m.fail("%s applied to %s", p.Name, v)
		}
		atoms[i] = a
	}
	r, ok := p.Fold(ws, atoms)
	if !ok {
		return nil, m.fail("cannot evaluate %s", p.Name)
	}
	return []Value{fromAtom(r)}, nil
}

// access performs a load or store of n bytes. Values wider than a word
// are passed as several words, least significant first.
func (m *Machine) access(n int, store bool, args []Value) []Value {
	addr := args[0].Word
	ws := m.ctx.WordSize
	if store {
		var v uint64
		for i := len(args) - 1; i >= 1; i-- {
			v = v<<uint(ws) | mil.Unsigned(ws, args[i].Word)
		}
		m.mem.store(addr, n, v)
		return nil
	}
	v := m.mem.load(addr, n)
	if n*8 <= ws {
		if n*8 == ws {
			return []Value{WordValue(mil.Normalize(ws, int64(v)))}
		}
		return []Value{WordValue(int64(v))}
	}
	var out []Value
	for bits := 0; bits < n*8; bits += ws {
		out = append(out, WordValue(mil.Normalize(ws, int64(v>>uint(bits)))))
	}
	return out
}
