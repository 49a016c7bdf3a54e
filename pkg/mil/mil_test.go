package mil

import (
	"bytes"
	"testing"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/types"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wordToWord = types.NewBlockType(types.Words(1), types.Words(1))

// entryProgram builds main[n] = if n == 0 then finish[n] else finish[0].
func entryProgram(t *testing.T, ctx *Context) (*Program, DefnID, DefnID) {
	t.Helper()
	prog := NewProgram(nil)

	r := NewTemp(nil)
	finish := NewBlock("finish", diag.Builtin, []*Temp{r}, &Done{Tail: &Return{Args: []Atom{r}}})
	finish.Declared = wordToWord
	fid, err := prog.Define(finish)
	require.NoError(t, err)

	n, z := NewTemp(nil), NewTemp(nil)
	body := &Bind{
		Vars: []*Temp{z},
		Tail: &PrimCall{Prim: ctx.Prims.MustLookup("primEq"), Args: []Atom{n, Word{Val: 0}}},
		Next: &If{
			Cond:    z,
			IfTrue:  &BlockCall{Block: fid, Args: []Atom{n}},
			IfFalse: &BlockCall{Block: fid, Args: []Atom{Word{Val: 0}}},
		},
	}
	main := NewBlock("main", diag.Builtin, []*Temp{n}, body)
	main.Declared = wordToWord
	mid, err := prog.Define(main)
	require.NoError(t, err)
	prog.AddEntry(mid)
	return prog, fid, mid
}

func TestPrinterEntry(t *testing.T) {
	ctx := NewContext(nil, 64)
	prog, _, _ := entryProgram(t, ctx)

	var buf bytes.Buffer
	NewPrinter(&buf, prog).PrintProgram()
	goldie.New(t).Assert(t, "printer_entry", buf.Bytes())
}

func TestPrinterAllDefinitions(t *testing.T) {
	ctx := NewContext(nil, 64)
	prog := NewProgram(nil)

	list := types.NewDataType("List")
	nilCf := list.AddCfun("Nil")
	cons := list.AddCfun("Cons", types.WordType, types.Con(list))
	require.NoError(t, prog.Tycons.AddTycon(list))

	ext := NewExternal("ext", diag.Builtin, types.Mono(types.WordType), "", nil)
	_, err := prog.Define(ext)
	require.NoError(t, err)

	a, b := NewTemp(nil), NewTemp(nil)
	k := NewClosureDefn("k", diag.Builtin, []*Temp{a}, []*Temp{b},
		&PrimCall{Prim: ctx.Prims.MustLookup("add"), Args: []Atom{a, b}})
	k.Declared = &types.AllocType{Stored: types.Words(1), Result: types.Fun(types.Tuple(types.WordType), types.Tuple(types.WordType))}
	kid, err := prog.Define(k)
	require.NoError(t, err)

	top := NewTopLevel(diag.Builtin, []TopLhs{{Name: "f"}}, &ClosAlloc{Closure: kid, Args: []Atom{Word{Val: 1}}})
	fid, err := prog.Define(top)
	require.NoError(t, err)

	gid := DefnID(4)
	xs := NewTemp(nil)
	_, err = prog.Define(NewBlock("len", diag.Builtin, []*Temp{xs}, &Case{
		Scrut:   xs,
		Alts:    []Alt{{Cfun: nilCf, Call: &BlockCall{Block: gid}}},
		Default: &BlockCall{Block: gid, Args: []Atom{xs}},
	}))
	require.NoError(t, err)

	x, y, z, u, v := NewTemp(nil), NewTemp(nil), NewTemp(nil), NewTemp(nil), NewTemp(nil)
	g := NewBlock("g", diag.Builtin, []*Temp{x}, &Bind{
		Vars: []*Temp{y},
		Tail: &Sel{Cfun: cons, Field: 0, Arg: x},
		Next: &Bind{
			Vars: []*Temp{z},
			Tail: &Enter{Fun: &TopRef{Defn: fid}, Args: []Atom{y}},
			Next: &Bind{
				Vars: []*Temp{u, v},
				Tail: &Return{Args: []Atom{z, z}},
				Next: &Done{Tail: &DataAlloc{Cfun: cons, Args: []Atom{u, v}}},
			},
		},
	})
	id, err := prog.Define(g)
	require.NoError(t, err)
	require.Equal(t, gid, id)

	var buf bytes.Buffer
	NewPrinter(&buf, prog).PrintProgram()
	goldie.New(t).Assert(t, "printer_all", buf.Bytes())
}

func TestDefineDuplicate(t *testing.T) {
	prog := NewProgram(nil)
	_, err := prog.Define(NewBlock("b", diag.Builtin, nil, &Done{Tail: &Return{}}))
	require.NoError(t, err)

	_, err = prog.Define(NewTopLevel(diag.Builtin, []TopLhs{{Name: "a"}, {Name: "b"}}, &Return{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple definitions for b")

	_, ok := prog.Lookup("a")
	assert.False(t, ok, "a failed definition registers no names")
}

func TestReachableAndSCCs(t *testing.T) {
	prog := NewProgram(nil)
	call := func(id DefnID) Code { return &Done{Tail: &BlockCall{Block: id}} }

	// 0 <-> 1, 2 -> 0, 3 unreachable
	a := prog.Add(NewBlock("a", diag.Builtin, nil, call(1)))
	b := prog.Add(NewBlock("b", diag.Builtin, nil, call(0)))
	c := prog.Add(NewBlock("c", diag.Builtin, nil, call(0)))
	d := prog.Add(NewBlock("d", diag.Builtin, nil, &Done{Tail: &Return{}}))
	prog.AddEntry(c)
	prog.AddEntry(c)

	assert.Equal(t, []DefnID{c}, prog.Entries)
	assert.Equal(t, []DefnID{a, b, c}, prog.Reachable())

	sccs := prog.SCCs(prog.All())
	require.Len(t, sccs, 3)
	assert.Equal(t, []DefnID{a, b}, sccs[0])
	assert.Equal(t, []DefnID{c}, sccs[1])
	assert.Equal(t, []DefnID{d}, sccs[2])
	assert.True(t, prog.IsRecursive(sccs[0]))
	assert.False(t, prog.IsRecursive(sccs[1]))
}

func TestResolveReplacements(t *testing.T) {
	prog := NewProgram(nil)
	ids := make([]DefnID, 3)
	for i := range ids {
		ids[i] = prog.Add(NewBlock("b", diag.Builtin, nil, &Done{Tail: &Return{}}))
	}
	prog.Defn(ids[0]).Head().ReplaceWith = ids[1]
	prog.Defn(ids[1]).Head().ReplaceWith = ids[2]
	assert.Equal(t, ids[2], prog.Resolve(ids[0]))
	assert.Equal(t, ids[2], prog.Resolve(ids[2]))
}

func TestDefnOutOfRange(t *testing.T) {
	err := func() (err error) {
		defer diag.Recover(&err)
		NewProgram(nil).Defn(3)
		return nil
	}()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definition handle 3 out of range")
}

func TestPrimFold(t *testing.T) {
	prims := NewPrimTable()
	tests := []struct {
		name string
		ws   int
		args []Atom
		want Atom
	}{
		{"add", 64, []Atom{Word{Val: 2}, Word{Val: 3}}, Word{Val: 5}},
		{"add", 32, []Atom{Word{Val: 2147483647}, Word{Val: 1}}, Word{Val: -2147483648}},
		{"shl", 32, []Atom{Word{Val: 1}, Word{Val: 33}}, Word{Val: 2}},
		{"lshr", 32, []Atom{Word{Val: -1}, Word{Val: 28}}, Word{Val: 15}},
		{"ashr", 64, []Atom{Word{Val: -16}, Word{Val: 2}}, Word{Val: -4}},
		{"primUlt", 64, []Atom{Word{Val: 1}, Word{Val: -1}}, Flag{Val: true}},
		{"primSlt", 64, []Atom{Word{Val: 1}, Word{Val: -1}}, Flag{Val: false}},
		{"nzdiv", 64, []Atom{Word{Val: 7}, Word{Val: 2}}, Word{Val: 3}},
		{"bxor", 64, []Atom{Flag{Val: true}, Flag{Val: true}}, Flag{Val: false}},
		{"flagToWord", 64, []Atom{Flag{Val: true}}, Word{Val: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := prims.MustLookup(tt.name).Fold(tt.ws, tt.args)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrimFoldDeclines(t *testing.T) {
	prims := NewPrimTable()
	tests := []struct {
		name string
		args []Atom
	}{
		{"div", []Atom{Word{Val: 4}, Word{Val: 2}}},
		{"nzdiv", []Atom{Word{Val: 4}, Word{Val: 0}}},
		{"add", []Atom{Word{Val: 4}, NewTemp(nil)}},
		{"printWord", []Atom{Word{Val: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := prims.MustLookup(tt.name).Fold(64, tt.args)
			assert.False(t, ok)
		})
	}
}

func TestPrimTable(t *testing.T) {
	prims := NewPrimTable()
	eq := prims.MustLookup("primEq")

	dual, ok := prims.Dual(eq)
	require.True(t, ok)
	assert.Equal(t, "primNeq", dual.Name)
	_, ok = prims.Dual(prims.MustLookup("add"))
	assert.False(t, ok)

	n := prims.Len()
	clone := prims.Clone(eq, types.NewBlockType(types.Words(2), []types.Type{types.FlagType}))
	assert.Equal(t, n+1, prims.Len())
	assert.Same(t, eq, clone.Root())
	assert.Equal(t, OpEq, clone.Op)

	assert.Error(t, prims.Add(&Prim{Name: "add"}))
	assert.True(t, prims.MustLookup("halt").DoesntReturn())
	assert.False(t, prims.MustLookup("printWord").HasNoEffect())
	assert.True(t, prims.MustLookup("add").IsRepeatable())
}

func TestParsePurity(t *testing.T) {
	for p := Pure; p <= DoesntReturn; p++ {
		got, err := ParsePurity(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePurity("sometimes")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(-1), Normalize(32, 0xffffffff))
	assert.Equal(t, int64(0xffffffff), Normalize(64, 0xffffffff))
	assert.Equal(t, uint64(0xffffffff), Unsigned(32, -1))
	assert.Equal(t, 4, NewContext(nil, 32).WordBytes())
}

func TestCopierAndAlpha(t *testing.T) {
	ctx := NewContext(nil, 64)
	prog, _, mid := entryProgram(t, ctx)
	main := prog.Block(mid)

	c := NewCopier()
	params := c.Fresh(main.Params)
	body := c.Code(main.Body)

	alpha := NewAlpha(main.Params, params)
	require.NotNil(t, alpha)
	assert.True(t, alpha.Code(main.Body, body))
	assert.NotSame(t, main.Body.(*Bind).Vars[0], body.(*Bind).Vars[0])

	s1, s2 := NewSummary(), NewSummary()
	s1.Code(main.Body)
	s2.Code(body)
	assert.Equal(t, s1.Sum(), s2.Sum())
	assert.Equal(t, 2, CodeSize(body))

	// an unrenamed parameter breaks the bijection
	assert.False(t, NewAlpha(main.Params, params).Code(main.Body, NewCopier().Code(main.Body)))
	assert.Nil(t, NewAlpha(main.Params, nil))
}

func TestEffects(t *testing.T) {
	prims := NewPrimTable()
	assert.True(t, HasNoEffect(&Return{}))
	assert.False(t, HasNoEffect(&BlockCall{}))
	assert.False(t, IsRepeatable(&DataAlloc{}))
	assert.True(t, TailDoesntReturn(&PrimCall{Prim: prims.MustLookup("halt")}))
	assert.Len(t, TailArgs(&Enter{Fun: Word{Val: 1}, Args: []Atom{Word{Val: 2}}}), 2)
}
