package specialize

import (
	"bytes"
	"testing"

	"github.com/bgins/mil-tools/pkg/loader"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/typecheck"
	"github.com/bgins/mil-tools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checked(t *testing.T, src string) (*mil.Context, *mil.Program) {
	t.Helper()
	ctx := mil.NewContext(nil, 64)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(src))
	require.NoError(t, err)
	require.NoError(t, typecheck.Program(ctx, prog))
	require.NoError(t, ctx.Handler.Err())
	return ctx, prog
}

func dump(prog *mil.Program) string {
	var buf bytes.Buffer
	mil.NewPrinter(&buf, prog).PrintProgram()
	return buf.String()
}

const polySrc = `
types:
  - name: List
    params: [a]
    cfuns:
      - name: Nil
      - name: Cons
        fields: [a, List a]
tops:
  - names: [empty]
    tail: {data: Nil}
blocks:
  - name: id
    params: [x]
    code:
      - return: [x]
  - name: main
    type: "[Word] >>= [Word]"
    params: [n]
    entry: true
    code:
      - bind: [a]
        call: id
        args: [n]
      - bind: [z]
        prim: primEq
        args: [a, 0]
      - bind: [b]
        call: id
        args: [z]
      - bind: [c]
        call: id
        args: [a]
      - if: b
        then: {call: wrap, args: [c]}
        else: {call: wrap, args: [n]}
  - name: wrap
    params: [w]
    code:
      - bind: [l]
        data: Cons
        args: [w, empty]
      - call: len
        args: [l]
  - name: len
    type: "[List Word] >>= [Word]"
    params: [l]
    code:
      - return: [1]
`

func TestSpecializeClones(t *testing.T) {
	ctx, prog := checked(t, polySrc)
	origID, _ := prog.Lookup("id")
	before := len(prog.Defns)

	require.NoError(t, Program(ctx, prog))

	out := dump(prog)
	for _, want := range []string{
		"id1 :: [Word] >>= [Word]",
		"id2 :: [Flag] >>= [Flag]",
		"t1 <- id1[t0]",
		"t3 <- id2[t2]",
		"t4 <- id1[t1]",
		"empty1 :: List Word",
		"empty1 <- Nil()",
		"wrap :: [Word] >>= [Word]",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "id[")
	assert.NotContains(t, out, "forall")

	// two clones of id and one of empty
	assert.Len(t, prog.Defns, before+3)
	assert.NotContains(t, prog.Reachable(), origID)
}

func TestSpecializeKeepsMonomorphicDefinitions(t *testing.T) {
	ctx, prog := checked(t, polySrc)
	mainID, _ := prog.Lookup("main")
	lenID, _ := prog.Lookup("len")

	require.NoError(t, Program(ctx, prog))

	assert.Equal(t, "main", prog.Defn(mainID).Head().Name)
	assert.Contains(t, prog.Reachable(), lenID)
	main := prog.Block(mainID)
	assert.Empty(t, main.Generics)
	for _, p := range main.Params {
		assert.True(t, types.IsMonomorphic(p.Type))
	}
}

func TestSpecializeCachesInstances(t *testing.T) {
	ctx, prog := checked(t, polySrc)
	s := New(ctx, prog)
	id, _ := prog.Lookup("id")
	inst := types.NewBlockType(types.Words(1), types.Words(1))

	c1 := s.Block(id, inst)
	c2 := s.Block(id, types.NewBlockType(types.Words(1), types.Words(1)))
	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, s.Clones())

	flag := s.Block(id, types.NewBlockType([]types.Type{types.FlagType}, []types.Type{types.FlagType}))
	assert.NotEqual(t, c1, flag)
	assert.Equal(t, "id2", prog.Defn(flag).Head().Name)

	s.Run()
	body, ok := prog.Block(c1).Body.(*mil.Done)
	require.True(t, ok)
	assert.IsType(t, &mil.Return{}, body.Tail)
}

func TestSpecializePrims(t *testing.T) {
	ctx, prog := checked(t, `
blocks:
  - name: main
    type: "[Word] >>= [Word]"
    params: [n]
    entry: true
    code:
      - bind: [z]
        prim: primEq
        args: [n, 0]
      - if: z
        then: {call: stop}
        else: {call: again}
  - name: stop
    type: "[] >>= [Word]"
    code:
      - prim: halt
  - name: again
    type: "[] >>= [Word]"
    code:
      - prim: halt
`)
	halt := ctx.Prims.MustLookup("halt")
	n := ctx.Prims.Len()

	require.NoError(t, Program(ctx, prog))

	assert.Equal(t, n+1, ctx.Prims.Len(), "equivalent instances share one clone")
	id, _ := prog.Lookup("stop")
	pc := prog.Block(id).Body.(*mil.Done).Tail.(*mil.PrimCall)
	assert.NotSame(t, halt, pc.Prim)
	assert.Same(t, halt, pc.Prim.Root())
	assert.Equal(t, "[] >>= [Word]", pc.Prim.Type.String())
}

func TestSpecializeEntrypointErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"polymorphic",
			"blocks:\n  - {name: id, params: [x], entry: true, code: [{return: [x]}]}\n",
			"polymorphic entrypoint id",
		},
		{
			"external",
			"externals:\n  - {name: e, type: Word, entry: true}\n",
			"external e cannot be an entrypoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, prog := checked(t, tt.src)
			n := len(prog.Defns)
			err := Program(ctx, prog)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Len(t, prog.Defns, n, "nothing is cloned")
		})
	}
}
