package reptrans

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/bgins/mil-tools/pkg/interp"
	"github.com/bgins/mil-tools/pkg/loader"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/specialize"
	"github.com/bgins/mil-tools/pkg/typecheck"
	"github.com/bgins/mil-tools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bit(n int64) types.Type {
	return types.Ap(types.Con(types.BitTycon), types.Nat(n))
}

func typeStrings(ts []types.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func TestReps(t *testing.T) {
	ix := types.Ap(types.Con(types.IxTycon), types.Nat(10))
	tests := []struct {
		name     string
		wordSize int
		typ      types.Type
		want     []string
	}{
		{"narrow bits", 64, bit(8), []string{"Word"}},
		{"full word", 64, bit(64), []string{"Word"}},
		{"two words", 64, bit(65), []string{"Word", "Word"}},
		{"two words at 32", 32, bit(64), []string{"Word", "Word"}},
		{"empty bits", 64, bit(0), []string{}},
		{"index", 64, ix, []string{"Word"}},
		{"address", 32, types.Con(types.AddrTycon), []string{"Word"}},
		{"flag", 64, types.FlagType, []string{"Flag"}},
		{"unit", 64, types.Con(types.UnitTycon), []string{}},
		{"tuple", 32, types.Tuple(bit(40), types.Con(types.UnitTycon), types.WordType), []string{"Word", "Word", "Word"}},
		{"function", 64, types.Fun(types.Tuple(bit(128)), types.Tuple(ix)), []string{"[Word, Word] ->> [Word]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRepTypeSet(tt.wordSize).Reps(tt.typ)
			assert.Equal(t, tt.want, typeStrings(got))
		})
	}
}

func TestSplitWords(t *testing.T) {
	s64, s32 := NewRepTypeSet(64), NewRepTypeSet(32)

	v := new(big.Int).Lsh(big.NewInt(1), 64)
	v.Add(v, big.NewInt(3))
	assert.Equal(t, []int64{3, 1}, s64.SplitWords(v, 65))
	assert.Equal(t, []int64{-1}, s32.SplitWords(big.NewInt(0xFFFFFFFF), 32))
	assert.Equal(t, []int64{1, 2}, s32.SplitWords(big.NewInt(8589934593), 40))
	assert.Equal(t, []int64{0, 0}, s32.SplitWords(big.NewInt(0), 33))

	mask, ok := s64.HighMask(65)
	assert.True(t, ok)
	assert.Equal(t, int64(1), mask)
	_, ok = s64.HighMask(64)
	assert.False(t, ok)
	mask, ok = s32.HighMask(40)
	assert.True(t, ok)
	assert.Equal(t, int64(0xff), mask)
}

func TestBlockAndAllocTypes(t *testing.T) {
	s := NewRepTypeSet(32)
	bt := s.BlockType(types.NewBlockType([]types.Type{bit(64), types.Con(types.UnitTycon)}, []types.Type{types.FlagType}))
	assert.Equal(t, "[Word, Word] >>= [Flag]", bt.String())

	at := s.AllocType(&types.AllocType{Stored: []types.Type{bit(48)}, Result: types.Fun(types.Tuple(), types.Tuple(bit(8)))})
	assert.Equal(t, "{Word, Word} [] ->> [Word]", at.String())
}

// pipeline loads src and runs it through the representation transform.
func pipeline(t *testing.T, wordSize int, src string) (*mil.Context, *mil.Program) {
	t.Helper()
	ctx := mil.NewContext(nil, wordSize)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(src))
	require.NoError(t, err)
	require.NoError(t, typecheck.Program(ctx, prog))
	require.NoError(t, ctx.Handler.Err())
	require.NoError(t, specialize.Program(ctx, prog))
	require.NoError(t, Program(ctx, prog))
	return ctx, prog
}

func run(t *testing.T, ctx *mil.Context, prog *mil.Program, name string, args ...int64) string {
	t.Helper()
	id, ok := prog.Lookup(name)
	require.True(t, ok, "no definition %s", name)
	vals := make([]interp.Value, len(args))
	for i, a := range args {
		vals[i] = interp.WordValue(a)
	}
	vs, err := interp.New(ctx, prog, nil).Run(id, vals)
	require.NoError(t, err)
	return interp.FormatValues(vs)
}

func dump(prog *mil.Program) string {
	var buf bytes.Buffer
	mil.NewPrinter(&buf, prog).PrintProgram()
	return buf.String()
}

func TestUnitErased(t *testing.T) {
	ctx, prog := pipeline(t, 64, `
blocks:
  - name: keep
    type: "[Unit, Word] >>= [Word]"
    params: [u, n]
    code:
      - return: [n]
  - name: main
    type: "[Word] >>= [Word]"
    params: [n]
    entry: true
    code:
      - bind: [u]
        data: Unit
      - call: keep
        args: [u, n]
`)
	out := dump(prog)
	assert.Contains(t, out, "keep :: [Word] >>= [Word]")
	assert.NotContains(t, out, "Unit")
	assert.Equal(t, "[3]", run(t, ctx, prog, "main", 3))
}

func TestWideValuesSplit(t *testing.T) {
	src := `
types:
  - name: Pair
    cfuns:
      - name: MkPair
        fields: ["Bit 128", Word]
blocks:
  - name: first
    type: "[Pair] >>= [Bit 128]"
    params: [p]
    code:
      - sel: MkPair
        field: 0
        args: [p]
  - name: main
    type: "[Bit 128, Word] >>= [Bit 128, Word]"
    params: [x, w]
    entry: true
    code:
      - bind: [p]
        data: MkPair
        args: [x, w]
      - bind: [y]
        call: first
        args: [p]
      - bind: [z]
        sel: MkPair
        field: 1
        args: [p]
      - return: [y, z]
`
	ctx, prog := pipeline(t, 64, src)
	out := dump(prog)
	assert.Contains(t, out, "main :: [Word, Word, Word] >>= [Word, Word, Word]")
	assert.Contains(t, out, "first :: [Pair] >>= [Word, Word]")
	assert.Equal(t, "[1, 2, 3]", run(t, ctx, prog, "main", 1, 2, 3))

	ctx, prog = pipeline(t, 32, src)
	assert.Contains(t, dump(prog), "main :: [Word, Word, Word, Word, Word] >>= [Word, Word, Word, Word, Word]")
	assert.Equal(t, "[1, 2, 3, 4, 5]", run(t, ctx, prog, "main", 1, 2, 3, 4, 5))
}

func TestWideMemoryAccess(t *testing.T) {
	src := `
blocks:
  - name: main
    type: "[Addr, Bit 64] >>= [Bit 64]"
    params: [a, v]
    entry: true
    code:
      - prim: store64
        args: [a, v]
      - prim: load64
        args: [a]
`
	ctx, prog := pipeline(t, 32, src)
	out := dump(prog)
	assert.Contains(t, out, "store64[")
	assert.Contains(t, out, "load64[")
	assert.Contains(t, out, "load32((")
	assert.Equal(t, "[5, 7]", run(t, ctx, prog, "main", 100, 5, 7))

	ctx, prog = pipeline(t, 64, src)
	assert.Contains(t, dump(prog), "load64((")
	assert.Equal(t, "[-3]", run(t, ctx, prog, "main", 100, -3))
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name     string
		wordSize int
		src      string
		args     []int64
		want     string
	}{
		{
			"literal", 64, `
externals:
  - {name: lit, type: "Bit 8", ref: primBitFromLiteral, ts: ["5", "8"]}
blocks:
  - {name: main, type: "[] >>= [Bit 8]", entry: true, code: [{return: [lit]}]}
`, nil, "[5]",
		},
		{
			"wide literal", 32, `
externals:
  - {name: lit, type: "Bit 40", ref: primBitFromLiteral, ts: ["8589934593", "40"]}
blocks:
  - {name: main, type: "[] >>= [Bit 40]", entry: true, code: [{return: [lit]}]}
`, nil, "[1, 2]",
		},
		{
			"literal as function", 64, `
externals:
  - {name: lit, type: "[] ->> [Bit 8]", ref: primBitFromLiteral, ts: ["5", "8"]}
blocks:
  - {name: main, type: "[] >>= [Bit 8]", entry: true, code: [{enter: lit, args: []}]}
`, nil, "[5]",
		},
		{
			"wide literal as function", 32, `
externals:
  - {name: lit, type: "[] ->> [Bit 40]", ref: primBitFromLiteral, ts: ["8589934593", "40"]}
blocks:
  - {name: main, type: "[] >>= [Bit 40]", entry: true, code: [{enter: lit, args: []}]}
`, nil, "[1, 2]",
		},
		{
			"not", 64, `
externals:
  - {name: bnot, type: "[Bit 8] ->> [Bit 8]", ref: primBitNot, ts: ["8"]}
blocks:
  - {name: main, type: "[Bit 8] >>= [Bit 8]", params: [x], entry: true, code: [{enter: bnot, args: [x]}]}
`, []int64{5}, "[250]",
		},
		{
			"negate", 64, `
externals:
  - {name: bneg, type: "[Bit 8] ->> [Bit 8]", ref: primBitNegate, ts: ["8"]}
blocks:
  - {name: main, type: "[Bit 8] >>= [Bit 8]", params: [x], entry: true, code: [{enter: bneg, args: [x]}]}
`, []int64{5}, "[251]",
		},
		{
			"wide negate", 64, `
externals:
  - {name: bneg, type: "[Bit 65] ->> [Bit 65]", ref: primBitNegate, ts: ["65"]}
blocks:
  - {name: main, type: "[Bit 65] >>= [Bit 65]", params: [x], entry: true, code: [{enter: bneg, args: [x]}]}
`, []int64{1, 0}, "[-1, 1]",
		},
		{
			"wide negate with carry", 64, `
externals:
  - {name: bneg, type: "[Bit 65] ->> [Bit 65]", ref: primBitNegate, ts: ["65"]}
blocks:
  - {name: main, type: "[Bit 65] >>= [Bit 65]", params: [x], entry: true, code: [{enter: bneg, args: [x]}]}
`, []int64{0, 1}, "[0, 1]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, prog := pipeline(t, tt.wordSize, tt.src)
			assert.Equal(t, tt.want, run(t, ctx, prog, "main", tt.args...))
		})
	}
}

func TestLiteralTooWide(t *testing.T) {
	ctx := mil.NewContext(nil, 64)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(`
externals:
  - {name: lit, type: "Bit 8", ref: primBitFromLiteral, ts: ["256", "8"]}
blocks:
  - {name: main, type: "[] >>= [Bit 8]", entry: true, code: [{return: [lit]}]}
`))
	require.NoError(t, err)
	require.NoError(t, typecheck.Program(ctx, prog))
	require.NoError(t, specialize.Program(ctx, prog))

	err = Program(ctx, prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "literal 256 does not fit in Bit 8")
}

func TestGeneratedShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		typ  string
	}{
		{"too few words", "Bit 128"},
		{"function with too few words", "[] ->> [Bit 128]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := mil.NewContext(nil, 64)
			prog, err := loader.Parse(ctx, "test.yaml", []byte(`
externals:
  - {name: lit, type: "`+tt.typ+`", ref: primBitFromLiteral, ts: ["5", "8"]}
blocks:
  - {name: use, type: "[] >>= []", entry: true, code: [{bind: [x], return: [lit]}, {return: []}]}
`))
			require.NoError(t, err)
			require.NoError(t, typecheck.Program(ctx, prog))
			require.NoError(t, specialize.Program(ctx, prog))

			err = Program(ctx, prog)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "implementation generated by primBitFromLiteral does not match")
		})
	}
}

func TestUnknownExternalKept(t *testing.T) {
	_, prog := pipeline(t, 32, `
externals:
  - {name: clock, type: "Bit 64", ref: readClock}
blocks:
  - {name: main, type: "[] >>= [Bit 64]", entry: true, code: [{return: [clock]}]}
`)
	out := dump(prog)
	assert.Contains(t, out, "external clock {readClock} :: [Word, Word]")
}
