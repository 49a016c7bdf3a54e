package llvmgen

import (
	"bytes"
	"testing"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/loader"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/bgins/mil-tools/pkg/rtlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, prog *rtl.Program) string {
	t.Helper()
	m, err := Generate(prog)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	return buf.String()
}

// incProgram holds an exported twice(x) that calls and tail calls inc(x).
func incProgram(wordSize int) *rtl.Program {
	inc := rtl.NewFunction("inc", rtl.Sig{Args: 1, Results: 1})
	inc.Params = []rtl.Reg{1}
	inc.Entrypoint = 1
	inc.Code[1] = rtl.Iop{Op: rtl.Ointconst{Value: 1}, Dest: 2, Succ: 2}
	inc.Code[2] = rtl.Iop{Op: rtl.Oadd{}, Args: []rtl.Reg{1, 2}, Dest: 3, Succ: 3}
	inc.Code[3] = rtl.Ireturn{Args: []rtl.Reg{3}}

	twice := rtl.NewFunction("twice", rtl.Sig{Args: 1, Results: 1})
	twice.Params = []rtl.Reg{1}
	twice.Entrypoint = 1
	twice.Exported = true
	twice.Code[1] = rtl.Icall{
		Sig:   rtl.Sig{Args: 1, Results: 1},
		Fn:    rtl.FunSymbol{Name: "inc"},
		Args:  []rtl.Reg{1},
		Dests: []rtl.Reg{2},
		Succ:  2,
	}
	twice.Code[2] = rtl.Itailcall{Sig: rtl.Sig{Args: 1}, Fn: rtl.FunSymbol{Name: "inc"}, Args: []rtl.Reg{2}}

	return &rtl.Program{WordSize: wordSize, Functions: []rtl.Function{*inc, *twice}}
}

func TestGenerateCalls(t *testing.T) {
	out := generate(t, incProgram(64))

	assert.Contains(t, out, "define internal i64 @inc(i64 %x1)")
	assert.Contains(t, out, "define i64 @twice(i64 %x1)")
	assert.Contains(t, out, "alloca i64")
	assert.Contains(t, out, "add i64")
	assert.Contains(t, out, "call i64 @inc(")
	assert.Contains(t, out, "tail call i64 @inc(")
	assert.Contains(t, out, "define void @mil_init()")
}

func TestGenerateWordSize32(t *testing.T) {
	out := generate(t, incProgram(32))

	assert.Contains(t, out, "define internal i32 @inc(i32 %x1)")
	assert.NotContains(t, out, "i64")
}

func TestGenerateGlobalsAndClosures(t *testing.T) {
	code := rtl.NewFunction("k_code", rtl.Sig{Args: 2, Results: 1})
	code.Params = []rtl.Reg{1, 2}
	code.Entrypoint = 1
	code.Code[1] = rtl.Iload{Chunk: rtl.Mint64, Addr: rtl.Aindexed{Offset: 8}, Args: []rtl.Reg{1}, Dest: 3, Succ: 2}
	code.Code[2] = rtl.Ireturn{Args: []rtl.Reg{3}}

	initFn := rtl.NewFunction("init_f", rtl.Sig{})
	initFn.Entrypoint = 1
	initFn.Code[1] = rtl.Ialloc{Words: 2, Dest: 1, Succ: 2}
	initFn.Code[2] = rtl.Iop{Op: rtl.Oaddrsymbol{Symbol: "k_code"}, Dest: 2, Succ: 3}
	initFn.Code[3] = rtl.Istore{Chunk: rtl.Mint64, Addr: rtl.Aindexed{}, Args: []rtl.Reg{1}, Src: 2, Succ: 4}
	initFn.Code[4] = rtl.Istore{Chunk: rtl.Mint64, Addr: rtl.Aglobal{Symbol: "f"}, Src: 1, Succ: 5}
	initFn.Code[5] = rtl.Ireturn{}

	prog := &rtl.Program{
		WordSize:  64,
		Globals:   []rtl.GlobVar{{Name: "f", Words: 1, Init: "init_f"}},
		Layouts:   []rtl.Layout{{Closure: "k", Fun: "k_code", Stored: 1}},
		Functions: []rtl.Function{*code, *initFn},
	}
	out := generate(t, prog)

	assert.Contains(t, out, "@f = internal global [1 x i64] zeroinitializer")
	assert.Contains(t, out, "@mil_alloc(i64 16)")
	assert.Contains(t, out, "ptrtoint")
	assert.Contains(t, out, "inttoptr")
	assert.Contains(t, out, "call void @init_f()")
}

func TestGenerateNarrowMemory(t *testing.T) {
	fn := rtl.NewFunction("peek", rtl.Sig{Args: 1, Results: 1})
	fn.Params = []rtl.Reg{1}
	fn.Entrypoint = 1
	fn.Exported = true
	fn.Code[1] = rtl.Iload{Chunk: rtl.Mint8unsigned, Addr: rtl.Aindexed{}, Args: []rtl.Reg{1}, Dest: 2, Succ: 2}
	fn.Code[2] = rtl.Istore{Chunk: rtl.Mint16unsigned, Addr: rtl.Aindexed{Offset: 2}, Args: []rtl.Reg{1}, Src: 2, Succ: 3}
	fn.Code[3] = rtl.Ireturn{Args: []rtl.Reg{2}}

	out := generate(t, &rtl.Program{WordSize: 64, Functions: []rtl.Function{*fn}})

	assert.Contains(t, out, "load i8, i8*")
	assert.Contains(t, out, "zext i8")
	assert.Contains(t, out, "trunc i64")
	assert.Contains(t, out, "store i16")
}

func TestGenerateBranchesAndAbort(t *testing.T) {
	fn := rtl.NewFunction("pick", rtl.Sig{Args: 1, Results: 1})
	fn.Params = []rtl.Reg{1}
	fn.Entrypoint = 1
	fn.Exported = true
	fn.Code[1] = rtl.Icond{Cond: rtl.Ccompimm{Cond: rtl.Cne, N: 0}, Args: []rtl.Reg{1}, IfSo: 2, IfNot: 5}
	fn.Code[2] = rtl.Ijumptable{Arg: 1, Targets: []rtl.Node{3, 4}}
	fn.Code[3] = rtl.Ireturn{Args: []rtl.Reg{1}}
	fn.Code[4] = rtl.Iabort{Reason: "no alternative"}
	fn.Code[5] = rtl.Iabort{Reason: "halt"}

	out := generate(t, &rtl.Program{WordSize: 64, Functions: []rtl.Function{*fn}})

	assert.Contains(t, out, "icmp ne i64")
	assert.Contains(t, out, "br i1")
	assert.Contains(t, out, "switch i64")
	assert.Contains(t, out, `c"halt\00"`)
	assert.Contains(t, out, `c"no alternative\00"`)
	assert.Contains(t, out, "@mil_abort(")
	assert.Contains(t, out, "unreachable")
}

func TestGenerateMultipleResults(t *testing.T) {
	pair := rtl.NewFunction("pair", rtl.Sig{Args: 1, Results: 2})
	pair.Params = []rtl.Reg{1}
	pair.Entrypoint = 1
	pair.Code[1] = rtl.Ireturn{Args: []rtl.Reg{1, 1}}

	sum := rtl.NewFunction("sum", rtl.Sig{Args: 1, Results: 1})
	sum.Params = []rtl.Reg{1}
	sum.Entrypoint = 1
	sum.Exported = true
	sum.Code[1] = rtl.Icall{Sig: rtl.Sig{Args: 1, Results: 2}, Fn: rtl.FunSymbol{Name: "pair"}, Args: []rtl.Reg{1}, Dests: []rtl.Reg{2, 3}, Succ: 2}
	sum.Code[2] = rtl.Iop{Op: rtl.Oadd{}, Args: []rtl.Reg{2, 3}, Dest: 4, Succ: 3}
	sum.Code[3] = rtl.Ireturn{Args: []rtl.Reg{4}}

	out := generate(t, &rtl.Program{WordSize: 64, Functions: []rtl.Function{*pair, *sum}})

	assert.Contains(t, out, "define internal { i64, i64 } @pair(")
	assert.Contains(t, out, "insertvalue")
	assert.Contains(t, out, "extractvalue")
}

func TestGenerateOperations(t *testing.T) {
	ops := []struct {
		name string
		op   rtl.Operation
		want string
	}{
		{"sub", rtl.Osub{}, "sub i64"},
		{"mul", rtl.Omul{}, "mul i64"},
		{"div", rtl.Odiv{}, "sdiv i64"},
		{"mod", rtl.Omod{}, "srem i64"},
		{"and", rtl.Oand{}, "and i64"},
		{"or", rtl.Oor{}, "or i64"},
		{"xor", rtl.Oxor{}, "xor i64"},
		{"shl", rtl.Oshl{}, "shl i64"},
		{"shr", rtl.Oshr{}, "ashr i64"},
		{"shru", rtl.Oshru{}, "lshr i64"},
		{"cmp", rtl.Ocmp{Cond: rtl.Clt}, "icmp slt i64"},
		{"cmpu", rtl.Ocmpu{Cond: rtl.Cge}, "icmp uge i64"},
	}
	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			fn := rtl.NewFunction("op", rtl.Sig{Args: 2, Results: 1})
			fn.Params = []rtl.Reg{1, 2}
			fn.Entrypoint = 1
			fn.Exported = true
			fn.Code[1] = rtl.Iop{Op: tt.op, Args: []rtl.Reg{1, 2}, Dest: 3, Succ: 2}
			fn.Code[2] = rtl.Ireturn{Args: []rtl.Reg{3}}

			out := generate(t, &rtl.Program{WordSize: 64, Functions: []rtl.Function{*fn}})
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestGenerateMissingNode(t *testing.T) {
	fn := rtl.NewFunction("broken", rtl.Sig{})
	fn.Entrypoint = 1
	fn.Code[1] = rtl.Inop{Succ: 7}

	_, err := Generate(&rtl.Program{WordSize: 64, Functions: []rtl.Function{*fn}})
	require.Error(t, err)
	var ie *diag.InternalError
	assert.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "node 7")
}

func TestGenerateFromMIL(t *testing.T) {
	ctx := mil.NewContext(nil, 64)
	prog, err := loader.Parse(ctx, "test.yaml", []byte(`
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
        then: {call: done, args: [n]}
        else: {call: dec, args: [n]}
  - name: dec
    type: "[Word] >>= [Word]"
    params: [n]
    code:
      - bind: [m]
        prim: sub
        args: [n, 1]
      - call: main
        args: [m]
  - name: done
    type: "[Word] >>= [Word]"
    params: [r]
    code:
      - return: [r]
`))
	require.NoError(t, err)
	low, err := rtlgen.Program(ctx, prog)
	require.NoError(t, err)

	out := generate(t, low)
	assert.Contains(t, out, "define i64 @main(i64 %x1)")
	assert.Contains(t, out, "icmp eq i64")
	assert.Contains(t, out, "sub i64")
	assert.NotContains(t, out, "call i64 @main")
}
