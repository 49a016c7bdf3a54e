package rtl

import (
	"testing"
)

func TestConditionNegate(t *testing.T) {
	tests := []struct {
		cond     Condition
		expected Condition
	}{
		{Ceq, Cne},
		{Cne, Ceq},
		{Clt, Cge},
		{Cle, Cgt},
		{Cgt, Cle},
		{Cge, Clt},
	}

	for _, tc := range tests {
		got := tc.cond.Negate()
		if got != tc.expected {
			t.Errorf("Negate(%v) = %v, want %v", tc.cond, got, tc.expected)
		}
	}
}

func TestConditionString(t *testing.T) {
	tests := []struct {
		cond     Condition
		expected string
	}{
		{Ceq, "=="},
		{Cne, "!="},
		{Clt, "<"},
		{Cle, "<="},
		{Cgt, ">"},
		{Cge, ">="},
	}

	for _, tc := range tests {
		got := tc.cond.String()
		if got != tc.expected {
			t.Errorf("String(%v) = %v, want %v", tc.cond, got, tc.expected)
		}
	}
}

func TestChunkBytes(t *testing.T) {
	tests := []struct {
		chunk Chunk
		want  int
	}{
		{Mint8unsigned, 1},
		{Mint16unsigned, 2},
		{Mint32, 4},
		{Mint64, 8},
	}
	for _, tc := range tests {
		if got := tc.chunk.Bytes(); got != tc.want {
			t.Errorf("Bytes(%d) = %d, want %d", tc.chunk, got, tc.want)
		}
	}
}

func TestInstructionSuccessors(t *testing.T) {
	tests := []struct {
		name     string
		instr    Instruction
		expected []Node
	}{
		{
			name:     "Inop",
			instr:    Inop{Succ: Node(5)},
			expected: []Node{5},
		},
		{
			name:     "Iop",
			instr:    Iop{Op: Oadd{}, Args: []Reg{1, 2}, Dest: 3, Succ: Node(10)},
			expected: []Node{10},
		},
		{
			name:     "Iload",
			instr:    Iload{Chunk: Mint32, Args: []Reg{1}, Dest: 2, Succ: Node(7)},
			expected: []Node{7},
		},
		{
			name:     "Istore",
			instr:    Istore{Chunk: Mint32, Args: []Reg{1}, Src: 2, Succ: Node(8)},
			expected: []Node{8},
		},
		{
			name:     "Icall",
			instr:    Icall{Fn: FunSymbol{Name: "foo"}, Dests: []Reg{1}, Succ: Node(9)},
			expected: []Node{9},
		},
		{
			name:     "Itailcall",
			instr:    Itailcall{Fn: FunSymbol{Name: "bar"}},
			expected: nil,
		},
		{
			name:     "Ibuiltin",
			instr:    Ibuiltin{Builtin: "printWord", Succ: Node(11)},
			expected: []Node{11},
		},
		{
			name:     "Ialloc",
			instr:    Ialloc{Words: 3, Dest: 4, Succ: Node(12)},
			expected: []Node{12},
		},
		{
			name:     "Icond",
			instr:    Icond{Cond: Ccomp{Cond: Ceq}, Args: []Reg{1, 2}, IfSo: Node(20), IfNot: Node(30)},
			expected: []Node{20, 30},
		},
		{
			name:     "Ijumptable",
			instr:    Ijumptable{Arg: 1, Targets: []Node{1, 2, 3}},
			expected: []Node{1, 2, 3},
		},
		{
			name:     "Ireturn",
			instr:    Ireturn{Args: []Reg{1, 2}},
			expected: nil,
		},
		{
			name:     "Iabort",
			instr:    Iabort{Reason: "halt"},
			expected: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.instr.Successors()
			if len(got) != len(tc.expected) {
				t.Fatalf("Successors() = %v, want %v", got, tc.expected)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("Successors()[%d] = %d, want %d", i, got[i], tc.expected[i])
				}
			}
		})
	}
}

func TestLayoutWords(t *testing.T) {
	l := Layout{Closure: "k", Fun: "k_code", Stored: 2}
	if got := l.Words(); got != 3 {
		t.Errorf("Words() = %d, want 3", got)
	}
}

func TestProgramFunction(t *testing.T) {
	prog := &Program{Functions: []Function{*NewFunction("main", Sig{Results: 1})}}
	if _, ok := prog.Function("main"); !ok {
		t.Error("expected to find main")
	}
	if _, ok := prog.Function("other"); ok {
		t.Error("did not expect to find other")
	}
}
