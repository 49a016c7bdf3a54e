package rtlgen

import (
	"testing"

	"github.com/bgins/mil-tools/pkg/rtl"
)

func TestTunnelEmpty(t *testing.T) {
	fn := rtl.NewFunction("empty", rtl.Sig{})
	Tunnel(fn)
	if len(fn.Code) != 0 {
		t.Errorf("expected empty code")
	}
}

func TestTunnelSimpleChain(t *testing.T) {
	// 4: x1 = 1 goto 3; 3: nop goto 2; 2: nop goto 1; 1: return
	fn := rtl.NewFunction("chain", rtl.Sig{})
	fn.Entrypoint = 4
	fn.Code[4] = rtl.Iop{Op: rtl.Ointconst{Value: 1}, Dest: 1, Succ: 3}
	fn.Code[3] = rtl.Inop{Succ: 2}
	fn.Code[2] = rtl.Inop{Succ: 1}
	fn.Code[1] = rtl.Ireturn{Args: []rtl.Reg{1}}

	Tunnel(fn)

	op, ok := fn.Code[4].(rtl.Iop)
	if !ok {
		t.Fatalf("entry should still be Iop, got %T", fn.Code[4])
	}
	if op.Succ != 1 {
		t.Errorf("Succ = %d, want 1", op.Succ)
	}
	if len(fn.Code) != 2 {
		t.Errorf("got %d nodes after tunneling, want 2", len(fn.Code))
	}
}

func TestTunnelEntry(t *testing.T) {
	fn := rtl.NewFunction("entry", rtl.Sig{})
	fn.Entrypoint = 2
	fn.Code[2] = rtl.Inop{Succ: 1}
	fn.Code[1] = rtl.Ireturn{}

	Tunnel(fn)

	if fn.Entrypoint != 1 {
		t.Errorf("Entrypoint = %d, want 1", fn.Entrypoint)
	}
	if _, ok := fn.Code[2]; ok {
		t.Error("the nop at the old entry should be removed")
	}
}

func TestTunnelBranches(t *testing.T) {
	fn := rtl.NewFunction("branches", rtl.Sig{})
	fn.Entrypoint = 6
	fn.Code[6] = rtl.Icond{Cond: rtl.Ccompimm{Cond: rtl.Cne}, Args: []rtl.Reg{1}, IfSo: 5, IfNot: 4}
	fn.Code[5] = rtl.Inop{Succ: 2}
	fn.Code[4] = rtl.Ijumptable{Arg: 1, Targets: []rtl.Node{3, 2}}
	fn.Code[3] = rtl.Inop{Succ: 1}
	fn.Code[2] = rtl.Ireturn{}
	fn.Code[1] = rtl.Iabort{Reason: "halt"}

	Tunnel(fn)

	cond := fn.Code[6].(rtl.Icond)
	if cond.IfSo != 2 || cond.IfNot != 4 {
		t.Errorf("cond targets = %d, %d, want 2, 4", cond.IfSo, cond.IfNot)
	}
	jt := fn.Code[4].(rtl.Ijumptable)
	if jt.Targets[0] != 1 || jt.Targets[1] != 2 {
		t.Errorf("jumptable targets = %v, want [1 2]", jt.Targets)
	}
}

func TestTunnelLoop(t *testing.T) {
	// a nop cycle is an infinite loop and must survive
	fn := rtl.NewFunction("loop", rtl.Sig{})
	fn.Entrypoint = 1
	fn.Code[1] = rtl.Inop{Succ: 2}
	fn.Code[2] = rtl.Inop{Succ: 1}

	Tunnel(fn)

	if len(fn.Code) == 0 {
		t.Fatal("loop was removed")
	}
	if _, ok := fn.Code[fn.Entrypoint]; !ok {
		t.Errorf("entry %d has no instruction", fn.Entrypoint)
	}
}
