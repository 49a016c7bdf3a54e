package rtlgen

import (
	"testing"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

func TestRegAllocatorFresh(t *testing.T) {
	a := NewRegAllocator()

	r1 := a.Fresh()
	r2 := a.Fresh()
	regs := a.FreshN(2)

	if r1 != 1 || r2 != 2 {
		t.Errorf("fresh regs = %d, %d, want 1, 2", r1, r2)
	}
	if len(regs) != 2 || regs[0] != 3 || regs[1] != 4 {
		t.Errorf("FreshN = %v, want [3 4]", regs)
	}
	if a.NextRegID() != 5 {
		t.Errorf("NextRegID = %d, want 5", a.NextRegID())
	}
}

func TestRegAllocatorMapTemp(t *testing.T) {
	a := NewRegAllocator()
	x := mil.NewTemp(types.WordType)
	y := mil.NewTemp(types.WordType)

	rx := a.MapTemp(x)
	if again := a.MapTemp(x); again != rx {
		t.Errorf("MapTemp twice gave %d and %d", rx, again)
	}
	if ry := a.MapTemp(y); ry == rx {
		t.Error("different temps share a register")
	}
	if got := a.LookupTemp(x); got != rx {
		t.Errorf("LookupTemp = %d, want %d", got, rx)
	}

	a.SetTemp(y, 42)
	if got := a.LookupTemp(y); got != 42 {
		t.Errorf("LookupTemp after SetTemp = %d, want 42", got)
	}
}

func TestRegAllocatorLookupUnmapped(t *testing.T) {
	a := NewRegAllocator()
	var err error
	func() {
		defer diag.Recover(&err)
		a.LookupTemp(mil.NewTemp(types.WordType))
	}()
	if err == nil {
		t.Fatal("expected an internal error for an unmapped temporary")
	}
}

func TestRegAllocatorBlockParams(t *testing.T) {
	a := NewRegAllocator()
	ps := mil.NewTemps([]types.Type{types.WordType, types.WordType})
	b := mil.NewBlock("b", diag.Builtin, ps, &mil.Done{Tail: &mil.Return{Args: mil.TempAtoms(ps)}})
	b.ID = 3

	first := a.BlockParams(b)
	second := a.BlockParams(b)
	if len(first) != 2 {
		t.Fatalf("got %d params, want 2", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("param %d mapped to %d then %d", i, first[i], second[i])
		}
		if a.LookupTemp(ps[i]) != first[i] {
			t.Errorf("param %d not registered as a temporary", i)
		}
	}
}
