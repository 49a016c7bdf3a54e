// Register allocation for RTLgen.
// Manages the assignment of pseudo-registers to MIL temporaries, block
// parameters and intermediate values.

package rtlgen

import (
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
)

// RegAllocator manages pseudo-register allocation for one function.
type RegAllocator struct {
	nextReg   rtl.Reg
	tempToReg map[*mil.Temp]rtl.Reg
	blockRegs map[mil.DefnID][]rtl.Reg
}

// NewRegAllocator creates a new register allocator.
func NewRegAllocator() *RegAllocator {
	return &RegAllocator{
		nextReg:   1, // Register IDs start at 1
		tempToReg: make(map[*mil.Temp]rtl.Reg),
		blockRegs: make(map[mil.DefnID][]rtl.Reg),
	}
}

// Fresh allocates a fresh pseudo-register.
func (a *RegAllocator) Fresh() rtl.Reg {
	r := a.nextReg
	a.nextReg++
	return r
}

// FreshN allocates n fresh pseudo-registers.
func (a *RegAllocator) FreshN(n int) []rtl.Reg {
	regs := make([]rtl.Reg, n)
	for i := 0; i < n; i++ {
		regs[i] = a.Fresh()
	}
	return regs
}

// MapTemp maps a temporary to a register.
// If already mapped, returns the existing register.
func (a *RegAllocator) MapTemp(t *mil.Temp) rtl.Reg {
	if r, ok := a.tempToReg[t]; ok {
		return r
	}
	r := a.Fresh()
	a.tempToReg[t] = r
	return r
}

// MapTemps maps each temporary in ts.
func (a *RegAllocator) MapTemps(ts []*mil.Temp) []rtl.Reg {
	regs := make([]rtl.Reg, len(ts))
	for i, t := range ts {
		regs[i] = a.MapTemp(t)
	}
	return regs
}

// LookupTemp returns the register of a temporary that must already be
// defined.
func (a *RegAllocator) LookupTemp(t *mil.Temp) rtl.Reg {
	r, ok := a.tempToReg[t]
	if !ok {
		diag.Internal("temporary %s used before definition", t)
	}
	return r
}

// SetTemp explicitly sets the register for a temporary.
func (a *RegAllocator) SetTemp(t *mil.Temp, r rtl.Reg) {
	a.tempToReg[t] = r
}

// BlockParams returns the registers holding the parameters of a block
// used as a label, mapping them on first use.
func (a *RegAllocator) BlockParams(b *mil.Block) []rtl.Reg {
	if regs, ok := a.blockRegs[b.ID]; ok {
		return regs
	}
	regs := a.MapTemps(b.Params)
	a.blockRegs[b.ID] = regs
	return regs
}

// NextRegID returns the next register ID that will be allocated.
func (a *RegAllocator) NextRegID() rtl.Reg {
	return a.nextReg
}
