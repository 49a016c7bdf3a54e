// Package rtlgen lowers a monomorphic, representation-transformed MIL
// program to RTL. Blocks reached only by jumps from one function become
// labels in its control-flow graph; everything else becomes a function.
package rtlgen

import (
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/rtl"
)

// CFGBuilder constructs an RTL control flow graph.
// Instructions are emitted forwards: cur is the node the next instruction
// will occupy, and each emitted instruction gets a fresh successor.
type CFGBuilder struct {
	nextNode   rtl.Node
	code       map[rtl.Node]rtl.Instruction
	labelNodes map[mil.DefnID]rtl.Node
	cur        rtl.Node
}

// NewCFGBuilder creates a new CFG builder.
func NewCFGBuilder() *CFGBuilder {
	return &CFGBuilder{
		nextNode:   1, // Node IDs start at 1 (positive integers)
		code:       make(map[rtl.Node]rtl.Instruction),
		labelNodes: make(map[mil.DefnID]rtl.Node),
	}
}

// AllocNode allocates a fresh node ID.
func (b *CFGBuilder) AllocNode() rtl.Node {
	n := b.nextNode
	b.nextNode++
	return n
}

// AddInstr adds an instruction at the given node.
func (b *CFGBuilder) AddInstr(node rtl.Node, instr rtl.Instruction) {
	b.code[node] = instr
}

// GetCode returns the completed CFG.
func (b *CFGBuilder) GetCode() map[rtl.Node]rtl.Instruction {
	return b.code
}

// Start makes n the node the next instruction is placed at.
func (b *CFGBuilder) Start(n rtl.Node) {
	b.cur = n
}

// Open reports whether the current path still needs instructions.
func (b *CFGBuilder) Open() bool {
	return b.cur != 0
}

// Emit places an instruction built from its successor at the current node
// and continues at that successor.
func (b *CFGBuilder) Emit(mk func(succ rtl.Node) rtl.Instruction) {
	n := b.cur
	succ := b.AllocNode()
	b.AddInstr(n, mk(succ))
	b.cur = succ
}

// Terminate places an instruction without a fall-through successor and
// closes the current path.
func (b *CFGBuilder) Terminate(instr rtl.Instruction) {
	b.AddInstr(b.cur, instr)
	b.cur = 0
}

// GetOrCreateLabel returns the node for a block label, creating it if needed.
func (b *CFGBuilder) GetOrCreateLabel(id mil.DefnID) (rtl.Node, bool) {
	if n, ok := b.labelNodes[id]; ok {
		return n, false
	}
	n := b.AllocNode()
	b.labelNodes[id] = n
	return n, true
}

// GetLabel returns the node for a label if it exists.
func (b *CFGBuilder) GetLabel(id mil.DefnID) (rtl.Node, bool) {
	n, ok := b.labelNodes[id]
	return n, ok
}
