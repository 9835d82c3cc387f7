// Package regalloc assigns machine registers to the register class values of a function.
package regalloc

import (
	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/ir"
)

type (
	// Allocator is consulted by the code generator for every register decision.
	//
	// ReloadIfSpilled is called before an instruction reading v,
	// SpillIfNeeded after an instruction writing v.
	// Both append nothing when v is register resident.
	// SpillRoom is only final once the whole body was generated.
	// Barrier marks a point control may reach from elsewhere.
	Allocator interface {
		EnterFunction(p *ir.Program, block ir.ID) error
		RegisterFor(v ir.Sym) asm.Reg
		ReloadIfSpilled(b []byte, v ir.Sym) []byte
		SpillIfNeeded(b []byte, v ir.Sym) []byte
		SpillRoom() int
		Barrier()
	}
)

const (
	LinearScanName = "linear-scan"
	SpillAllName   = "spill-all"
)
