// Package arm describes the 32-bit ARM target: register roles, calling convention
// and the immediate encoding limits the code generator has to respect.
package arm

import (
	"math/bits"

	"github.com/francesco-plt/pl0com/compiler/asm"
)

const (
	R0 asm.Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	FP
	IP
	SP
	LR
	PC
)

const (
	Arch = "armv7ve"

	Entry     = "_start"
	PrintFunc = "__print"
	ReadFunc  = "__read"

	// Arg and Result registers of the runtime routines.
	Arg    = R0
	Result = R0

	WordSize = 4

	// MovImmMin and MovImmMax bound the immediates loaded with a single mov or mvn.
	MovImmMin = -4096
	MovImmMax = 4096
)

var (
	CallerSave = asm.RegList{R0, R1, R2, R3, IP}
	CalleeSave = asm.RegList{R4, R5, R6, R7, R8, R9, R10}

	// Pool is allocated to values, lowest first.
	Pool = asm.RegList{R4, R5, R6, R7}

	// Scratch holds spilled values for the duration of one statement.
	Scratch = asm.RegList{R8, R9, R10}

	// Saved is pushed by every prologue.
	Saved = append(append(asm.RegList{}, CalleeSave...), FP, LR)
)

// ModImm reports whether v is an 8-bit value rotated right by an even amount,
// the only form data processing instructions accept as an immediate.
func ModImm(v uint32) bool {
	for r := 0; r < 32; r += 2 {
		if bits.RotateLeft32(v, r) <= 0xff {
			return true
		}
	}

	return false
}

// OffsetLimit returns the largest magnitude of an immediate offset
// a load or store of size bytes and the given signedness can carry.
func OffsetLimit(size int, signed, load bool) int {
	switch {
	case size == 2:
		return 255
	case size == 1 && signed && load:
		return 255
	default:
		return 4095
	}
}

// OffsetOK reports whether off fits the addressing mode of the access.
func OffsetOK(off int64, size int, signed, load bool) bool {
	l := int64(OffsetLimit(size, signed, load))

	return off >= -l && off <= l
}
