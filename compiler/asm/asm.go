package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	Reg  int
	Cond string

	RegList []Reg

	// Imm is an immediate operand, #v.
	Imm int64

	// Const is a named assemble-time constant used as an immediate, #name.
	Const string

	// Lit loads the address of a symbol through the literal pool, =name.
	Lit string

	// Label is a branch target.
	Label string

	// Mem is a register-relative memory operand, [base] or [base, off].
	Mem struct {
		Base Reg
		Off  any // nil, Imm or Const
	}
)

const (
	EQ Cond = "eq"
	NE Cond = "ne"
	LT Cond = "lt"
	LE Cond = "le"
	GT Cond = "gt"
	GE Cond = "ge"
)

const NoReg Reg = -1

var names = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "fp", "ip", "sp", "lr", "pc",
}

func (r Reg) String() string {
	if r < 0 || int(r) >= len(names) {
		return fmt.Sprintf("reg%d", int(r))
	}

	return names[r]
}

// ParseReg accepts both the rN and the alias spelling.
func ParseReg(s string) (Reg, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	for i, n := range names {
		if n == s {
			return Reg(i), true
		}
	}

	switch s {
	case "r11":
		return 11, true
	case "r12":
		return 12, true
	case "r13":
		return 13, true
	case "r14":
		return 14, true
	case "r15":
		return 15, true
	}

	return NoReg, false
}

func (c Cond) Negate() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case LE:
		return GT
	case GT:
		return LE
	default:
		panic(c)
	}
}

func (l RegList) Has(r Reg) bool {
	for _, x := range l {
		if x == r {
			return true
		}
	}

	return false
}

// String formats the list as an ldm/stm register list, collapsing runs of numbered registers.
func (l RegList) String() string {
	s := append(RegList{}, l...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	b := []byte{'{'}

	for i := 0; i < len(s); {
		j := i

		for j+1 < len(s) && s[j+1] == s[j]+1 && s[j+1] <= 10 {
			j++
		}

		if len(b) > 1 {
			b = append(b, ", "...)
		}

		switch {
		case j-i >= 2:
			b = append(b, s[i].String()+"-"+s[j].String()...)
		case j-i == 1:
			b = append(b, s[i].String()+", "+s[j].String()...)
		default:
			b = append(b, s[i].String()...)
		}

		i = j + 1
	}

	b = append(b, '}')

	return string(b)
}

func (x Imm) String() string { return fmt.Sprintf("#%d", int64(x)) }

func (x Const) String() string { return "#" + string(x) }

func (x Lit) String() string { return "=" + string(x) }

func (x Label) String() string { return string(x) }

func (m Mem) String() string {
	if m.Off == nil {
		return "[" + m.Base.String() + "]"
	}

	return fmt.Sprintf("[%v, %v]", m.Base, m.Off)
}

// Ins appends one instruction line: a tab, the mnemonic, a tab and comma separated operands.
func Ins(b []byte, op string, args ...any) []byte {
	b = append(b, '\t')
	b = append(b, op...)

	for i, a := range args {
		if i == 0 {
			b = append(b, '\t')
		} else {
			b = append(b, ", "...)
		}

		switch a := a.(type) {
		case fmt.Stringer:
			b = append(b, a.String()...)
		case string:
			b = append(b, a...)
		default:
			b = hfmt.Appendf(b, "%v", a)
		}
	}

	return append(b, '\n')
}

// Directive appends an assembler directive line.
func Directive(b []byte, name string, args ...any) []byte {
	return Ins(b, name, args...)
}

// Labeled appends a label definition line.
func Labeled(b []byte, name string) []byte {
	b = append(b, name...)

	return append(b, ':', '\n')
}

// Comment appends an assembler comment line.
func Comment(b []byte, f string, args ...any) []byte {
	b = append(b, "\t@ "...)
	b = hfmt.Appendf(b, f, args...)

	return append(b, '\n')
}
