package back

import (
	"math"
	"strconv"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/asm/arm"
	"github.com/francesco-plt/pl0com/compiler/ir"
	"github.com/francesco-plt/pl0com/compiler/tp"
)

type (
	// access describes how a load or store reaches a symbol.
	access struct {
		mem    asm.Mem
		size   int
		signed bool
	}
)

var arith = map[ir.Op]string{
	ir.Plus:  "add",
	ir.Minus: "sub",
	ir.Times: "mul",
	ir.Slash: "sdiv",
}

var compare = map[ir.Op]asm.Cond{
	ir.Eql: asm.EQ,
	ir.Neq: asm.NE,
	ir.Lss: asm.LT,
	ir.Leq: asm.LE,
	ir.Gtr: asm.GT,
	ir.Geq: asm.GE,
}

func (g *gen) BinStat(id ir.ID, x ir.BinStat) error {
	if err := g.values(id, x.A, x.B, x.Dest); err != nil {
		return err
	}

	op, isArith := arith[x.Op]
	cond, isCmp := compare[x.Op]

	if !isArith && !isCmp {
		return NewUnsupportedOperator(id, x.Op)
	}

	b := g.a.ReloadIfSpilled(g.b, x.A)
	b = g.a.ReloadIfSpilled(b, x.B)

	ra := g.a.RegisterFor(x.A)
	rb := g.a.RegisterFor(x.B)
	rd := g.a.RegisterFor(x.Dest)

	if isArith {
		b = asm.Ins(b, op, rd, ra, rb)
	} else {
		b = asm.Ins(b, "cmp", ra, rb)
		b = asm.Ins(b, "mov"+string(cond), rd, asm.Imm(1))
		b = asm.Ins(b, "mov"+string(cond.Negate()), rd, asm.Imm(0))
	}

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) UnaryStat(id ir.ID, x ir.UnaryStat) error {
	if err := g.values(id, x.Src, x.Dest); err != nil {
		return err
	}

	switch x.Op {
	case ir.Plus, ir.Minus, ir.Odd:
	default:
		return NewUnsupportedOperator(id, x.Op)
	}

	b := g.a.ReloadIfSpilled(g.b, x.Src)

	rs := g.a.RegisterFor(x.Src)
	rd := g.a.RegisterFor(x.Dest)

	switch x.Op {
	case ir.Plus:
		if rs != rd {
			b = asm.Ins(b, "mov", rd, rs)
		}
	case ir.Minus:
		b = asm.Ins(b, "mvn", rd, rs)
		b = asm.Ins(b, "add", rd, rd, asm.Imm(1))
	case ir.Odd:
		b = asm.Ins(b, "and", rd, rs, asm.Imm(1))
	}

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) LoadImmStat(id ir.ID, x ir.LoadImmStat) error {
	if err := g.values(id, x.Dest); err != nil {
		return err
	}

	v := x.Value

	if v < math.MinInt32 || v > math.MaxUint32 {
		return NewUnencodableImmediate(id, "immediate", v)
	}

	rd := g.a.RegisterFor(x.Dest)
	b := g.b

	switch {
	case v >= 0 && v < arm.MovImmMax:
		op := "mov"
		if !arm.ModImm(uint32(v)) {
			op = "movw"
		}

		b = asm.Ins(b, op, rd, asm.Imm(v))
	case v < 0 && v >= arm.MovImmMin:
		if arm.ModImm(uint32(-v - 1)) {
			b = asm.Ins(b, "mvn", rd, asm.Imm(-v-1))
		} else {
			b = asm.Ins(b, "ldr", rd, asm.Lit(strconv.FormatInt(v, 10)))
		}
	default:
		u := uint32(v)

		b = asm.Ins(b, "movw", rd, asm.Imm(u&0xffff))
		b = asm.Ins(b, "movt", rd, asm.Imm(u>>16))
	}

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) LoadStat(id ir.ID, x ir.LoadStat) error {
	if err := g.values(id, x.Dest); err != nil {
		return err
	}

	b, acc, err := g.access(g.b, id, x.Symbol, true)
	if err != nil {
		return err
	}

	op := "ldr"

	switch {
	case acc.size == 1 && acc.signed:
		op += "sb"
	case acc.size == 1:
		op += "b"
	case acc.size == 2 && acc.signed:
		op += "sh"
	case acc.size == 2:
		op += "h"
	}

	rd := g.a.RegisterFor(x.Dest)

	b = asm.Ins(b, op, rd, acc.mem)

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) StoreStat(id ir.ID, x ir.StoreStat) error {
	if err := g.values(id, x.Src); err != nil {
		return err
	}

	b := g.a.ReloadIfSpilled(g.b, x.Src)

	b, acc, err := g.access(b, id, x.Symbol, false)
	if err != nil {
		return err
	}

	op := "str"

	switch acc.size {
	case 1:
		op += "b"
	case 2:
		op += "h"
	}

	b = asm.Ins(b, op, g.a.RegisterFor(x.Src), acc.mem)

	g.b = b

	return nil
}

// access resolves the memory operand of a load or store through s.
// Globals are addressed through ip, so the operand is only valid
// until the next instruction clobbering ip.
func (g *gen) access(b []byte, id ir.ID, s ir.Sym, load bool) (_ []byte, acc access, err error) {
	sym, ok := g.Symbol(s)
	if !ok {
		return nil, acc, NewMalformedNode(id, "symbol %d out of range", s)
	}

	t := tp.Access(sym.Type)
	if t == nil {
		return nil, acc, NewMalformedNode(id, "%v has no type", sym.Name)
	}

	if !tp.Scalar(t) {
		return nil, acc, NewMalformedNode(id, "%v: access of %d bytes through %v", sym.Name, t.Size(), sym.Type)
	}

	acc.size = t.Size()
	acc.signed = tp.Signed(t)

	switch sym.Class {
	case ir.Reg:
		b = g.a.ReloadIfSpilled(b, s)
		acc.mem = asm.Mem{Base: g.a.RegisterFor(s)}
	case ir.Local:
		l, err := g.local(id, sym)
		if err != nil {
			return nil, acc, err
		}

		if !arm.OffsetOK(int64(l.Offset), acc.size, acc.signed, load) {
			return nil, acc, NewUnencodableImmediate(id, "offset of "+sym.Name, int64(l.Offset))
		}

		acc.mem = asm.Mem{Base: arm.FP, Off: asm.Imm(l.Offset)}
		if l.Name != "" {
			acc.mem.Off = asm.Const(l.Name)
		}
	case ir.Global:
		l, err := g.global(id, sym)
		if err != nil {
			return nil, acc, err
		}

		b = asm.Ins(b, "ldr", arm.IP, asm.Lit(l.Name))
		acc.mem = asm.Mem{Base: arm.IP}
	default:
		return nil, acc, NewMalformedNode(id, "%v: unknown storage class %v", sym.Name, sym.Class)
	}

	return b, acc, nil
}

func (g *gen) LoadAddressOf(id ir.ID, x ir.LoadAddressOf) error {
	if err := g.values(id, x.Dest); err != nil {
		return err
	}

	sym, ok := g.Symbol(x.Symbol)
	if !ok {
		return NewMalformedNode(id, "symbol %d out of range", x.Symbol)
	}

	rd := g.a.RegisterFor(x.Dest)
	b := g.b

	switch sym.Class {
	case ir.Local:
		l, err := g.local(id, sym)
		if err != nil {
			return err
		}

		off := int64(l.Offset)

		switch {
		case off >= 0 && arm.ModImm(uint32(off)):
			b = asm.Ins(b, "add", rd, arm.FP, asm.Imm(off))
		case off < 0 && arm.ModImm(uint32(-off)):
			b = asm.Ins(b, "sub", rd, arm.FP, asm.Imm(-off))
		default:
			return NewUnencodableImmediate(id, "offset of "+sym.Name, off)
		}
	case ir.Global:
		l, err := g.global(id, sym)
		if err != nil {
			return err
		}

		b = asm.Ins(b, "eor", rd, rd, rd)
		b = asm.Ins(b, "ldr", rd, asm.Lit(l.Name))
	default:
		return NewMalformedNode(id, "address of %v value %v", sym.Class, sym.Name)
	}

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) PrintStat(id ir.ID, x ir.PrintStat) error {
	if err := g.values(id, x.Src); err != nil {
		return err
	}

	b := g.a.ReloadIfSpilled(g.b, x.Src)
	rs := g.a.RegisterFor(x.Src)

	b = asm.Ins(b, "push", arm.CallerSave)
	b = asm.Ins(b, "mov", arm.Arg, rs)
	b = asm.Ins(b, "bl", asm.Label(arm.PrintFunc))
	b = asm.Ins(b, "pop", arm.CallerSave)

	g.b = b

	return nil
}

func (g *gen) ReadStat(id ir.ID, x ir.ReadStat) error {
	if err := g.values(id, x.Dest); err != nil {
		return err
	}

	rd := g.a.RegisterFor(x.Dest)
	b := g.b

	b = asm.Ins(b, "push", arm.CallerSave)
	b = asm.Ins(b, "bl", asm.Label(arm.ReadFunc))
	b = asm.Ins(b, "mov", rd, arm.Result)
	b = asm.Ins(b, "pop", arm.CallerSave)

	g.b = g.a.SpillIfNeeded(b, x.Dest)

	return nil
}

func (g *gen) BranchStat(id ir.ID, x ir.BranchStat) error {
	if x.Target == "" {
		return NewMalformedNode(id, "branch without target")
	}

	cond := x.Cond != ir.NoSym

	if cond {
		if err := g.values(id, x.Cond); err != nil {
			return err
		}
	}

	b := g.b
	t := asm.Label(x.Target)

	var rc asm.Reg

	if cond {
		b = g.a.ReloadIfSpilled(b, x.Cond)
		rc = g.a.RegisterFor(x.Cond)
	}

	switch {
	case !x.Call && !cond:
		b = asm.Ins(b, "b", t)
		b = asm.Directive(b, ".ltorg") // literals flushed where control never falls through
	case !x.Call:
		b = asm.Ins(b, "tst", rc, rc)
		b = asm.Ins(b, "bne", t)
	case !cond:
		b = asm.Ins(b, "push", arm.CallerSave)
		b = asm.Ins(b, "bl", t)
		b = asm.Ins(b, "pop", arm.CallerSave)
	default:
		b = asm.Ins(b, "cmp", rc, asm.Imm(0))
		b = asm.Ins(b, "beq", asm.Label("1f"))
		b = asm.Ins(b, "push", arm.CallerSave)
		b = asm.Ins(b, "bl", t)
		b = asm.Ins(b, "pop", arm.CallerSave)
		b = asm.Labeled(b, "1")
	}

	g.b = b

	return nil
}

func (g *gen) EmptyStat(id ir.ID, x ir.EmptyStat) error {
	return nil
}

// values checks the symbols are register values.
func (g *gen) values(id ir.ID, ss ...ir.Sym) error {
	for _, s := range ss {
		sym, ok := g.Symbol(s)
		if !ok {
			return NewMalformedNode(id, "symbol %d out of range", s)
		}

		if sym.Class != ir.Reg {
			return NewMalformedNode(id, "%v is a %v symbol, expected a register value", sym.Name, sym.Class)
		}
	}

	return nil
}

func (g *gen) local(id ir.ID, s ir.Symbol) (ir.LocalLayout, error) {
	switch l := s.Layout.(type) {
	case ir.LocalLayout:
		return l, nil
	case nil:
		return ir.LocalLayout{}, NewMalformedNode(id, "local %v has no layout", s.Name)
	default:
		return ir.LocalLayout{}, NewMalformedNode(id, "local %v has layout %T", s.Name, l)
	}
}

func (g *gen) global(id ir.ID, s ir.Symbol) (ir.GlobalLayout, error) {
	switch l := s.Layout.(type) {
	case ir.GlobalLayout:
		if l.Name == "" {
			return l, NewMalformedNode(id, "global %v has no link name", s.Name)
		}

		return l, nil
	case nil:
		return ir.GlobalLayout{}, NewMalformedNode(id, "global %v has no layout", s.Name)
	default:
		return ir.GlobalLayout{}, NewMalformedNode(id, "global %v has layout %T", s.Name, l)
	}
}
