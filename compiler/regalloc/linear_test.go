package regalloc

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/asm/arm"
	"github.com/francesco-plt/pl0com/compiler/ir"
	"github.com/francesco-plt/pl0com/compiler/tp"
)

func program(stackroom int, f func(b *ir.Builder) []ir.ID) (*ir.Program, ir.ID) {
	b := ir.NewBuilder()

	stats := f(b)
	root := b.Block(nil, b.List(stats...), nil, stackroom)

	return b.Finish(root), root
}

func find(ivals []interval, s ir.Sym) interval {
	for _, iv := range ivals {
		if iv.Sym == s {
			return iv
		}
	}

	return interval{Sym: ir.NoSym}
}

func noAliasing(t *testing.T, a *LinearScan) {
	t.Helper()

	for i, x := range a.ivals {
		for _, y := range a.ivals[i+1:] {
			if x.Reg == asm.NoReg || y.Reg == asm.NoReg || x.Reg != y.Reg {
				continue
			}

			overlap := x.Start <= y.End && y.Start <= x.End
			assert.False(t, overlap, "%v and %v share %v\n%v", x.Sym, y.Sym, x.Reg, spew.Sdump(a.ivals))
		}
	}
}

func TestIntervals(t *testing.T) {
	var t1, t2, t3 ir.Sym

	p, root := program(0, func(b *ir.Builder) []ir.ID {
		t1, t2, t3 = b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: t1, Value: 1}),
			b.Add(ir.LoadImmStat{Dest: t2, Value: 2}),
			b.Add(ir.BinStat{Op: ir.Plus, A: t1, B: t2, Dest: t3}),
			b.Add(ir.PrintStat{Src: t3}),
		}
	})

	a := NewLinearScan(4)
	require.NoError(t, a.EnterFunction(p, root))

	assert.Equal(t, interval{Sym: t1, Start: 0, End: 2, Reg: arm.R4}, find(a.ivals, t1))
	assert.Equal(t, interval{Sym: t2, Start: 1, End: 2, Reg: arm.R5}, find(a.ivals, t2))
	assert.Equal(t, interval{Sym: t3, Start: 2, End: 3, Reg: arm.R6}, find(a.ivals, t3))

	assert.Equal(t, 0, a.SpillRoom())
	assert.Equal(t, arm.R6, a.RegisterFor(t3))

	noAliasing(t, a)
}

func TestLoopExtension(t *testing.T) {
	var i, one, c ir.Sym

	p, root := program(0, func(b *ir.Builder) []ir.ID {
		i, one, c = b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: i, Value: 0}),
			b.Labeled("loop", ir.PrintStat{Src: i}),
			b.Add(ir.LoadImmStat{Dest: one, Value: 1}),
			b.Add(ir.BinStat{Op: ir.Plus, A: i, B: one, Dest: i}),
			b.Add(ir.BinStat{Op: ir.Lss, A: i, B: one, Dest: c}),
			b.Add(ir.BranchStat{Target: "loop", Cond: c}),
			b.Add(ir.EmptyStat{}),
		}
	})

	a := NewLinearScan(4)
	require.NoError(t, a.EnterFunction(p, root))

	assert.Equal(t, 0, find(a.ivals, i).Start)
	assert.Equal(t, 5, find(a.ivals, i).End)

	assert.Equal(t, 1, find(a.ivals, one).Start)
	assert.Equal(t, 5, find(a.ivals, one).End)

	assert.Equal(t, 1, find(a.ivals, c).Start)
	assert.Equal(t, 5, find(a.ivals, c).End)

	noAliasing(t, a)
}

func TestSpillUnderPressure(t *testing.T) {
	var x, y, z, d, e ir.Sym

	p, root := program(8, func(b *ir.Builder) []ir.ID {
		x, y, z, d, e = b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: x, Value: 1}),
			b.Add(ir.LoadImmStat{Dest: y, Value: 2}),
			b.Add(ir.LoadImmStat{Dest: z, Value: 3}),
			b.Add(ir.BinStat{Op: ir.Plus, A: x, B: y, Dest: d}),
			b.Add(ir.BinStat{Op: ir.Plus, A: d, B: z, Dest: e}),
			b.Add(ir.PrintStat{Src: e}),
		}
	})

	a := NewLinearScan(2)
	require.NoError(t, a.EnterFunction(p, root))

	assert.Equal(t, arm.R4, a.RegisterFor(x))
	assert.Equal(t, arm.R5, a.RegisterFor(y))
	assert.Equal(t, arm.R4, a.RegisterFor(e))

	assert.True(t, a.spilled.IsSet(z))
	assert.True(t, a.spilled.IsSet(d))
	assert.Equal(t, 8, a.SpillRoom())

	off, ok := a.SlotOffset(z)
	assert.True(t, ok)
	assert.Equal(t, -12, off)

	off, ok = a.SlotOffset(d)
	assert.True(t, ok)
	assert.Equal(t, -16, off)

	noAliasing(t, a)
}

func TestStealFurthestEnd(t *testing.T) {
	var long, s1, s2 ir.Sym

	p, root := program(0, func(b *ir.Builder) []ir.ID {
		long, s1, s2 = b.Temp(tp.Int32), b.Temp(tp.Int32), b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: long, Value: 1}),
			b.Add(ir.LoadImmStat{Dest: s1, Value: 2}),
			b.Add(ir.PrintStat{Src: s1}),
			b.Add(ir.LoadImmStat{Dest: s2, Value: 3}),
			b.Add(ir.PrintStat{Src: s2}),
			b.Add(ir.PrintStat{Src: long}),
		}
	})

	a := NewLinearScan(1)
	require.NoError(t, a.EnterFunction(p, root))

	assert.True(t, a.spilled.IsSet(long))
	assert.False(t, a.spilled.IsSet(s1))
	assert.False(t, a.spilled.IsSet(s2))

	assert.Equal(t, arm.R4, a.RegisterFor(s1))
	assert.Equal(t, arm.R4, a.RegisterFor(s2))
	assert.Equal(t, 4, a.SpillRoom())

	noAliasing(t, a)
}

func TestReloadSpill(t *testing.T) {
	var v, w ir.Sym

	p, root := program(8, func(b *ir.Builder) []ir.ID {
		v, w = b.Temp(tp.Int32), b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: v, Value: 1}),
			b.Add(ir.UnaryStat{Op: ir.Minus, Src: v, Dest: w}),
		}
	})

	a := NewSpillAll()
	require.NoError(t, a.EnterFunction(p, root))

	assert.Equal(t, 8, a.SpillRoom())

	b := a.ReloadIfSpilled(nil, v)
	assert.Equal(t, "\tldr\tr8, [fp, #-12]\n", string(b))

	b = a.ReloadIfSpilled(nil, v)
	assert.Empty(t, b, "already resident")

	assert.Equal(t, arm.R9, a.RegisterFor(w))

	b = a.SpillIfNeeded(nil, w)
	assert.Equal(t, "\tstr\tr9, [fp, #-16]\n", string(b))

	a.Barrier()

	b = a.ReloadIfSpilled(nil, v)
	assert.Equal(t, "\tldr\tr8, [fp, #-12]\n", string(b))
}

func TestResidentNoop(t *testing.T) {
	var v ir.Sym

	p, root := program(0, func(b *ir.Builder) []ir.ID {
		v = b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: v, Value: 1}),
			b.Add(ir.PrintStat{Src: v}),
		}
	})

	a := NewLinearScan(4)
	require.NoError(t, a.EnterFunction(p, root))

	assert.Empty(t, a.ReloadIfSpilled(nil, v))
	assert.Empty(t, a.SpillIfNeeded(nil, v))
	assert.Empty(t, a.ReloadIfSpilled(nil, v))
}

func TestScratchLRU(t *testing.T) {
	p, root := program(0, func(b *ir.Builder) []ir.ID { return nil })

	a := NewSpillAll()
	require.NoError(t, a.EnterFunction(p, root))

	assert.Equal(t, arm.R8, a.RegisterFor(10))
	assert.Equal(t, arm.R9, a.RegisterFor(11))
	assert.Equal(t, arm.R10, a.RegisterFor(12))
	assert.Equal(t, arm.R8, a.RegisterFor(10))

	assert.Equal(t, arm.R9, a.RegisterFor(13), "least recently used")
	assert.Equal(t, 16, a.SpillRoom(), "values not seen while planning are spilled lazily")
}

func TestLargeFrameSpill(t *testing.T) {
	var v ir.Sym

	p, root := program(5000, func(b *ir.Builder) []ir.ID {
		v = b.Temp(tp.Int32)

		return []ir.ID{
			b.Add(ir.LoadImmStat{Dest: v, Value: 1}),
		}
	})

	a := NewSpillAll()
	require.NoError(t, a.EnterFunction(p, root))

	b := a.ReloadIfSpilled(nil, v)
	assert.Equal(t, "\tmovw\tip, #60532\n\tmovt\tip, #65535\n\tldr\tr8, [fp, ip]\n", string(b))
}

func TestEnterFunctionErrors(t *testing.T) {
	b := ir.NewBuilder()
	e := b.Add(ir.EmptyStat{})
	p := b.Finish(e)

	a := NewLinearScan(4)

	assert.Error(t, a.EnterFunction(p, e))
	assert.Error(t, a.EnterFunction(p, 10))
}

func TestEnterFunctionRegisters(t *testing.T) {
	p, root := program(0, func(b *ir.Builder) []ir.ID { return nil })

	a := NewLinearScan(4)
	a.Scratch = asm.RegList{arm.R7, arm.R8}
	assert.Error(t, a.EnterFunction(p, root), "pool and scratch overlap")

	a = NewLinearScan(2)
	a.Scratch = asm.RegList{arm.R0}
	assert.Error(t, a.EnterFunction(p, root), "scratch clobbered by calls")
}

func TestSpillRoomPerFunction(t *testing.T) {
	var v ir.Sym

	p, root := program(0, func(b *ir.Builder) []ir.ID {
		v = b.Temp(tp.Int32)

		return []ir.ID{b.Add(ir.LoadImmStat{Dest: v, Value: 1}), b.Add(ir.PrintStat{Src: v})}
	})

	q, qroot := program(0, func(b *ir.Builder) []ir.ID { return []ir.ID{b.Add(ir.EmptyStat{})} })

	a := NewSpillAll()
	require.NoError(t, a.EnterFunction(p, root))
	assert.Equal(t, 4, a.SpillRoom())

	require.NoError(t, a.EnterFunction(q, qroot))
	assert.Equal(t, 0, a.SpillRoom())
	assert.False(t, a.spilled.IsSet(v))
}
