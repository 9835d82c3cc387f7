package regalloc

import (
	"sort"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/asm/arm"
	"github.com/francesco-plt/pl0com/compiler/ir"
	"github.com/francesco-plt/pl0com/compiler/set"
)

type (
	// LinearScan plans a whole function when it is entered.
	// Values are given Pool registers over their live interval;
	// the rest live in spill slots and pass through Scratch registers.
	LinearScan struct {
		Pool    asm.RegList
		Scratch asm.RegList

		stackroom int

		reg  map[ir.Sym]asm.Reg
		slot map[ir.Sym]int

		spilled set.Bits[ir.Sym]

		ivals []interval

		// scratch residency, reset at every Barrier
		res   []scratch
		clock int
	}

	interval struct {
		Sym        ir.Sym
		Start, End int
		Reg        asm.Reg
	}

	scratch struct {
		v    ir.Sym
		used int
	}

	loop struct {
		from, to int
	}

	regs struct {
		heap.Heap[asm.Reg]
	}

	actives struct {
		heap.Heap[interval]
	}
)

// NewLinearScan uses the first n registers of the pool.
func NewLinearScan(n int) *LinearScan {
	if n > len(arm.Pool) {
		n = len(arm.Pool)
	}

	if n < 0 {
		n = 0
	}

	return &LinearScan{
		Pool:    arm.Pool[:n:n],
		Scratch: arm.Scratch,
	}
}

// NewSpillAll keeps every value in memory.
func NewSpillAll() *LinearScan {
	return NewLinearScan(0)
}

func (a *LinearScan) EnterFunction(p *ir.Program, block ir.ID) (err error) {
	n, ok := p.Node(block)
	if !ok {
		return errors.New("block %d out of range", block)
	}

	bl, ok := n.(ir.Block)
	if !ok {
		return errors.New("node %d: expected Block, got %v", block, ir.Kind(n))
	}

	if len(a.Scratch) == 0 {
		return errors.New("no scratch registers")
	}

	for _, r := range a.Pool {
		if a.Scratch.Has(r) {
			return errors.New("register %v is both pool and scratch", r)
		}
	}

	for _, r := range append(append(asm.RegList{}, a.Pool...), a.Scratch...) {
		if !arm.CalleeSave.Has(r) {
			return errors.New("register %v is not callee-save", r)
		}
	}

	a.stackroom = bl.StackRoom
	a.reg = make(map[ir.Sym]asm.Reg)
	a.slot = make(map[ir.Sym]int)
	a.spilled.Reset()
	a.res = make([]scratch, len(a.Scratch))
	a.clock = 0

	var stats []ir.ID
	if bl.Body != ir.Nil {
		stats = p.Statements(bl.Body)
	}

	a.ivals = a.intervals(p, stats)

	a.allocate()

	if tlog.If("regalloc") {
		for _, iv := range a.ivals {
			tlog.Printw("interval", "block", block, "iv", iv, "spilled", a.spilled.IsSet(iv.Sym), "slot", a.slot[iv.Sym])
		}

		tlog.Printw("allocated", "block", block, "stackroom", a.stackroom, "spill_room", a.SpillRoom(), "spilled", a.spilled)
	}

	return nil
}

func (a *LinearScan) RegisterFor(v ir.Sym) asm.Reg {
	if r, ok := a.reg[v]; ok {
		return r
	}

	a.spill(v)

	if i := a.resident(v); i >= 0 {
		a.touch(i)

		return a.Scratch[i]
	}

	i := a.victim()
	a.res[i].v = v
	a.touch(i)

	return a.Scratch[i]
}

func (a *LinearScan) ReloadIfSpilled(b []byte, v ir.Sym) []byte {
	if _, ok := a.reg[v]; ok {
		return b
	}

	if i := a.resident(v); i >= 0 {
		a.touch(i)

		return b
	}

	r := a.RegisterFor(v)

	return a.transfer(b, "ldr", r, v)
}

func (a *LinearScan) SpillIfNeeded(b []byte, v ir.Sym) []byte {
	if _, ok := a.reg[v]; ok {
		return b
	}

	r := a.RegisterFor(v)

	return a.transfer(b, "str", r, v)
}

func (a *LinearScan) SpillRoom() int {
	return arm.WordSize * a.spilled.Size()
}

func (a *LinearScan) Barrier() {
	for i := range a.res {
		a.res[i] = scratch{v: ir.NoSym}
	}
}

// SlotOffset is the frame pointer relative offset of the spill slot of v.
func (a *LinearScan) SlotOffset(v ir.Sym) (int, bool) {
	s, ok := a.slot[v]
	if !ok {
		return 0, false
	}

	return -(a.stackroom + arm.WordSize*(s+1)), true
}

func (a *LinearScan) transfer(b []byte, op string, r asm.Reg, v ir.Sym) []byte {
	off, _ := a.SlotOffset(v)

	if arm.OffsetOK(int64(off), arm.WordSize, true, true) {
		return asm.Ins(b, op, r, asm.Mem{Base: arm.FP, Off: asm.Imm(off)})
	}

	x := uint32(int32(off))

	b = asm.Ins(b, "movw", arm.IP, asm.Imm(x&0xffff))
	b = asm.Ins(b, "movt", arm.IP, asm.Imm(x>>16))

	return asm.Ins(b, op, r, asm.Mem{Base: arm.FP, Off: arm.IP})
}

func (a *LinearScan) spill(v ir.Sym) {
	if a.spilled.IsSet(v) {
		return
	}

	if a.slot == nil {
		a.slot = make(map[ir.Sym]int)
	}

	a.spilled.Set(v)
	a.slot[v] = len(a.slot)
}

func (a *LinearScan) resident(v ir.Sym) int {
	for i, s := range a.res {
		if s.used != 0 && s.v == v {
			return i
		}
	}

	return -1
}

// victim returns a free scratch register or the least recently used one.
func (a *LinearScan) victim() int {
	if len(a.res) != len(a.Scratch) {
		a.res = make([]scratch, len(a.Scratch))
	}

	best := 0

	for i, s := range a.res {
		if s.used == 0 {
			return i
		}

		if s.used < a.res[best].used {
			best = i
		}
	}

	return best
}

func (a *LinearScan) touch(i int) {
	a.clock++
	a.res[i].used = a.clock
}

// intervals computes for each value the range of statement positions it is live in.
func (a *LinearScan) intervals(p *ir.Program, stats []ir.ID) []interval {
	idx := map[ir.Sym]int{}
	var ivals []interval

	labels := map[ir.Label]int{}

	for i, id := range stats {
		if l := p.Label(id); l != "" {
			labels[l] = i
		}
	}

	var loops []loop

	for i, id := range stats {
		uses, defs := p.Operands(id)

		for _, s := range append(uses, defs...) {
			j, ok := idx[s]
			if !ok {
				idx[s] = len(ivals)
				ivals = append(ivals, interval{Sym: s, Start: i, End: i, Reg: asm.NoReg})

				continue
			}

			ivals[j].End = i
		}

		if br, ok := p.Nodes[id].(ir.BranchStat); ok && !br.Call {
			if t, ok := labels[br.Target]; ok && t <= i {
				loops = append(loops, loop{from: t, to: i})
			}
		}
	}

	// a value touched inside a loop stays live for the whole loop
	for changed := true; changed; {
		changed = false

		for _, l := range loops {
			for j := range ivals {
				iv := &ivals[j]

				if iv.End < l.from || iv.Start > l.to {
					continue
				}

				if iv.Start > l.from {
					iv.Start = l.from
					changed = true
				}

				if iv.End < l.to {
					iv.End = l.to
					changed = true
				}
			}
		}
	}

	sort.Slice(ivals, func(i, j int) bool {
		if ivals[i].Start != ivals[j].Start {
			return ivals[i].Start < ivals[j].Start
		}

		return ivals[i].Sym < ivals[j].Sym
	})

	return ivals
}

func (a *LinearScan) allocate() {
	free := regs{Heap: heap.Heap[asm.Reg]{Less: regsLess}}
	act := actives{Heap: heap.Heap[interval]{Less: activesLess}}

	for _, r := range a.Pool {
		free.Push(r)
	}

	for i := range a.ivals {
		iv := &a.ivals[i]

		for act.Len() != 0 && act.Data[0].End < iv.Start {
			x := act.Pop()
			free.Push(x.Reg)
		}

		if free.Len() != 0 {
			iv.Reg = free.Pop()
			a.reg[iv.Sym] = iv.Reg
			act.Push(*iv)

			continue
		}

		k := -1

		for j, x := range act.Data {
			if k < 0 || x.End > act.Data[k].End || x.End == act.Data[k].End && x.Sym > act.Data[k].Sym {
				k = j
			}
		}

		if k < 0 || act.Data[k].End <= iv.End {
			a.spill(iv.Sym)

			continue
		}

		victim := act.Data[k]

		iv.Reg = victim.Reg
		a.reg[iv.Sym] = iv.Reg

		delete(a.reg, victim.Sym)
		a.spill(victim.Sym)
		a.setReg(victim.Sym, asm.NoReg)

		act.Data[k].End = -1
		act.Fix(k)
		act.Pop()

		act.Push(*iv)
	}
}

func (a *LinearScan) setReg(v ir.Sym, r asm.Reg) {
	for i := range a.ivals {
		if a.ivals[i].Sym == v {
			a.ivals[i].Reg = r
			return
		}
	}
}

func regsLess(d []asm.Reg, i, j int) bool {
	return d[i] < d[j]
}

func activesLess(d []interval, i, j int) bool {
	if d[i].End != d[j].End {
		return d[i].End < d[j].End
	}

	return d[i].Sym < d[j].Sym
}

func (iv interval) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)

	b = e.AppendKeyInt(b, "sym", int(iv.Sym))
	b = e.AppendKeyInt(b, "start", iv.Start)
	b = e.AppendKeyInt(b, "end", iv.End)
	b = e.AppendKeyInt(b, "reg", int(iv.Reg))

	return b
}
