package ir

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francesco-plt/pl0com/compiler/tp"
)

type kinds []string

func (k *kinds) add(id ID, n string) error {
	*k = append(*k, n)

	return nil
}

func (k *kinds) Block(id ID, x Block) error                   { return k.add(id, "Block") }
func (k *kinds) DefinitionList(id ID, x DefinitionList) error { return k.add(id, "DefinitionList") }
func (k *kinds) FunctionDef(id ID, x FunctionDef) error       { return k.add(id, "FunctionDef") }
func (k *kinds) StatList(id ID, x StatList) error             { return k.add(id, "StatList") }
func (k *kinds) BinStat(id ID, x BinStat) error               { return k.add(id, "BinStat") }
func (k *kinds) UnaryStat(id ID, x UnaryStat) error           { return k.add(id, "UnaryStat") }
func (k *kinds) LoadImmStat(id ID, x LoadImmStat) error       { return k.add(id, "LoadImmStat") }
func (k *kinds) LoadStat(id ID, x LoadStat) error             { return k.add(id, "LoadStat") }
func (k *kinds) StoreStat(id ID, x StoreStat) error           { return k.add(id, "StoreStat") }
func (k *kinds) LoadAddressOf(id ID, x LoadAddressOf) error   { return k.add(id, "LoadAddressOf") }
func (k *kinds) PrintStat(id ID, x PrintStat) error           { return k.add(id, "PrintStat") }
func (k *kinds) ReadStat(id ID, x ReadStat) error             { return k.add(id, "ReadStat") }
func (k *kinds) BranchStat(id ID, x BranchStat) error         { return k.add(id, "BranchStat") }
func (k *kinds) EmptyStat(id ID, x EmptyStat) error           { return k.add(id, "EmptyStat") }

func TestBuilderParents(t *testing.T) {
	b := NewBuilder()

	x := b.Sym(Symbol{Name: "x", Type: tp.Int32, Class: Global, Layout: GlobalLayout{Name: "x", Size: 4}})
	f := b.Sym(Symbol{Name: "f", Type: tp.Func{}, Class: Global})
	t1 := b.Temp(tp.Int32)

	fbody := b.Block(nil, b.List(b.Add(EmptyStat{})), nil, 0)
	fdef := b.Func(f, fbody)

	s0 := b.Add(LoadImmStat{Dest: t1, Value: 5})
	s1 := b.Add(StoreStat{Src: t1, Symbol: x})
	body := b.List(s0, s1)

	root := b.Block([]Sym{x, f}, body, []ID{fdef}, 0)
	p := b.Finish(root)

	assert.Equal(t, Nil, p.ParentOf(root))
	assert.Equal(t, root, p.ParentOf(body))
	assert.Equal(t, body, p.ParentOf(s0))
	assert.Equal(t, fdef, p.ParentOf(fbody))

	defs := p.Nodes[root].(Block).Defs
	assert.Equal(t, root, p.ParentOf(defs))
	assert.Equal(t, defs, p.ParentOf(fdef))

	assert.Equal(t, []ID{s0, s1}, p.Statements(body), "%v", spew.Sdump(p.Nodes))
}

func TestVisit(t *testing.T) {
	b := NewBuilder()
	v := b.Temp(tp.Int32)

	ids := []ID{
		b.Add(LoadImmStat{Dest: v, Value: 1}),
		b.Add(UnaryStat{Op: Minus, Src: v, Dest: v}),
		b.Add(PrintStat{Src: v}),
		b.Add(ReadStat{Dest: v}),
		b.Add(BranchStat{Target: "l", Cond: NoSym}),
		b.Add(EmptyStat{}),
	}

	var k kinds

	for _, id := range ids {
		require.NoError(t, b.P.Visit(&k, id))
	}

	assert.Equal(t, kinds{"LoadImmStat", "UnaryStat", "PrintStat", "ReadStat", "BranchStat", "EmptyStat"}, k)

	for i, id := range ids {
		assert.Equal(t, k[i], Kind(b.P.Nodes[id]))
	}

	assert.Error(t, b.P.Visit(&k, 100))
}

func TestOperands(t *testing.T) {
	b := NewBuilder()

	g := b.Sym(Symbol{Name: "g", Type: tp.Int32, Class: Global, Layout: GlobalLayout{Name: "g", Size: 4}})
	p := b.Temp(tp.Ptr{X: tp.Int32})
	a := b.Temp(tp.Int32)
	c := b.Temp(tp.Int32)

	bin := b.Add(BinStat{Op: Plus, A: a, B: c, Dest: a})
	ld := b.Add(LoadStat{Symbol: g, Dest: a})
	st := b.Add(StoreStat{Src: a, Symbol: p})
	br := b.Add(BranchStat{Target: "x", Cond: c})
	jmp := b.Add(BranchStat{Target: "x", Cond: NoSym})

	uses, defs := b.P.Operands(bin)
	assert.Equal(t, []Sym{a, c}, uses)
	assert.Equal(t, []Sym{a}, defs)

	uses, defs = b.P.Operands(ld)
	assert.Empty(t, uses)
	assert.Equal(t, []Sym{a}, defs)

	uses, defs = b.P.Operands(st)
	assert.Equal(t, []Sym{a, p}, uses)
	assert.Empty(t, defs)

	uses, _ = b.P.Operands(br)
	assert.Equal(t, []Sym{c}, uses)

	uses, _ = b.P.Operands(jmp)
	assert.Empty(t, uses)
}

func TestElemAddr(t *testing.T) {
	b := NewBuilder()

	arr := b.Sym(Symbol{Name: "a", Type: tp.Array{Elem: tp.Int32, Dims: []int{4}}, Class: Local, Layout: LocalLayout{Offset: -16}})
	d := b.Temp(tp.Ptr{X: tp.Int32})

	ids, err := b.ElemAddr(d, arr, 2)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	assert.IsType(t, LoadAddressOf{}, b.P.Nodes[ids[0]])
	assert.Equal(t, int64(8), b.P.Nodes[ids[1]].(LoadImmStat).Value)

	add := b.P.Nodes[ids[2]].(BinStat)
	assert.Equal(t, Plus, add.Op)
	assert.Equal(t, d, add.Dest)

	_, err = b.ElemAddr(d, arr, 4)
	assert.Error(t, err)

	_, err = b.ElemAddr(d, d, 0)
	assert.Error(t, err)
}
