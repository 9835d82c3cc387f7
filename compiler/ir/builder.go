package ir

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/francesco-plt/pl0com/compiler/tp"
)

type (
	// Builder appends nodes to a Program bottom-up.
	// Children must be added before their container, which becomes their parent.
	Builder struct {
		P *Program

		tmp int
	}
)

func NewBuilder() *Builder {
	return &Builder{
		P: &Program{Root: Nil},
	}
}

func (b *Builder) Sym(s Symbol) Sym {
	b.P.Syms = append(b.P.Syms, s)

	return Sym(len(b.P.Syms) - 1)
}

// Temp declares a fresh register class value.
func (b *Builder) Temp(t tp.Type) Sym {
	b.tmp++

	return b.Sym(Symbol{Name: fmt.Sprintf("t%d", b.tmp), Type: t, Class: Reg})
}

func (b *Builder) Add(n Node) ID {
	p := b.P
	id := ID(len(p.Nodes))

	p.Nodes = append(p.Nodes, n)
	p.Labels = append(p.Labels, "")
	p.Parent = append(p.Parent, Nil)

	for _, c := range Children(n) {
		if c >= 0 && c < id {
			p.Parent[c] = id
		}
	}

	return id
}

// Labeled adds the statement with a label attached.
func (b *Builder) Labeled(l Label, n Node) ID {
	id := b.Add(n)
	b.P.Labels[id] = l

	return id
}

func (b *Builder) List(stats ...ID) ID {
	return b.Add(StatList{Stats: stats})
}

// Block adds a block. A zero defs list is stored as Nil.
func (b *Builder) Block(locals []Sym, body ID, defs []ID, stackroom int) ID {
	d := Nil
	if len(defs) != 0 {
		d = b.Add(DefinitionList{Defs: defs})
	}

	return b.Add(Block{Locals: locals, Body: body, Defs: d, StackRoom: stackroom})
}

func (b *Builder) Func(sym Sym, body ID) ID {
	return b.Add(FunctionDef{Symbol: sym, Body: body})
}

func (b *Builder) Finish(root ID) *Program {
	b.P.Root = root

	return b.P
}

// ElemAddr appends the statements computing the address of arr[idx...] into dest.
// The offset is linearized row-major using the declared element size.
func (b *Builder) ElemAddr(dest, arr Sym, idx ...int) ([]ID, error) {
	s, ok := b.P.Symbol(arr)
	if !ok {
		return nil, errors.New("symbol %d out of range", arr)
	}

	t := s.Type
	if p, ok := t.(tp.Ptr); ok {
		t = p.X
	}

	a, ok := t.(tp.Array)
	if !ok {
		return nil, errors.New("%v: not an array: %v", s.Name, s.Type)
	}

	off, err := a.Offset(idx...)
	if err != nil {
		return nil, errors.Wrap(err, "%v", s.Name)
	}

	disp := b.Temp(tp.Int32)

	if s.Class == Reg {
		return []ID{
			b.Add(LoadImmStat{Dest: disp, Value: int64(off)}),
			b.Add(BinStat{Op: Plus, A: arr, B: disp, Dest: dest}),
		}, nil
	}

	base := b.Temp(tp.Ptr{X: tp.Access(a)})

	return []ID{
		b.Add(LoadAddressOf{Dest: base, Symbol: arr}),
		b.Add(LoadImmStat{Dest: disp, Value: int64(off)}),
		b.Add(BinStat{Op: Plus, A: base, B: disp, Dest: dest}),
	}, nil
}
