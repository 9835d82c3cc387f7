package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/francesco-plt/pl0com/compiler/ir"
)

type (
	printer struct {
		p *ir.Program

		// names declared by the enclosing blocks
		scope []map[ir.Sym]struct{}
	}
)

// Format appends the textual form of the program, the one parse reads.
// Values the blocks use without declaring are declared in the innermost block using them.
func Format(ctx context.Context, b []byte, p *ir.Program) ([]byte, error) {
	n, ok := p.Node(p.Root)
	if !ok {
		return nil, errors.New("root node %d out of range", p.Root)
	}

	x, ok := n.(ir.Block)
	if !ok {
		return nil, errors.New("root is %v, expected Block", ir.Kind(n))
	}

	f := &printer{p: p}

	b = append(b, "program "...)

	return f.block(b, x, 0)
}

func (f *printer) block(b []byte, x ir.Block, d int) (_ []byte, err error) {
	decl := map[ir.Sym]struct{}{}

	f.scope = append(f.scope, decl)
	defer func() { f.scope = f.scope[:len(f.scope)-1] }()

	b = hfmt.Appendf(b, "block %d {\n", x.StackRoom)

	syms := append([]ir.Sym{}, x.Locals...)
	stats := f.p.Statements(x.Body)

	for _, s := range syms {
		decl[s] = struct{}{}
	}

	for _, id := range stats {
		uses, defs := f.operands(id)

		for _, s := range append(uses, defs...) {
			if !f.visible(s) {
				syms = append(syms, s)
				decl[s] = struct{}{}
			}
		}
	}

	for _, s := range syms {
		b, err = f.sym(b, s, d+1)
		if err != nil {
			return nil, err
		}
	}

	b = app(b, d+1, "body {\n")

	for _, id := range stats {
		b, err = f.stat(b, id, d+2)
		if err != nil {
			return nil, errors.Wrap(err, "node %d", id)
		}
	}

	b = app(b, d+1, "}\n")

	if x.Defs != ir.Nil {
		b, err = f.defs(b, x.Defs, d+1)
		if err != nil {
			return nil, err
		}
	}

	b = app(b, d, "}\n")

	return b, nil
}

func (f *printer) defs(b []byte, id ir.ID, d int) (_ []byte, err error) {
	n, _ := f.p.Node(id)

	l, ok := n.(ir.DefinitionList)
	if !ok {
		return nil, errors.New("node %d: definitions are %v", id, ir.Kind(n))
	}

	for _, id := range l.Defs {
		n, _ := f.p.Node(id)

		def, ok := n.(ir.FunctionDef)
		if !ok {
			return nil, errors.New("node %d: %v in definitions", id, ir.Kind(n))
		}

		body, _ := f.p.Node(def.Body)

		x, ok := body.(ir.Block)
		if !ok {
			return nil, errors.New("node %d: function body is %v", id, ir.Kind(body))
		}

		b = app(b, d, "def %v ", f.name(def.Symbol))

		b, err = f.block(b, x, d)
		if err != nil {
			return nil, errors.Wrap(err, "def %v", f.name(def.Symbol))
		}
	}

	return b, nil
}

func (f *printer) sym(b []byte, s ir.Sym, d int) ([]byte, error) {
	x, ok := f.p.Symbol(s)
	if !ok {
		return nil, errors.New("symbol %d out of range", s)
	}

	if x.Type == nil {
		return nil, errors.New("%v: no type", x.Name)
	}

	b = app(b, d, "sym %v %v ", x.Name, x.Type)

	switch l := x.Layout.(type) {
	case nil:
		switch x.Class {
		case ir.Reg:
			b = append(b, "reg"...)
		case ir.Global:
			b = append(b, "extern"...)
		default:
			return nil, errors.New("%v: %v without layout", x.Name, x.Class)
		}
	case ir.GlobalLayout:
		b = hfmt.Appendf(b, "global %v %d", l.Name, l.Size)
	case ir.LocalLayout:
		b = hfmt.Appendf(b, "local %d", l.Offset)

		if l.Name != "" {
			b = hfmt.Appendf(b, " as %v", l.Name)
		}
	default:
		return nil, errors.New("%v: unsupported layout %T", x.Name, l)
	}

	return append(b, '\n'), nil
}

func (f *printer) stat(b []byte, id ir.ID, d int) ([]byte, error) {
	if l := f.p.Label(id); l != "" {
		b = app(b, d-1, "%v:\n", l)
	}

	n, _ := f.p.Node(id)
	nm := f.name

	switch x := n.(type) {
	case ir.BinStat:
		b = app(b, d, "bin %v %v %v %v\n", x.Op, nm(x.Dest), nm(x.A), nm(x.B))
	case ir.UnaryStat:
		b = app(b, d, "un %v %v %v\n", x.Op, nm(x.Dest), nm(x.Src))
	case ir.LoadImmStat:
		b = app(b, d, "imm %v %d\n", nm(x.Dest), x.Value)
	case ir.LoadStat:
		b = app(b, d, "load %v %v\n", nm(x.Dest), nm(x.Symbol))
	case ir.StoreStat:
		b = app(b, d, "store %v %v\n", nm(x.Symbol), nm(x.Src))
	case ir.LoadAddressOf:
		b = app(b, d, "addr %v %v\n", nm(x.Dest), nm(x.Symbol))
	case ir.PrintStat:
		b = app(b, d, "print %v\n", nm(x.Src))
	case ir.ReadStat:
		b = app(b, d, "read %v\n", nm(x.Dest))
	case ir.BranchStat:
		op := "jump"
		if x.Call {
			op = "call"
		}

		b = app(b, d, "%v %v", op, x.Target)

		if x.Cond != ir.NoSym {
			b = hfmt.Appendf(b, " if %v", nm(x.Cond))
		}

		b = append(b, '\n')
	case ir.EmptyStat:
		b = app(b, d, "empty\n")
	default:
		return nil, errors.New("unsupported statement: %v", ir.Kind(n))
	}

	return b, nil
}

// operands lists every symbol a statement names, whatever its class.
func (f *printer) operands(id ir.ID) (uses, defs []ir.Sym) {
	n, _ := f.p.Node(id)

	switch x := n.(type) {
	case ir.BinStat:
		return []ir.Sym{x.A, x.B}, []ir.Sym{x.Dest}
	case ir.UnaryStat:
		return []ir.Sym{x.Src}, []ir.Sym{x.Dest}
	case ir.LoadImmStat:
		return nil, []ir.Sym{x.Dest}
	case ir.LoadStat:
		return []ir.Sym{x.Symbol}, []ir.Sym{x.Dest}
	case ir.StoreStat:
		return []ir.Sym{x.Src, x.Symbol}, nil
	case ir.LoadAddressOf:
		return []ir.Sym{x.Symbol}, []ir.Sym{x.Dest}
	case ir.PrintStat:
		return []ir.Sym{x.Src}, nil
	case ir.ReadStat:
		return nil, []ir.Sym{x.Dest}
	case ir.BranchStat:
		if x.Cond != ir.NoSym {
			return []ir.Sym{x.Cond}, nil
		}
	}

	return nil, nil
}

func (f *printer) visible(s ir.Sym) bool {
	if _, ok := f.p.Symbol(s); !ok {
		return true // reported by name as is
	}

	for _, sc := range f.scope {
		if _, ok := sc[s]; ok {
			return true
		}
	}

	return false
}

func (f *printer) name(s ir.Sym) string {
	x, ok := f.p.Symbol(s)
	if !ok {
		return string(hfmt.Appendf(nil, "sym%d", s))
	}

	return x.Name
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
