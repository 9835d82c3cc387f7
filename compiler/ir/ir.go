package ir

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/francesco-plt/pl0com/compiler/tp"
)

type (
	ID  int
	Sym int

	Label string
	Op    string
	Class int

	Program struct {
		Nodes  []Node
		Labels []Label `tlog:"-"`
		Parent []ID    `tlog:"-"`

		Syms []Symbol

		Root ID
	}

	Symbol struct {
		Name   string
		Type   tp.Type
		Class  Class
		Layout Layout `tlog:",omitempty"`
	}

	Layout interface {
		layout()
	}

	GlobalLayout struct {
		Name string
		Size int
	}

	LocalLayout struct {
		Name   string `tlog:",omitempty"`
		Offset int
	}
)

const (
	Nil   ID  = -1
	NoSym Sym = -1
)

const (
	Reg Class = iota
	Global
	Local
)

const (
	Plus  Op = "plus"
	Minus Op = "minus"
	Times Op = "times"
	Slash Op = "slash"
	Eql   Op = "eql"
	Neq   Op = "neq"
	Lss   Op = "lss"
	Leq   Op = "leq"
	Gtr   Op = "gtr"
	Geq   Op = "geq"
	Odd   Op = "odd"
)

func (GlobalLayout) layout() {}
func (LocalLayout) layout()  {}

func (c Class) String() string {
	switch c {
	case Reg:
		return "reg"
	case Global:
		return "global"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("class%d", int(c))
	}
}

func ParseClass(s string) (Class, error) {
	switch s {
	case "reg":
		return Reg, nil
	case "global":
		return Global, nil
	case "local":
		return Local, nil
	}

	return 0, errors.New("unknown storage class: %q", s)
}

func (p *Program) Node(id ID) (Node, bool) {
	if id < 0 || int(id) >= len(p.Nodes) {
		return nil, false
	}

	return p.Nodes[id], true
}

func (p *Program) Symbol(s Sym) (Symbol, bool) {
	if s < 0 || int(s) >= len(p.Syms) {
		return Symbol{}, false
	}

	return p.Syms[s], true
}

// Label returns the label attached to the statement, if any.
func (p *Program) Label(id ID) Label {
	if id < 0 || int(id) >= len(p.Labels) {
		return ""
	}

	return p.Labels[id]
}

func (p *Program) ParentOf(id ID) ID {
	if id < 0 || int(id) >= len(p.Parent) {
		return Nil
	}

	return p.Parent[id]
}

// Visit dispatches the node to the Visitor method of its variant.
func (p *Program) Visit(v Visitor, id ID) error {
	n, ok := p.Node(id)
	if !ok {
		return errors.New("node %d out of range", id)
	}

	return n.accept(v, id)
}

// Operands returns the register class values the statement reads and writes.
func (p *Program) Operands(id ID) (uses, defs []Sym) {
	n, ok := p.Node(id)
	if !ok {
		return nil, nil
	}

	use := func(s ...Sym) {
		for _, s := range s {
			if p.isReg(s) {
				uses = append(uses, s)
			}
		}
	}

	def := func(s Sym) {
		if p.isReg(s) {
			defs = append(defs, s)
		}
	}

	switch x := n.(type) {
	case BinStat:
		use(x.A, x.B)
		def(x.Dest)
	case UnaryStat:
		use(x.Src)
		def(x.Dest)
	case LoadImmStat:
		def(x.Dest)
	case LoadStat:
		use(x.Symbol)
		def(x.Dest)
	case StoreStat:
		use(x.Src, x.Symbol)
	case LoadAddressOf:
		def(x.Dest)
	case PrintStat:
		use(x.Src)
	case ReadStat:
		def(x.Dest)
	case BranchStat:
		use(x.Cond)
	}

	return uses, defs
}

func (p *Program) isReg(s Sym) bool {
	x, ok := p.Symbol(s)

	return ok && x.Class == Reg
}

// Statements flattens a statement tree into traversal order.
// Containers other than StatList are not descended into.
func (p *Program) Statements(id ID) (r []ID) {
	var walk func(id ID)

	walk = func(id ID) {
		n, ok := p.Node(id)
		if !ok {
			return
		}

		l, ok := n.(StatList)
		if !ok {
			r = append(r, id)
			return
		}

		for _, s := range l.Stats {
			walk(s)
		}
	}

	walk(id)

	return r
}

func (x Symbol) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyValue(b, "name", x.Name)
	b = e.AppendKeyValue(b, "type", typeName(x.Type))
	b = e.AppendKeyValue(b, "class", x.Class.String())

	return b
}

func typeName(t tp.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
