package back

import (
	"strconv"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/ir"
)

// declare emits the storage directive for a symbol of the block.
// Symbols without a layout and unnamed locals need none.
func (g *gen) declare(b []byte, block ir.ID, s ir.Sym) ([]byte, error) {
	sym, ok := g.Symbol(s)
	if !ok {
		return nil, NewMalformedNode(block, "local symbol %d out of range", s)
	}

	switch l := sym.Layout.(type) {
	case nil:
		return b, nil
	case ir.GlobalLayout:
		if sym.Class != ir.Global {
			return nil, NewMalformedNode(block, "%v symbol %v has a global layout", sym.Class, sym.Name)
		}

		if l.Name == "" || l.Size < 0 {
			return nil, NewMalformedNode(block, "global %v: bad layout %+v", sym.Name, l)
		}

		return asm.Directive(b, ".comm", l.Name, strconv.Itoa(l.Size)), nil
	case ir.LocalLayout:
		if sym.Class != ir.Local {
			return nil, NewMalformedNode(block, "%v symbol %v has a local layout", sym.Class, sym.Name)
		}

		if l.Name == "" {
			return b, nil
		}

		return asm.Directive(b, ".equ", l.Name, strconv.Itoa(l.Offset)), nil
	default:
		return nil, NewMalformedNode(block, "%v: unknown layout %T", sym.Name, l)
	}
}
