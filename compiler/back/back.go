package back

import (
	"context"
	"fmt"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/asm/arm"
	"github.com/francesco-plt/pl0com/compiler/ir"
	"github.com/francesco-plt/pl0com/compiler/regalloc"
)

type (
	Mode int

	Options struct {
		Mode Mode

		// Comments annotates every statement with its node.
		Comments bool
	}

	Compiler struct {
		Options
	}

	gen struct {
		*ir.Program

		Options

		a   regalloc.Allocator
		ctx context.Context

		b     []byte
		diags []error
	}
)

const (
	// Strict aborts on the first error.
	Strict Mode = iota

	// Diagnostic replaces failing nodes with an .error directive and goes on.
	Diagnostic
)

var _ ir.Visitor = &gen{}

func New(opts Options) *Compiler {
	return &Compiler{Options: opts}
}

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Diagnostic:
		return "diagnostic"
	default:
		return fmt.Sprintf("mode%d", int(m))
	}
}

// CompileProgram appends the program assembly to b.
// In Diagnostic mode errors of single nodes are returned in diags and err is nil.
func (c *Compiler) CompileProgram(ctx context.Context, a regalloc.Allocator, b []byte, p *ir.Program) (_ []byte, diags []error, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile program", "nodes", len(p.Nodes), "syms", len(p.Syms), "mode", c.Mode)
	defer tr.Finish("err", &err, "diags", &diags)

	if a == nil {
		return nil, nil, errors.New("no register allocator")
	}

	if tr.If("dump_ir") {
		for id, x := range p.Nodes {
			tr.Printw("node", "id", id, "parent", p.ParentOf(ir.ID(id)), "label", p.Label(ir.ID(id)), "typ", tlog.NextAsType, x, "val", x)
		}

		for id, s := range p.Syms {
			tr.Printw("sym", "id", id, "sym", s)
		}
	}

	g := &gen{
		Program: p,
		Options: c.Options,
		a:       a,
		ctx:     ctx,
		b:       b,
	}

	g.b = asm.Directive(g.b, ".text")
	g.b = asm.Directive(g.b, ".arch", arm.Arch)
	g.b = asm.Directive(g.b, ".syntax", "unified")

	err = g.guard(p.Root, func() error {
		n, ok := p.Node(p.Root)
		if !ok {
			return NewMalformedNode(p.Root, "no root block")
		}

		if _, ok := n.(ir.Block); !ok {
			return NewMalformedNode(p.Root, "root is %v, expected Block", ir.Kind(n))
		}

		return p.Visit(g, p.Root)
	})
	if err != nil {
		return nil, nil, err
	}

	if tr.If("omit_out") {
		g.b = b
	}

	return g.b, g.diags, nil
}

// guard runs f for the node. In Diagnostic mode a failure discards
// what f appended and leaves an .error directive in its place.
func (g *gen) guard(id ir.ID, f func() error) error {
	st := len(g.b)

	err := f()
	if err == nil || g.Mode != Diagnostic {
		return err
	}

	tlog.SpanFromContext(g.ctx).Printw("ungenerated node", "id", id, "err", err)

	g.b = g.b[:st]
	g.b = asm.Directive(g.b, ".error", strconv.Quote(fmt.Sprintf("ungenerated node %d: %s", id, reason(err))))
	g.diags = append(g.diags, err)

	return nil
}

func (g *gen) Block(id ir.ID, x ir.Block) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(g.ctx, "back: block", "id", id, "locals", len(x.Locals), "stackroom", x.StackRoom)
	defer tr.Finish("err", &err)

	defer func(ctx context.Context) { g.ctx = ctx }(g.ctx)
	g.ctx = ctx

	for _, s := range x.Locals {
		b, err := g.declare(g.b, id, s)
		if err != nil {
			return err
		}

		g.b = b
	}

	if g.ParentOf(id) == ir.Nil {
		g.b = asm.Directive(g.b, ".global", arm.Entry)
		g.b = asm.Labeled(g.b, arm.Entry)
	}

	if x.StackRoom < 0 {
		return NewMalformedNode(id, "negative stackroom %d", x.StackRoom)
	}

	if err = g.a.EnterFunction(g.Program, id); err != nil {
		return NewMalformedNode(id, "enter function: %v", err)
	}

	outer := g.b
	g.b = nil

	if x.Body != ir.Nil {
		err = g.stat(x.Body)
	}

	body := g.b
	g.b = outer

	if err != nil {
		return err
	}

	frame := x.StackRoom + g.a.SpillRoom()

	tr.V("frame").Printw("frame", "stackroom", x.StackRoom, "spill_room", g.a.SpillRoom(), "frame", frame)

	g.b = asm.Ins(g.b, "push", arm.Saved)
	g.b = asm.Ins(g.b, "mov", arm.FP, arm.SP)

	b, err := g.frame(g.b, id, frame)
	if err != nil {
		return err
	}

	g.b = append(b, body...)

	g.b = asm.Ins(g.b, "mov", arm.SP, arm.FP)
	g.b = asm.Ins(g.b, "pop", arm.Saved)
	g.b = asm.Ins(g.b, "bx", arm.LR)
	g.b = asm.Directive(g.b, ".ltorg")

	if x.Defs == ir.Nil {
		return nil
	}

	n, ok := g.Node(x.Defs)
	if !ok {
		return NewMalformedNode(id, "defs node %d out of range", x.Defs)
	}

	if _, ok := n.(ir.DefinitionList); !ok {
		return NewMalformedNode(x.Defs, "defs is %v, expected DefinitionList", ir.Kind(n))
	}

	return g.Visit(g, x.Defs)
}

// frame reserves the stack frame below the saved registers.
func (g *gen) frame(b []byte, id ir.ID, frame int) ([]byte, error) {
	if arm.ModImm(uint32(frame)) {
		return asm.Ins(b, "sub", arm.SP, arm.SP, asm.Imm(frame)), nil
	}

	if frame > 0xffff {
		return nil, NewUnencodableImmediate(id, "frame size", int64(frame))
	}

	b = asm.Ins(b, "movw", arm.IP, asm.Imm(frame))

	return asm.Ins(b, "sub", arm.SP, arm.SP, arm.IP), nil
}

func (g *gen) DefinitionList(id ir.ID, x ir.DefinitionList) error {
	for _, d := range x.Defs {
		err := g.guard(d, func() error {
			n, ok := g.Node(d)
			if !ok {
				return NewMalformedNode(id, "definition %d out of range", d)
			}

			if _, ok := n.(ir.FunctionDef); !ok {
				return NewMalformedNode(d, "%v in definition list", ir.Kind(n))
			}

			return g.Visit(g, d)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (g *gen) FunctionDef(id ir.ID, x ir.FunctionDef) error {
	s, ok := g.Symbol(x.Symbol)
	if !ok {
		return NewMalformedNode(id, "function symbol %d out of range", x.Symbol)
	}

	if s.Name == "" {
		return NewMalformedNode(id, "function without a name")
	}

	n, ok := g.Node(x.Body)
	if !ok {
		return NewMalformedNode(id, "function %v has no body", s.Name)
	}

	if _, ok := n.(ir.Block); !ok {
		return NewMalformedNode(id, "function %v body is %v, expected Block", s.Name, ir.Kind(n))
	}

	g.b = append(g.b, '\n')
	g.b = asm.Labeled(g.b, s.Name)

	return g.Visit(g, x.Body)
}

func (g *gen) StatList(id ir.ID, x ir.StatList) error {
	for _, s := range x.Stats {
		if err := g.stat(s); err != nil {
			return err
		}
	}

	return nil
}

// stat generates a statement or a statement list.
func (g *gen) stat(id ir.ID) error {
	n, ok := g.Node(id)
	if !ok {
		return g.guard(id, func() error {
			return NewMalformedNode(id, "statement out of range")
		})
	}

	if _, ok := n.(ir.StatList); ok {
		return g.Visit(g, id)
	}

	g.a.Barrier()

	if l := g.Label(id); l != "" {
		g.b = asm.Labeled(g.b, string(l))
	}

	if g.Comments {
		g.b = asm.Comment(g.b, "node %d %s", id, ir.Kind(n))
	}

	return g.guard(id, func() error {
		switch n.(type) {
		case ir.Block, ir.DefinitionList, ir.FunctionDef:
			return NewMalformedNode(id, "%v in statement position", ir.Kind(n))
		}

		return g.Visit(g, id)
	})
}
