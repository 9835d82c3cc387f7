package parse

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/participle/lexer"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/francesco-plt/pl0com/compiler/ir"
	"github.com/francesco-plt/pl0com/compiler/tp"
)

type (
	State struct {
		name string
		b    *ir.Builder
	}

	scope struct {
		up   *scope
		syms map[string]ir.Sym
	}

	// PosError is a parse or resolution error at a source position.
	PosError struct {
		File         string
		Line, Column int
		Err          error
	}
)

func ParseFile(ctx context.Context, name string) (*ir.Program, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, name, data)
}

// Parse reads the textual form of a program and builds its IR.
func Parse(ctx context.Context, name string, text []byte) (p *ir.Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "parse", "name", name, "size", len(text))
	defer tr.Finish("err", &err)

	var f file

	err = grammar.ParseString(string(text), &f)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	s := &State{
		name: name,
		b:    ir.NewBuilder(),
	}

	root, err := s.block(f.Block, nil)
	if err != nil {
		return nil, err
	}

	p = s.b.Finish(root)

	if tr.If("dump_ir") {
		tr.Printw("parsed", "nodes", len(p.Nodes), "syms", len(p.Syms))
	}

	return p, nil
}

func (s *State) block(x *block, up *scope) (id ir.ID, err error) {
	sc := &scope{up: up, syms: map[string]ir.Sym{}}

	room, err := s.int(x.Pos, x.StackRoom)
	if err != nil {
		return ir.Nil, err
	}

	var locals []ir.Sym

	for _, d := range x.Syms {
		sym, err := s.symbol(d)
		if err != nil {
			return ir.Nil, err
		}

		if _, ok := sc.syms[sym.Name]; ok {
			return ir.Nil, s.errorf(d.Pos, "%v redeclared in this block", sym.Name)
		}

		id := s.b.Sym(sym)

		sc.syms[sym.Name] = id
		locals = append(locals, id)
	}

	for _, d := range x.Defs {
		if _, ok := sc.syms[d.Name]; ok {
			continue
		}

		id := s.b.Sym(ir.Symbol{Name: d.Name, Type: tp.Func{}, Class: ir.Global})

		sc.syms[d.Name] = id
		locals = append(locals, id)
	}

	stats := make([]ir.ID, 0, len(x.Body))

	for _, st := range x.Body {
		id, err := s.stmt(st, sc)
		if err != nil {
			return ir.Nil, err
		}

		stats = append(stats, id)
	}

	body := s.b.List(stats...)

	var defs []ir.ID

	for _, d := range x.Defs {
		sub, err := s.block(d.Block, sc)
		if err != nil {
			return ir.Nil, errors.Wrap(err, "def %v", d.Name)
		}

		defs = append(defs, s.b.Func(sc.syms[d.Name], sub))
	}

	return s.b.Block(locals, body, defs, room), nil
}

func (s *State) symbol(d *symDecl) (x ir.Symbol, err error) {
	x.Name = d.Name

	x.Type, err = s.typ(d.Pos, d.Type)
	if err != nil {
		return x, err
	}

	switch {
	case d.Reg:
		x.Class = ir.Reg
	case d.Extern:
		x.Class = ir.Global
	case d.Global:
		size, err := s.int(d.Pos, d.Size)
		if err != nil {
			return x, err
		}

		x.Class = ir.Global
		x.Layout = ir.GlobalLayout{Name: d.Link, Size: size}
	case d.Local:
		off, err := s.int(d.Pos, d.Offset)
		if err != nil {
			return x, err
		}

		x.Class = ir.Local
		x.Layout = ir.LocalLayout{Name: d.As, Offset: off}
	default:
		return x, s.errorf(d.Pos, "%v: storage class expected", d.Name)
	}

	return x, nil
}

func (s *State) typ(pos lexer.Position, x *typeExpr) (tp.Type, error) {
	switch {
	case x == nil:
		return nil, s.errorf(pos, "type expected")
	case x.Ptr != nil:
		t, err := s.typ(pos, x.Ptr)
		if err != nil {
			return nil, err
		}

		return tp.Ptr{X: t}, nil
	case len(x.Dims) != 0:
		elem, err := s.typ(pos, x.Elem)
		if err != nil {
			return nil, err
		}

		a := tp.Array{Elem: elem}

		for _, d := range x.Dims {
			n, err := s.int(pos, d)
			if err != nil {
				return nil, err
			}

			if n <= 0 {
				return nil, s.errorf(pos, "bad array dimension: %d", n)
			}

			a.Dims = append(a.Dims, n)
		}

		return a, nil
	}

	t, ok := tp.Lookup(x.Name)
	if !ok {
		return nil, s.errorf(pos, "unknown type: %v", x.Name)
	}

	return t, nil
}

func (s *State) stmt(x *stmt, sc *scope) (id ir.ID, err error) {
	var n ir.Node

	r := resolver{s: s, sc: sc, pos: x.Pos}

	switch {
	case x.Bin != nil:
		n = ir.BinStat{Op: ir.Op(x.Bin.Op), Dest: r.sym(x.Bin.Dest), A: r.sym(x.Bin.A), B: r.sym(x.Bin.B)}
	case x.Un != nil:
		n = ir.UnaryStat{Op: ir.Op(x.Un.Op), Dest: r.sym(x.Un.Dest), Src: r.sym(x.Un.Src)}
	case x.Imm != nil:
		v, err := strconv.ParseInt(x.Imm.Value, 0, 64)
		if err != nil {
			return ir.Nil, s.errorf(x.Pos, "bad immediate: %v", x.Imm.Value)
		}

		n = ir.LoadImmStat{Dest: r.sym(x.Imm.Dest), Value: v}
	case x.Load != nil:
		n = ir.LoadStat{Dest: r.sym(x.Load.X), Symbol: r.sym(x.Load.Y)}
	case x.Store != nil:
		n = ir.StoreStat{Symbol: r.sym(x.Store.X), Src: r.sym(x.Store.Y)}
	case x.Addr != nil:
		n = ir.LoadAddressOf{Dest: r.sym(x.Addr.X), Symbol: r.sym(x.Addr.Y)}
	case x.Print != "":
		n = ir.PrintStat{Src: r.sym(x.Print)}
	case x.Read != "":
		n = ir.ReadStat{Dest: r.sym(x.Read)}
	case x.Jump != nil:
		n = r.branch(x.Jump, false)
	case x.Call != nil:
		n = r.branch(x.Call, true)
	case x.Empty:
		n = ir.EmptyStat{}
	default:
		return ir.Nil, s.errorf(x.Pos, "statement expected")
	}

	if r.err != nil {
		return ir.Nil, r.err
	}

	if x.Label == "" {
		return s.b.Add(n), nil
	}

	return s.b.Labeled(ir.Label(x.Label[:len(x.Label)-1]), n), nil
}

func (s *State) int(pos lexer.Position, v string) (int, error) {
	x, err := strconv.ParseInt(v, 0, 32)
	if err != nil {
		return 0, s.errorf(pos, "bad integer: %q", v)
	}

	return int(x), nil
}

func (s *State) errorf(pos lexer.Position, f string, args ...any) error {
	return PosError{
		File:   s.name,
		Line:   pos.Line,
		Column: pos.Column,
		Err:    errors.New(f, args...),
	}
}

func (sc *scope) lookup(name string) (ir.Sym, bool) {
	for ; sc != nil; sc = sc.up {
		if s, ok := sc.syms[name]; ok {
			return s, true
		}
	}

	return ir.NoSym, false
}

type resolver struct {
	s   *State
	sc  *scope
	pos lexer.Position
	err error
}

func (r *resolver) sym(name string) ir.Sym {
	s, ok := r.sc.lookup(name)
	if !ok && r.err == nil {
		r.err = r.s.errorf(r.pos, "undefined: %v", name)
	}

	return s
}

func (r *resolver) branch(x *branchStmt, call bool) ir.BranchStat {
	st := ir.BranchStat{Target: ir.Label(x.Target), Cond: ir.NoSym, Call: call}

	if x.Cond != "" {
		st.Cond = r.sym(x.Cond)
	}

	return st
}

func (e PosError) Error() string {
	return fmt.Sprintf("%v:%d:%d: %v", e.File, e.Line, e.Column, e.Err)
}

func (e PosError) Unwrap() error { return e.Err }
