package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/francesco-plt/pl0com/compiler/asm"
	"github.com/francesco-plt/pl0com/compiler/asm/arm"
)

type (
	Machine struct {
		Regs [16]uint32

		N, Z, C, V bool

		Mem []byte

		Input []int32
		Out   io.Writer

		MaxSteps int
		Steps    int

		img *Image
		pc  int
	}

	// RuntimeError is an execution fault at a source line.
	RuntimeError struct {
		Line int
		Ins  string
		Err  error
	}
)

const (
	MemSize  = 1 << 20
	CodeBase = 0x10000000
	Halt     = 0xfffffff0

	DefaultMaxSteps = 1_000_000

	// clobbered is what the runtime leaves in caller save registers.
	clobbered = 0xdeadbeef
)

var (
	ErrStepLimit = errors.New("step limit exceeded")
	ErrNoInput   = errors.New("input exhausted")
)

var condOps = map[string]bool{
	"mov": true, "mvn": true, "add": true, "sub": true, "b": true, "bl": true,
}

var binOps = map[string]func(a, b uint32) uint32{
	"add": func(a, b uint32) uint32 { return a + b },
	"sub": func(a, b uint32) uint32 { return a - b },
	"rsb": func(a, b uint32) uint32 { return b - a },
	"mul": func(a, b uint32) uint32 { return a * b },
	"and": func(a, b uint32) uint32 { return a & b },
	"orr": func(a, b uint32) uint32 { return a | b },
	"eor": func(a, b uint32) uint32 { return a ^ b },
	"sdiv": func(a, b uint32) uint32 {
		switch {
		case b == 0:
			return 0
		case int32(a) == -1<<31 && int32(b) == -1:
			return a
		}

		return uint32(int32(a) / int32(b))
	},
}

// Run loads and executes the listing starting at the entry label.
func Run(ctx context.Context, text []byte, input []int32, out io.Writer) error {
	img, err := Load(text)
	if err != nil {
		return errors.Wrap(err, "load")
	}

	m := New(img)
	m.Input = input
	m.Out = out

	return m.Run(ctx)
}

func New(img *Image) *Machine {
	m := &Machine{
		Mem:      make([]byte, MemSize),
		MaxSteps: DefaultMaxSteps,
		img:      img,
	}

	m.Regs[arm.SP] = MemSize
	m.Regs[arm.FP] = MemSize
	m.Regs[arm.LR] = Halt

	return m
}

func (m *Machine) Run(ctx context.Context) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "sim: run", "ins", len(m.img.Ins))
	defer tr.Finish("err", &err, "steps", &m.Steps)

	if m.img.DataSize > uint32(len(m.Mem)) {
		return errors.New("data segment does not fit memory: %d", m.img.DataSize)
	}

	entry, ok := m.img.Labels[arm.Entry]
	if !ok {
		return errors.New("no entry label %v", arm.Entry)
	}

	m.pc = entry

	for {
		if m.pc == -1 {
			return nil
		}

		if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
			return ErrStepLimit
		}

		if m.pc < 0 || m.pc >= len(m.img.Ins) {
			return errors.New("pc out of code: %d", m.pc)
		}

		in := m.img.Ins[m.pc]
		m.Steps++

		if tr.If("sim_step") {
			tr.Printw("step", "pc", m.pc, "line", in.Line, "op", in.Op, "args", in.Args)
		}

		next, err := m.step(in)
		if err != nil {
			return &RuntimeError{Line: in.Line, Ins: in.Op + " " + strings.Join(in.Args, ", "), Err: err}
		}

		m.pc = next
	}
}

// Reg returns the register as a signed value.
func (m *Machine) Reg(r asm.Reg) int32 {
	return int32(m.Regs[r])
}

func (m *Machine) step(in Ins) (next int, err error) {
	next = m.pc + 1

	op, cond := m.decode(in.Op)
	if op == "" {
		return 0, errors.New("unsupported instruction %v", in.Op)
	}

	if cond != "" && !m.holds(cond) {
		return next, nil
	}

	args := in.Args

	var a, b, v uint32

	switch op {
	case "mov", "mvn":
		if err = need(args, 2); err != nil {
			return
		}

		if v, err = m.operand(args[1]); err != nil {
			return
		}

		if op == "mvn" {
			v = ^v
		}

		err = m.set(args[0], v)
	case "movw", "movt":
		if err = need(args, 2); err != nil {
			return
		}

		if v, err = m.operand(args[1]); err != nil {
			return
		}

		if v > 0xffff {
			return 0, errors.New("%v: immediate out of range: %d", op, v)
		}

		if op == "movt" {
			if a, err = m.operand(args[0]); err != nil {
				return
			}

			v = a&0xffff | v<<16
		}

		err = m.set(args[0], v)
	case "cmp", "tst":
		if err = need(args, 2); err != nil {
			return
		}

		if a, err = m.operand(args[0]); err != nil {
			return
		}

		if b, err = m.operand(args[1]); err != nil {
			return
		}

		if op == "tst" {
			m.flags(a&b, m.C, m.V)
			break
		}

		r := a - b
		m.flags(r, a >= b, ((a^b)&(a^r))>>31 != 0)
	case "ldr", "ldrb", "ldrsb", "ldrh", "ldrsh":
		err = m.load(op, args)
	case "str", "strb", "strh":
		err = m.store(op, args)
	case "push", "pop":
		if err = need(args, 1); err != nil {
			return
		}

		err = m.stack(op, args[0])
	case "b":
		if err = need(args, 1); err != nil {
			return
		}

		return m.target(args[0])
	case "bl":
		if err = need(args, 1); err != nil {
			return
		}

		return m.call(args[0])
	case "bx":
		if err = need(args, 1); err != nil {
			return
		}

		if v, err = m.operand(args[0]); err != nil {
			return
		}

		return m.codeIndex(v)
	default:
		if len(args) == 2 {
			args = []string{args[0], args[0], args[1]}
		}

		if err = need(args, 3); err != nil {
			return
		}

		if a, err = m.operand(args[1]); err != nil {
			return
		}

		if b, err = m.operand(args[2]); err != nil {
			return
		}

		err = m.set(args[0], binOps[op](a, b))
	}

	return next, err
}

// decode splits a mnemonic into its base and condition.
// Exact mnemonics win so bl is never read as b with a condition.
func (m *Machine) decode(op string) (base, cond string) {
	switch op {
	case "mov", "mvn", "movw", "movt", "cmp", "tst", "b", "bl", "bx",
		"ldr", "ldrb", "ldrsb", "ldrh", "ldrsh", "str", "strb", "strh", "push", "pop":
		return op, ""
	}

	if _, ok := binOps[op]; ok {
		return op, ""
	}

	if l := len(op); l > 2 {
		base, cond = op[:l-2], op[l-2:]

		switch asm.Cond(cond) {
		case asm.EQ, asm.NE, asm.LT, asm.LE, asm.GT, asm.GE:
		default:
			return "", ""
		}

		if _, ok := binOps[base]; ok || condOps[base] {
			return base, cond
		}
	}

	return "", ""
}

func (m *Machine) holds(c string) bool {
	switch asm.Cond(c) {
	case asm.EQ:
		return m.Z
	case asm.NE:
		return !m.Z
	case asm.LT:
		return m.N != m.V
	case asm.LE:
		return m.Z || m.N != m.V
	case asm.GT:
		return !m.Z && m.N == m.V
	case asm.GE:
		return m.N == m.V
	default:
		return false
	}
}

func (m *Machine) flags(r uint32, c, v bool) {
	m.N = int32(r) < 0
	m.Z = r == 0
	m.C = c
	m.V = v
}

func (m *Machine) call(name string) (int, error) {
	switch name {
	case arm.PrintFunc:
		if m.Out != nil {
			fmt.Fprintf(m.Out, "%d\n", int32(m.Regs[arm.Arg]))
		}

		m.clobber(arm.R0, arm.R1, arm.R2, arm.R3, arm.IP)

		return m.pc + 1, nil
	case arm.ReadFunc:
		if len(m.Input) == 0 {
			return 0, ErrNoInput
		}

		m.Regs[arm.Result] = uint32(m.Input[0])
		m.Input = m.Input[1:]

		m.clobber(arm.R1, arm.R2, arm.R3, arm.IP)

		return m.pc + 1, nil
	}

	next, err := m.target(name)
	if err != nil {
		return 0, err
	}

	m.Regs[arm.LR] = CodeBase + 4*uint32(m.pc+1)

	return next, nil
}

func (m *Machine) clobber(rs ...asm.Reg) {
	for _, r := range rs {
		m.Regs[r] = clobbered
	}
}

func (m *Machine) target(name string) (int, error) {
	p, ok := m.img.Target(name, m.pc)
	if !ok {
		return 0, errors.New("undefined label %v", name)
	}

	return p, nil
}

func (m *Machine) codeIndex(addr uint32) (int, error) {
	if addr == Halt {
		return -1, nil
	}

	if addr < CodeBase || (addr-CodeBase)%4 != 0 || int((addr-CodeBase)/4) > len(m.img.Ins) {
		return 0, errors.New("bad return address %#x", addr)
	}

	return int((addr - CodeBase) / 4), nil
}

func (m *Machine) load(op string, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}

	if strings.HasPrefix(args[1], "=") {
		v, err := m.literal(args[1][1:])
		if err != nil {
			return err
		}

		return m.set(args[0], v)
	}

	addr, err := m.address(args[1])
	if err != nil {
		return err
	}

	var v uint32

	switch op {
	case "ldr":
		v, err = m.read(addr, 4)
	case "ldrb":
		v, err = m.read(addr, 1)
	case "ldrh":
		v, err = m.read(addr, 2)
	case "ldrsb":
		v, err = m.read(addr, 1)
		v = uint32(int32(int8(v)))
	case "ldrsh":
		v, err = m.read(addr, 2)
		v = uint32(int32(int16(v)))
	}

	if err != nil {
		return err
	}

	return m.set(args[0], v)
}

func (m *Machine) store(op string, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}

	r, err := m.reg(args[0])
	if err != nil {
		return err
	}

	addr, err := m.address(args[1])
	if err != nil {
		return err
	}

	size := 4

	switch op {
	case "strb":
		size = 1
	case "strh":
		size = 2
	}

	return m.write(addr, size, m.Regs[r])
}

func (m *Machine) stack(op, list string) error {
	rs, err := parseRegList(list)
	if err != nil {
		return err
	}

	sp := m.Regs[arm.SP]

	if op == "push" {
		sp -= 4 * uint32(len(rs))

		for i, r := range rs {
			if err := m.write(sp+4*uint32(i), 4, m.Regs[r]); err != nil {
				return err
			}
		}

		m.Regs[arm.SP] = sp

		return nil
	}

	vals := make([]uint32, len(rs))

	for i := range rs {
		v, err := m.read(sp+4*uint32(i), 4)
		if err != nil {
			return err
		}

		vals[i] = v
	}

	for i, r := range rs {
		m.Regs[r] = vals[i]
	}

	m.Regs[arm.SP] = sp + 4*uint32(len(rs))

	return nil
}

func (m *Machine) read(addr uint32, size int) (uint32, error) {
	if uint64(addr)+uint64(size) > uint64(len(m.Mem)) || addr < DataBase {
		return 0, errors.New("read out of memory: %#x", addr)
	}

	switch size {
	case 1:
		return uint32(m.Mem[addr]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(m.Mem[addr:])), nil
	default:
		return binary.LittleEndian.Uint32(m.Mem[addr:]), nil
	}
}

func (m *Machine) write(addr uint32, size int, v uint32) error {
	if uint64(addr)+uint64(size) > uint64(len(m.Mem)) || addr < DataBase {
		return errors.New("write out of memory: %#x", addr)
	}

	switch size {
	case 1:
		m.Mem[addr] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(m.Mem[addr:], uint16(v))
	default:
		binary.LittleEndian.PutUint32(m.Mem[addr:], v)
	}

	return nil
}

// address evaluates [base], [base, #off] and [base, reg].
func (m *Machine) address(s string) (uint32, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return 0, errors.New("bad memory operand %q", s)
	}

	parts := strings.Split(s[1:len(s)-1], ",")

	base, err := m.reg(parts[0])
	if err != nil {
		return 0, err
	}

	addr := m.Regs[base]

	switch len(parts) {
	case 1:
	case 2:
		off, err := m.operand(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, err
		}

		addr += off
	default:
		return 0, errors.New("bad memory operand %q", s)
	}

	return addr, nil
}

func (m *Machine) literal(name string) (uint32, error) {
	if a, ok := m.img.Comm[name]; ok {
		return a, nil
	}

	if v, ok := m.img.Equ[name]; ok {
		return uint32(v), nil
	}

	if v, err := strconv.ParseInt(name, 0, 64); err == nil {
		return uint32(v), nil
	}

	return 0, errors.New("undefined symbol %v", name)
}

// operand evaluates a register or an immediate.
func (m *Machine) operand(s string) (uint32, error) {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "#") {
		r, err := m.reg(s)
		if err != nil {
			return 0, err
		}

		return m.Regs[r], nil
	}

	s = s[1:]

	if v, ok := m.img.Equ[s]; ok {
		return uint32(v), nil
	}

	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, errors.New("bad immediate #%v", s)
	}

	return uint32(v), nil
}

func (m *Machine) reg(s string) (asm.Reg, error) {
	r, ok := asm.ParseReg(s)
	if !ok {
		return 0, errors.New("bad register %q", s)
	}

	return r, nil
}

func (m *Machine) set(s string, v uint32) error {
	r, err := m.reg(s)
	if err != nil {
		return err
	}

	if r == arm.PC {
		return errors.New("writing pc is not supported")
	}

	m.Regs[r] = v

	return nil
}

func parseRegList(s string) (l asm.RegList, err error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, errors.New("bad register list %q", s)
	}

	for _, p := range strings.Split(s[1:len(s)-1], ",") {
		lo, hi, rng := strings.Cut(strings.TrimSpace(p), "-")

		a, ok := asm.ParseReg(lo)
		if !ok {
			return nil, errors.New("bad register %q in %q", lo, s)
		}

		if !rng {
			l = append(l, a)
			continue
		}

		b, ok := asm.ParseReg(hi)
		if !ok || b < a {
			return nil, errors.New("bad register range %q in %q", p, s)
		}

		for r := a; r <= b; r++ {
			l = append(l, r)
		}
	}

	for i := 1; i < len(l); i++ {
		if l[i] <= l[i-1] {
			return nil, errors.New("register list not ascending: %q", s)
		}
	}

	return l, nil
}

func need(args []string, n int) error {
	if len(args) != n {
		return errors.New("expected %d operands, got %d", n, len(args))
	}

	return nil
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("line %d: %v: %v", e.Line, e.Ins, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
