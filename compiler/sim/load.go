// Package sim executes the subset of 32-bit ARM assembly the code generator emits.
package sim

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

type (
	// Image is a loaded assembly listing.
	Image struct {
		Ins []Ins

		Labels map[string]int
		Local  map[string][]int

		Equ  map[string]int64
		Comm map[string]uint32

		DataSize uint32
	}

	Ins struct {
		Op   string
		Args []string
		Line int
	}

	parsedLine struct {
		line   int
		labels []string
		op     string
		args   []string
	}
)

const (
	DataBase = 0x1000
)

var ignored = map[string]bool{
	".text": true, ".data": true, ".arch": true, ".syntax": true,
	".global": true, ".globl": true, ".ltorg": true, ".align": true,
	".type": true, ".size": true,
}

// Load runs both passes: labels and storage first, then instructions.
func Load(text []byte) (*Image, error) {
	img := &Image{
		Labels: map[string]int{},
		Local:  map[string][]int{},
		Equ:    map[string]int64{},
		Comm:   map[string]uint32{},
	}

	var lines []parsedLine

	for i, raw := range strings.Split(string(text), "\n") {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}

		lines = append(lines, p)
	}

	if err := img.pass1(lines); err != nil {
		return nil, err
	}

	// constants are substituted with the value they have at the point of use
	equ := map[string]int64{}

	for _, p := range lines {
		if p.op == ".equ" || p.op == ".set" {
			equ[p.args[0]], _ = strconv.ParseInt(p.args[1], 0, 64)
		}

		if p.op == "" || p.op[0] == '.' {
			continue
		}

		args := make([]string, len(p.args))

		for i, a := range p.args {
			args[i] = subst(a, equ)
		}

		img.Ins = append(img.Ins, Ins{Op: p.op, Args: args, Line: p.line})
	}

	return img, nil
}

func (img *Image) pass1(lines []parsedLine) error {
	n := 0
	data := uint32(DataBase)

	for _, p := range lines {
		for _, l := range p.labels {
			if isNumeric(l) {
				img.Local[l] = append(img.Local[l], n)
				continue
			}

			if _, ok := img.Labels[l]; ok {
				return errors.New("line %d: duplicate label %q", p.line, l)
			}

			img.Labels[l] = n
		}

		switch {
		case p.op == "":
		case p.op == ".comm":
			if len(p.args) < 2 {
				return errors.New("line %d: .comm: expected name and size", p.line)
			}

			size, err := strconv.ParseInt(p.args[1], 0, 32)
			if err != nil || size < 0 {
				return errors.New("line %d: .comm: bad size %q", p.line, p.args[1])
			}

			data = (data + 3) &^ 3
			img.Comm[p.args[0]] = data
			data += uint32(size)
		case p.op == ".equ" || p.op == ".set":
			if len(p.args) != 2 {
				return errors.New("line %d: %v: expected name and value", p.line, p.op)
			}

			v, err := strconv.ParseInt(p.args[1], 0, 64)
			if err != nil {
				return errors.New("line %d: %v: bad value %q", p.line, p.op, p.args[1])
			}

			img.Equ[p.args[0]] = v
		case p.op == ".error":
			return errors.New("line %d: .error %v", p.line, strings.Join(p.args, ", "))
		case p.op[0] == '.':
			if !ignored[p.op] {
				return errors.New("line %d: unsupported directive %v", p.line, p.op)
			}
		default:
			n++
		}
	}

	img.DataSize = data

	return nil
}

// Target resolves a branch target referenced from instruction at.
// Numeric labels are referenced as 1f (next definition) or 1b (previous).
func (img *Image) Target(name string, at int) (int, bool) {
	if l := len(name); l > 1 && (name[l-1] == 'f' || name[l-1] == 'b') && isNumeric(name[:l-1]) {
		defs := img.Local[name[:l-1]]

		if name[l-1] == 'f' {
			for _, p := range defs {
				if p > at {
					return p, true
				}
			}

			return 0, false
		}

		for i := len(defs) - 1; i >= 0; i-- {
			if defs[i] <= at {
				return defs[i], true
			}
		}

		return 0, false
	}

	p, ok := img.Labels[name]

	return p, ok
}

func parseLine(raw string, line int) (p parsedLine, err error) {
	p.line = line

	s := raw

	if i := strings.IndexByte(s, '@'); i >= 0 && !inQuotes(s, i) {
		s = s[:i]
	}

	s = strings.TrimSpace(s)

	for {
		i := strings.IndexByte(s, ':')
		if i < 0 || inQuotes(s, i) || !isIdent(s[:i]) {
			break
		}

		p.labels = append(p.labels, s[:i])
		s = strings.TrimSpace(s[i+1:])
	}

	if s == "" {
		return p, nil
	}

	op, rest := s, ""
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		op, rest = s[:i], s[i+1:]
	}

	p.op = strings.ToLower(op)

	p.args, err = splitArgs(strings.TrimSpace(rest))
	if err != nil {
		return p, errors.Wrap(err, "line %d", line)
	}

	return p, nil
}

// splitArgs splits on commas outside of brackets, braces and quotes.
func splitArgs(s string) (r []string, err error) {
	if s == "" {
		return nil, nil
	}

	depth := 0
	quoted := false
	st := 0

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			r = append(r, strings.TrimSpace(s[st:i]))
			st = i + 1
		}
	}

	if depth != 0 || quoted {
		return nil, errors.New("unbalanced operands: %q", s)
	}

	r = append(r, strings.TrimSpace(s[st:]))

	return r, nil
}

// subst replaces #name immediates with their values.
func subst(a string, equ map[string]int64) string {
	var b []byte

	for i := 0; i < len(a); i++ {
		if a[i] != '#' {
			b = append(b, a[i])
			continue
		}

		j := i + 1
		for j < len(a) && isIdent(a[j:j+1]) {
			j++
		}

		v, ok := equ[a[i+1:j]]
		if !ok || isNumeric(a[i+1:j]) {
			b = append(b, a[i:j]...)
		} else {
			b = append(b, '#')
			b = strconv.AppendInt(b, v, 10)
		}

		i = j - 1
	}

	return string(b)
}

func inQuotes(s string, pos int) bool {
	return strings.Count(s[:pos], `"`)%2 == 1
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if !(c == '_' || c == '.' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}

	return true
}
