package tp

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

type (
	Type interface {
		Size() int
		String() string
	}

	Func struct{}

	Int struct {
		Bits   int16
		Signed bool
	}

	Ptr struct {
		X Type
	}

	Array struct {
		Elem Type
		Dims []int
	}
)

// PtrSize is the size of an address on the target.
const PtrSize = 4

var (
	Int8   = Int{Bits: 8, Signed: true}
	Int16  = Int{Bits: 16, Signed: true}
	Int32  = Int{Bits: 32, Signed: true}
	Uint8  = Int{Bits: 8}
	Uint16 = Int{Bits: 16}
	Uint32 = Int{Bits: 32}
)

func (x Int) Size() int {
	return int(x.Bits) / 8
}

func (x Int) String() string {
	if x.Signed {
		return fmt.Sprintf("int%d", x.Bits)
	}

	return fmt.Sprintf("uint%d", x.Bits)
}

func (x Ptr) Size() int {
	return PtrSize
}

func (x Ptr) String() string {
	return "ptr " + x.X.String()
}

func (x Func) Size() int { return 0 }

func (x Func) String() string { return "func" }

func (x Array) Size() int {
	return x.Elem.Size() * x.Len()
}

// Len is the total number of elements across all dimensions.
func (x Array) Len() int {
	n := 1

	for _, d := range x.Dims {
		n *= d
	}

	return n
}

func (x Array) String() string {
	var b strings.Builder

	b.WriteString("array[")

	for i, d := range x.Dims {
		if i != 0 {
			b.WriteString(",")
		}

		fmt.Fprintf(&b, "%d", d)
	}

	b.WriteString("] ")
	b.WriteString(x.Elem.String())

	return b.String()
}

// Offset returns the byte offset of the element at idx using row-major order.
func (x Array) Offset(idx ...int) (int, error) {
	if len(idx) != len(x.Dims) {
		return 0, errors.New("array of %d dims indexed with %d indices", len(x.Dims), len(idx))
	}

	off := 0

	for i, j := range idx {
		if j < 0 || j >= x.Dims[i] {
			return 0, errors.New("index %d out of range [0, %d) in dim %d", j, x.Dims[i], i)
		}

		off = off*x.Dims[i] + j
	}

	return off * x.Elem.Size(), nil
}

// Access returns the type moved by a load or store through a symbol of type t.
func Access(t Type) Type {
	if p, ok := t.(Ptr); ok {
		t = p.X
	}

	for {
		a, ok := t.(Array)
		if !ok {
			return t
		}

		t = a.Elem
	}
}

// Scalar reports whether t is a word, half-word or byte sized integer or a pointer.
func Scalar(t Type) bool {
	switch t := t.(type) {
	case Int:
		return t.Bits == 8 || t.Bits == 16 || t.Bits == 32
	case Ptr:
		return true
	default:
		return false
	}
}

// Signed reports whether loads of t sign-extend.
func Signed(t Type) bool {
	i, ok := t.(Int)

	return ok && i.Signed
}

// Lookup maps a scalar type name to its type.
func Lookup(name string) (Type, bool) {
	switch name {
	case "int", "int32":
		return Int32, true
	case "int16":
		return Int16, true
	case "int8":
		return Int8, true
	case "uint32":
		return Uint32, true
	case "uint16":
		return Uint16, true
	case "uint8", "byte":
		return Uint8, true
	case "func":
		return Func{}, true
	default:
		return nil, false
	}
}
