package back

import (
	"fmt"

	"tlog.app/go/loc"

	"github.com/francesco-plt/pl0com/compiler/ir"
)

type (
	UnsupportedOperatorError struct {
		Node ir.ID
		Op   ir.Op

		From loc.PC
	}

	MalformedNodeError struct {
		Node   ir.ID
		Reason string

		From loc.PC
	}

	UnencodableImmediateError struct {
		Node  ir.ID
		What  string
		Value int64

		From loc.PC
	}
)

func NewUnsupportedOperator(id ir.ID, op ir.Op) UnsupportedOperatorError {
	return UnsupportedOperatorError{Node: id, Op: op, From: loc.Caller(1)}
}

func NewMalformedNode(id ir.ID, f string, args ...any) MalformedNodeError {
	return MalformedNodeError{Node: id, Reason: fmt.Sprintf(f, args...), From: loc.Caller(1)}
}

func NewUnencodableImmediate(id ir.ID, what string, v int64) UnencodableImmediateError {
	return UnencodableImmediateError{Node: id, What: what, Value: v, From: loc.Caller(1)}
}

func (e UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Node, e.reason())
}

func (e MalformedNodeError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Node, e.reason())
}

func (e UnencodableImmediateError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Node, e.reason())
}

func (e UnsupportedOperatorError) reason() string {
	return fmt.Sprintf("unsupported operator %q", e.Op)
}

func (e MalformedNodeError) reason() string {
	return "malformed: " + e.Reason
}

func (e UnencodableImmediateError) reason() string {
	return fmt.Sprintf("unencodable %v: %d", e.What, e.Value)
}

// reason is the error text without the node prefix.
func reason(err error) string {
	switch e := err.(type) {
	case UnsupportedOperatorError:
		return e.reason()
	case MalformedNodeError:
		return e.reason()
	case UnencodableImmediateError:
		return e.reason()
	default:
		return err.Error()
	}
}
