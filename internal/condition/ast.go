package condition

import (
	"fmt"
	"strconv"

	"github.com/Qolorerr/Athena/internal/model"
)

// Reduce names the aggregate applied to a fetched bar series.
type Reduce string

const (
	ReduceLast Reduce = "last" // scalar last value; the default
	ReduceMean Reduce = "mean"
	ReduceMin  Reduce = "min"
	ReduceMax  Reduce = "max"
	ReduceSum  Reduce = "sum"
)

func parseReduce(name string) (Reduce, bool) {
	switch Reduce(name) {
	case ReduceLast, ReduceMean, ReduceMin, ReduceMax, ReduceSum:
		return Reduce(name), true
	}
	return "", false
}

// valueKind is the static type of an expression node: number or boolean.
type valueKind int

const (
	kindNumber valueKind = iota
	kindBool
)

// Node is one expression tree node. The node set is the entire identifier
// allow-list: anything outside it fails to parse.
type Node interface {
	// Kind type-checks the subtree and returns its static type.
	Kind() (valueKind, error)
	// String renders the node in the compiled form.
	String() string
}

// Number is a numeric literal.
type Number struct {
	Value float64
}

func (n *Number) Kind() (valueKind, error) { return kindNumber, nil }

// String renders without exponent notation: the lexer has no e-form, so the
// compiled text must stay within plain decimal literals.
func (n *Number) String() string { return strconv.FormatFloat(n.Value, 'f', -1, 64) }

// Fetch pulls a bar window through the store-keeper and reduces one column
// to a scalar.
type Fetch struct {
	Naming model.TickerNaming
	Start  int // startBar offset, always < End
	End    int // endBar offset, always <= 0
	Column model.Column
	Reduce Reduce
}

func (f *Fetch) Kind() (valueKind, error) { return kindNumber, nil }

func (f *Fetch) String() string {
	return fmt.Sprintf("fetch(%s:%s, %s, %s, %s, %d, %d).%s(%s)",
		f.Naming.Aggregator, f.Naming.Symbol, f.Naming.Span,
		f.Naming.Market, f.Naming.Engine,
		f.Start, f.End, f.Reduce, f.Column.StorageName())
}

// BinOp is an arithmetic operator: + - * / %.
type BinOp struct {
	Op          string
	Left, Right Node
}

func (b *BinOp) Kind() (valueKind, error) {
	return requireKids(kindNumber, kindNumber, b.Left, b.Right, b.Op)
}

func (b *BinOp) String() string { return renderInfix(b.Op, b.Left, b.Right) }

// Compare is a numeric comparison: < <= > >= == !=.
type Compare struct {
	Op          string
	Left, Right Node
}

func (c *Compare) Kind() (valueKind, error) {
	return requireKids(kindNumber, kindBool, c.Left, c.Right, c.Op)
}

func (c *Compare) String() string { return renderInfix(c.Op, c.Left, c.Right) }

// Logical is "and" / "or" over boolean operands.
type Logical struct {
	Op          string
	Left, Right Node
}

func (l *Logical) Kind() (valueKind, error) {
	for _, child := range []Node{l.Left, l.Right} {
		kind, err := child.Kind()
		if err != nil {
			return 0, err
		}
		if kind != kindBool {
			return 0, fmt.Errorf("%w: operand of %q is not boolean", model.ErrWrongCondition, l.Op)
		}
	}
	return kindBool, nil
}

func (l *Logical) String() string { return renderInfix(l.Op, l.Left, l.Right) }

// Not negates a boolean operand.
type Not struct {
	X Node
}

func (n *Not) Kind() (valueKind, error) {
	kind, err := n.X.Kind()
	if err != nil {
		return 0, err
	}
	if kind != kindBool {
		return 0, fmt.Errorf("%w: operand of \"not\" is not boolean", model.ErrWrongCondition)
	}
	return kindBool, nil
}

func (n *Not) String() string { return "not " + wrap(n.X) }

// Neg is unary numeric negation.
type Neg struct {
	X Node
}

func (n *Neg) Kind() (valueKind, error) {
	kind, err := n.X.Kind()
	if err != nil {
		return 0, err
	}
	if kind != kindNumber {
		return 0, fmt.Errorf("%w: operand of unary minus is not numeric", model.ErrWrongCondition)
	}
	return kindNumber, nil
}

func (n *Neg) String() string { return "-" + wrap(n.X) }

// requireKids type-checks both operands against want and returns produce.
func requireKids(want, produce valueKind, left, right Node, op string) (valueKind, error) {
	for _, child := range []Node{left, right} {
		kind, err := child.Kind()
		if err != nil {
			return 0, err
		}
		if kind != want {
			return 0, fmt.Errorf("%w: operand of %q is not numeric", model.ErrWrongCondition, op)
		}
	}
	return produce, nil
}

// renderInfix renders "left op right", parenthesising composite operands so
// the compiled form re-parses with identical structure.
func renderInfix(op string, left, right Node) string {
	return wrap(left) + " " + op + " " + wrap(right)
}

func wrap(n Node) string {
	switch n.(type) {
	case *Number, *Fetch:
		return n.String()
	default:
		return "(" + n.String() + ")"
	}
}
