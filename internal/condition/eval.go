package condition

import (
	"context"
	"fmt"
	"math"

	"github.com/Qolorerr/Athena/internal/model"
)

// Evaluator walks an expression tree bottom-up. Fetch nodes pull data
// through the store-keeper; everything else is pure arithmetic.
type Evaluator struct {
	Keeper model.TickerReader
}

// NewEvaluator creates an evaluator over the given ticker reader.
func NewEvaluator(keeper model.TickerReader) *Evaluator {
	return &Evaluator{Keeper: keeper}
}

// EvalBool evaluates a compiled rule to its truth value. The node must have
// passed Compile, so a non-boolean top level is a programming error surfaced
// as WrongCondition.
func (e *Evaluator) EvalBool(ctx context.Context, node Node) (bool, error) {
	switch n := node.(type) {
	case *Compare:
		left, err := e.evalNumber(ctx, n.Left)
		if err != nil {
			return false, err
		}
		right, err := e.evalNumber(ctx, n.Right)
		if err != nil {
			return false, err
		}
		switch n.Op {
		case "<":
			return left < right, nil
		case "<=":
			return left <= right, nil
		case ">":
			return left > right, nil
		case ">=":
			return left >= right, nil
		case "==":
			return left == right, nil
		case "!=":
			return left != right, nil
		}
		return false, fmt.Errorf("%w: unknown comparison %q", model.ErrWrongCondition, n.Op)

	case *Logical:
		left, err := e.EvalBool(ctx, n.Left)
		if err != nil {
			return false, err
		}
		// Short-circuit keeps fetches sequential and minimal.
		if n.Op == "and" && !left {
			return false, nil
		}
		if n.Op == "or" && left {
			return true, nil
		}
		return e.EvalBool(ctx, n.Right)

	case *Not:
		v, err := e.EvalBool(ctx, n.X)
		if err != nil {
			return false, err
		}
		return !v, nil

	default:
		return false, fmt.Errorf("%w: expression is not boolean", model.ErrWrongCondition)
	}
}

func (e *Evaluator) evalNumber(ctx context.Context, node Node) (float64, error) {
	switch n := node.(type) {
	case *Number:
		return n.Value, nil

	case *Neg:
		v, err := e.evalNumber(ctx, n.X)
		if err != nil {
			return 0, err
		}
		return -v, nil

	case *BinOp:
		left, err := e.evalNumber(ctx, n.Left)
		if err != nil {
			return 0, err
		}
		right, err := e.evalNumber(ctx, n.Right)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", model.ErrWrongCondition)
			}
			return left / right, nil
		case "%":
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", model.ErrWrongCondition)
			}
			return math.Mod(left, right), nil
		}
		return 0, fmt.Errorf("%w: unknown operator %q", model.ErrWrongCondition, n.Op)

	case *Fetch:
		return e.evalFetch(ctx, n)

	default:
		return 0, fmt.Errorf("%w: expression is not numeric", model.ErrWrongCondition)
	}
}

// evalFetch pulls the bar window and reduces the tail of the series.
func (e *Evaluator) evalFetch(ctx context.Context, f *Fetch) (float64, error) {
	rows, err := e.Keeper.GetTicker(ctx, f.Naming, f.Start, f.End)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, &model.FetchError{Aggregator: f.Naming.Aggregator, Err: model.ErrNoData}
	}

	// tail(n): the reduction sees at most the last n bars.
	n := f.End - f.Start
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}

	values := make([]float64, len(rows))
	for i, row := range rows {
		values[i] = row.Value(f.Column)
	}

	switch f.Reduce {
	case ReduceLast:
		return values[len(values)-1], nil
	case ReduceMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case ReduceMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case ReduceMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case ReduceSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, nil
	}
	return 0, fmt.Errorf("%w: unknown reduction %q", model.ErrWrongCondition, f.Reduce)
}
