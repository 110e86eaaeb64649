package condition

import (
	"fmt"
	"math"

	"github.com/Qolorerr/Athena/internal/model"
)

// Compile parses a rule (surface or compiled form) and type-checks it. The
// top-level expression must be boolean.
func Compile(text string) (Node, error) {
	node, err := Parse(text)
	if err != nil {
		return nil, err
	}
	kind, err := node.Kind()
	if err != nil {
		return nil, err
	}
	if kind != kindBool {
		return nil, fmt.Errorf("%w: expression is not boolean", model.ErrWrongCondition)
	}
	return node, nil
}

// Parse parses a rule without the top-level boolean requirement. Both the
// surface "#..." references and the compiled "fetch(...)" calls are accepted.
func Parse(text string) (Node, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s after expression", model.ErrWrongCondition, p.peek())
	}
	return node, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, fmt.Errorf("%w: expected %s, got %s", model.ErrWrongCondition, what, t)
	}
	return t, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[tokenKind]string{
	tokLT: "<", tokLE: "<=", tokGT: ">", tokGE: ">=", tokEQ: "==", tokNE: "!=",
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	op, ok := compareOps[p.peek().kind]
	if !ok {
		return left, nil
	}
	p.next()
	right, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if _, chained := compareOps[p.peek().kind]; chained {
		return nil, fmt.Errorf("%w: chained comparisons are not supported", model.ErrWrongCondition)
	}
	return &Compare{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseAdd() (Node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().kind {
		case tokPlus:
			op = "+"
		case tokMinus:
			op = "-"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMul() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().kind {
		case tokStar:
			op = "*"
		case tokSlash:
			op = "/"
		case tokPercent:
			op = "%"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Neg{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch t := p.peek(); t.kind {
	case tokNumber:
		p.next()
		return &Number{Value: t.num}, nil

	case tokLParen:
		p.next()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return node, nil

	case tokHash:
		p.next()
		return p.parseTickerRef()

	case tokIdent:
		if t.text == "fetch" {
			p.next()
			return p.parseCompiledFetch()
		}
		return nil, fmt.Errorf("%w: identifier %q is not allowed", model.ErrWrongCondition, t.text)

	default:
		return nil, fmt.Errorf("%w: unexpected %s", model.ErrWrongCondition, t)
	}
}

// parseTickerRef parses the surface reference after the leading '#':
//
//	[AGG ':'] NAME '.' COLUMN '[' [n] LETTER [':' rewind] ']' [ '.' FUNC '(' ')' ]
func (p *parser) parseTickerRef() (Node, error) {
	first, err := p.expect(tokIdent, "ticker name")
	if err != nil {
		return nil, err
	}

	agg := model.AggregatorMOEX
	name := first.text
	if p.peek().kind == tokColon {
		p.next()
		agg, err = model.ParseAggregatorCode(first.text)
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(tokIdent, "ticker name")
		if err != nil {
			return nil, err
		}
		name = nameTok.text
	}

	if _, err := p.expect(tokDot, `"."`); err != nil {
		return nil, err
	}
	colTok, err := p.expect(tokIdent, "column")
	if err != nil {
		return nil, err
	}
	col, err := model.ParseColumn(colTok.text)
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokLBracket, `"["`); err != nil {
		return nil, err
	}

	n := 1
	if p.peek().kind == tokNumber {
		numTok := p.next()
		n, err = barCount(numTok.num)
		if err != nil {
			return nil, err
		}
	}

	letterTok, err := p.expect(tokIdent, "time span letter")
	if err != nil {
		return nil, err
	}
	span, err := model.ParseSpanLetter(letterTok.text)
	if err != nil {
		return nil, err
	}

	// The rewind is accepted both inside the brackets ("[2H:-1]") and
	// right after them ("[2H]:-1").
	rewind := 0
	haveRewind := false
	if p.peek().kind == tokColon {
		rewind, err = p.parseRewind()
		if err != nil {
			return nil, err
		}
		haveRewind = true
	}

	if _, err := p.expect(tokRBracket, `"]"`); err != nil {
		return nil, err
	}

	if !haveRewind && p.peek().kind == tokColon {
		rewind, err = p.parseRewind()
		if err != nil {
			return nil, err
		}
	}

	reduce := ReduceLast
	if p.peek().kind == tokDot {
		p.next()
		fnTok, err := p.expect(tokIdent, "reduction")
		if err != nil {
			return nil, err
		}
		fn, ok := parseReduce(fnTok.text)
		if !ok || fn == ReduceLast {
			return nil, fmt.Errorf("%w: unknown reduction %q", model.ErrWrongCondition, fnTok.text)
		}
		reduce = fn
		if _, err := p.expect(tokLParen, `"("`); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
	}

	if err := checkColumn(agg, col); err != nil {
		return nil, err
	}

	return &Fetch{
		Naming: model.NewTickerNaming(name, agg, span),
		Start:  rewind - n,
		End:    rewind,
		Column: col,
		Reduce: reduce,
	}, nil
}

// parseCompiledFetch parses the rewritten form after the "fetch" identifier:
//
//	'(' AGG ':' SYMBOL ',' SPAN ',' MARKET ',' ENGINE ',' START ',' END ')'
//	'.' REDUCE '(' STORAGE_COLUMN ')'
func (p *parser) parseCompiledFetch() (Node, error) {
	if _, err := p.expect(tokLParen, `"("`); err != nil {
		return nil, err
	}
	aggTok, err := p.expect(tokIdent, "aggregator")
	if err != nil {
		return nil, err
	}
	agg, err := model.ParseAggregator(aggTok.text)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, `":"`); err != nil {
		return nil, err
	}
	symTok, err := p.expect(tokIdent, "symbol")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, `","`); err != nil {
		return nil, err
	}
	spanTok, err := p.expect(tokIdent, "time span")
	if err != nil {
		return nil, err
	}
	span, err := model.ParseSpan(spanTok.text)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, `","`); err != nil {
		return nil, err
	}
	marketTok, err := p.expect(tokIdent, "market")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, `","`); err != nil {
		return nil, err
	}
	engineTok, err := p.expect(tokIdent, "engine")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, `","`); err != nil {
		return nil, err
	}
	start, err := p.parseSignedInt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, `","`); err != nil {
		return nil, err
	}
	end, err := p.parseSignedInt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, `")"`); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokDot, `"."`); err != nil {
		return nil, err
	}
	fnTok, err := p.expect(tokIdent, "reduction")
	if err != nil {
		return nil, err
	}
	reduce, ok := parseReduce(fnTok.text)
	if !ok {
		return nil, fmt.Errorf("%w: unknown reduction %q", model.ErrWrongCondition, fnTok.text)
	}
	if _, err := p.expect(tokLParen, `"("`); err != nil {
		return nil, err
	}
	colTok, err := p.expect(tokIdent, "column")
	if err != nil {
		return nil, err
	}
	col, err := model.ParseStorageColumn(colTok.text)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, `")"`); err != nil {
		return nil, err
	}

	if start >= end || end > 0 {
		return nil, fmt.Errorf("%w: invalid bar window [%d, %d]", model.ErrWrongCondition, start, end)
	}
	if err := checkColumn(agg, col); err != nil {
		return nil, err
	}

	return &Fetch{
		Naming: model.TickerNaming{
			Symbol:     symTok.text,
			Aggregator: agg,
			Span:       span,
			Market:     marketTok.text,
			Engine:     engineTok.text,
		},
		Start:  start,
		End:    end,
		Column: col,
		Reduce: reduce,
	}, nil
}

// parseRewind consumes ":-<n>" and returns the negative offset. A zero or
// positive rewind is malformed.
func (p *parser) parseRewind() (int, error) {
	if _, err := p.expect(tokColon, `":"`); err != nil {
		return 0, err
	}
	if _, err := p.expect(tokMinus, "negative rewind"); err != nil {
		return 0, err
	}
	numTok, err := p.expect(tokNumber, "rewind value")
	if err != nil {
		return 0, err
	}
	mag, err := positiveInt(numTok.num)
	if err != nil {
		return 0, err
	}
	return -mag, nil
}

func (p *parser) parseSignedInt() (int, error) {
	negative := false
	if p.peek().kind == tokMinus {
		p.next()
		negative = true
	}
	numTok, err := p.expect(tokNumber, "integer")
	if err != nil {
		return 0, err
	}
	if numTok.num != math.Trunc(numTok.num) {
		return 0, fmt.Errorf("%w: expected integer, got %s", model.ErrWrongCondition, numTok)
	}
	v := int(numTok.num)
	if negative {
		v = -v
	}
	return v, nil
}

func positiveInt(v float64) (int, error) {
	if v != math.Trunc(v) || v < 1 {
		return 0, fmt.Errorf("%w: expected positive integer, got %g", model.ErrWrongCondition, v)
	}
	return int(v), nil
}

// barCount parses the interval width. A written zero collapses to the single
// current bar, same as omitting the count.
func barCount(v float64) (int, error) {
	if v != math.Trunc(v) || v < 0 {
		return 0, fmt.Errorf("%w: expected bar count, got %g", model.ErrWrongCondition, v)
	}
	if v == 0 {
		return 1, nil
	}
	return int(v), nil
}

// checkColumn rejects columns the aggregator never produces.
func checkColumn(agg model.Aggregator, col model.Column) error {
	for _, c := range agg.Columns() {
		if c == col {
			return nil
		}
	}
	return fmt.Errorf("%w: column %q is not available on %s", model.ErrWrongCondition, col, agg)
}
