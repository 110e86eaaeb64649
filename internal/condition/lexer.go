// Package condition implements the rule expression language: a small infix
// arithmetic/boolean grammar over ticker references. A surface rule
// ("#YNDX.mean[C]>2000") is parsed to a typed AST and rendered into a
// compiled form ("fetch(moex:YNDX, minute, shares, stock, -1, 0)
// .last(mean_price) > 2000") that the same parser accepts after a restart.
package condition

import (
	"fmt"
	"strconv"

	"github.com/Qolorerr/Athena/internal/model"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent

	tokHash
	tokColon
	tokDot
	tokComma
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen

	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent

	tokLT
	tokLE
	tokGT
	tokGE
	tokEQ
	tokNE

	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return strconv.Quote(t.text)
}

// lex tokenises a rule. Any character the grammar has no use for is a
// WrongCondition right away.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	emit := func(kind tokenKind, text string) {
		tokens = append(tokens, token{kind: kind, text: text, pos: i})
	}

	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
				i++
			}
			if i < len(input) && input[i] == '.' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9' {
				i++
				for i < len(input) && (input[i] >= '0' && input[i] <= '9') {
					i++
				}
			}
			text := input[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", model.ErrWrongCondition, text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: start})

		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			text := input[start:i]
			kind := tokIdent
			switch text {
			case "and":
				kind = tokAnd
			case "or":
				kind = tokOr
			case "not":
				kind = tokNot
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})

		default:
			start := i
			two := ""
			if i+1 < len(input) {
				two = input[i : i+2]
			}
			switch {
			case two == "<=":
				emit(tokLE, two)
				i += 2
			case two == ">=":
				emit(tokGE, two)
				i += 2
			case two == "==":
				emit(tokEQ, two)
				i += 2
			case two == "!=":
				emit(tokNE, two)
				i += 2
			default:
				var kind tokenKind
				switch c {
				case '#':
					kind = tokHash
				case ':':
					kind = tokColon
				case '.':
					kind = tokDot
				case ',':
					kind = tokComma
				case '[':
					kind = tokLBracket
				case ']':
					kind = tokRBracket
				case '(':
					kind = tokLParen
				case ')':
					kind = tokRParen
				case '+':
					kind = tokPlus
				case '-':
					kind = tokMinus
				case '*':
					kind = tokStar
				case '/':
					kind = tokSlash
				case '%':
					kind = tokPercent
				case '<':
					kind = tokLT
				case '>':
					kind = tokGT
				default:
					return nil, fmt.Errorf("%w: unexpected character %q at %d", model.ErrWrongCondition, string(c), start)
				}
				emit(kind, string(c))
				i++
			}
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: i})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
