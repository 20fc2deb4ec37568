package rule

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zakyip/sortengine/errors"
)

// Numeric condition grammar shared by the weight and volume matchers:
// a sequence of comparisons `Field {>,<,=} number` combined with and/or
// (also accepted as & / |). AND binds tighter than OR, so the compiled
// form is a disjunction of conjunctions.

type comparisonOp int

const (
	opGreater comparisonOp = iota
	opLess
	opEqual
	opGreaterEqual
	opLessEqual
	opNotEqual
)

func (op comparisonOp) String() string {
	switch op {
	case opGreater:
		return ">"
	case opLess:
		return "<"
	case opEqual:
		return "="
	case opGreaterEqual:
		return ">="
	case opLessEqual:
		return "<="
	case opNotEqual:
		return "!="
	default:
		return "?"
	}
}

type comparison struct {
	field string
	op    comparisonOp
	value float64
}

func (c comparison) eval(get func(field string) (float64, bool)) (bool, error) {
	v, ok := get(c.field)
	if !ok {
		return false, fmt.Errorf("field %q not available", c.field)
	}
	switch c.op {
	case opGreater:
		return v > c.value, nil
	case opLess:
		return v < c.value, nil
	case opEqual:
		return v == c.value, nil
	case opGreaterEqual:
		return v >= c.value, nil
	case opLessEqual:
		return v <= c.value, nil
	case opNotEqual:
		return v != c.value, nil
	}
	return false, fmt.Errorf("unknown comparison operator")
}

// numericExpr is a disjunction of conjunctions of comparisons.
type numericExpr [][]comparison

func (e numericExpr) eval(get func(field string) (float64, bool)) (bool, error) {
	for _, conj := range e {
		all := true
		for _, cmp := range conj {
			ok, err := cmp.eval(get)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokOp
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	text string
}

func tokenizeNumericExpr(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '&':
			tokens = append(tokens, token{tokAnd, "&"})
			i++
			if i < len(expr) && expr[i] == '&' {
				i++
			}
		case ch == '|':
			tokens = append(tokens, token{tokOr, "|"})
			i++
			if i < len(expr) && expr[i] == '|' {
				i++
			}
		case ch == '>' || ch == '<' || ch == '=' || ch == '!':
			op := string(ch)
			i++
			if i < len(expr) && expr[i] == '=' {
				op += "="
				i++
			}
			if op == "!" {
				return nil, fmt.Errorf("dangling '!' at position %d", i-1)
			}
			tokens = append(tokens, token{tokOp, op})
		case ch >= '0' && ch <= '9' || ch == '-' || ch == '.':
			start := i
			i++
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, expr[start:i]})
		case unicode.IsLetter(rune(ch)) || ch == '_':
			start := i
			for i < len(expr) && (unicode.IsLetter(rune(expr[i])) || unicode.IsDigit(rune(expr[i])) || expr[i] == '_') {
				i++
			}
			word := expr[start:i]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{tokAnd, word})
			case "or":
				tokens = append(tokens, token{tokOr, word})
			default:
				tokens = append(tokens, token{tokIdent, word})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return tokens, nil
}

func parseComparisonOp(text string) (comparisonOp, error) {
	switch text {
	case ">":
		return opGreater, nil
	case "<":
		return opLess, nil
	case "=", "==":
		return opEqual, nil
	case ">=":
		return opGreaterEqual, nil
	case "<=":
		return opLessEqual, nil
	case "!=":
		return opNotEqual, nil
	}
	return 0, fmt.Errorf("unsupported operator %q", text)
}

// parseNumericExpr compiles the grammar against an allowed field set.
// Field names are matched case-insensitively and normalized to the
// canonical name from allowedFields.
func parseNumericExpr(expr string, allowedFields []string) (numericExpr, error) {
	tokens, err := tokenizeNumericExpr(expr)
	if err != nil {
		return nil, errors.WrapInvalid(err, "rule", "parseNumericExpr", "tokenize expression")
	}
	if len(tokens) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty expression"), "rule", "parseNumericExpr", "parse expression")
	}

	canonical := make(map[string]string, len(allowedFields))
	for _, f := range allowedFields {
		canonical[strings.ToLower(f)] = f
	}

	var result numericExpr
	var current []comparison

	i := 0
	for {
		// One comparison: ident op number
		if i+3 > len(tokens) || tokens[i].kind != tokIdent || tokens[i+1].kind != tokOp || tokens[i+2].kind != tokNumber {
			return nil, errors.WrapInvalid(
				fmt.Errorf("expected 'Field op number' at token %d", i),
				"rule", "parseNumericExpr", "parse expression")
		}

		field, ok := canonical[strings.ToLower(tokens[i].text)]
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("unknown field %q (allowed: %s)", tokens[i].text, strings.Join(allowedFields, ", ")),
				"rule", "parseNumericExpr", "validate field")
		}

		op, err := parseComparisonOp(tokens[i+1].text)
		if err != nil {
			return nil, errors.WrapInvalid(err, "rule", "parseNumericExpr", "parse operator")
		}

		value, err := strconv.ParseFloat(tokens[i+2].text, 64)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("invalid number %q", tokens[i+2].text),
				"rule", "parseNumericExpr", "parse number")
		}

		current = append(current, comparison{field: field, op: op, value: value})
		i += 3

		if i == len(tokens) {
			break
		}

		switch tokens[i].kind {
		case tokAnd:
			// Stay in the current conjunction
		case tokOr:
			result = append(result, current)
			current = nil
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("expected and/or at token %d, got %q", i, tokens[i].text),
				"rule", "parseNumericExpr", "parse connective")
		}
		i++
	}

	result = append(result, current)
	return result, nil
}
