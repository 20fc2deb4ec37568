package rule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/zakyip/sortengine/errors"
)

// CompileMatcher builds the matcher for a rule's matching method and
// condition expression. Compilation fails on unknown methods and
// malformed expressions; a compiled matcher never fails on syntax at
// match time.
func CompileMatcher(method MatchingMethod, expr string) (Matcher, error) {
	switch method {
	case BarcodeRegex:
		return compileBarcodeMatcher(expr)
	case WeightMatch:
		return compileNumericMatcher(expr, []string{"Weight"})
	case VolumeMatch:
		return compileNumericMatcher(expr, []string{"Volume", "Length", "Width", "Height"})
	case LowCodeExpression, LegacyExpression:
		return compileNumericMatcher(expr, []string{"Weight", "Volume", "Length", "Width", "Height"})
	case OcrMatch:
		return compileOcrMatcher(expr)
	case ApiResponseMatch:
		return compileAPIResponseMatcher(expr)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownMatcher, method),
			"rule", "CompileMatcher", "resolve matching method")
	}
}

// numericMatcher evaluates the shared comparison grammar against DWS
// measurement fields.
type numericMatcher struct {
	expr numericExpr
}

func compileNumericMatcher(expr string, allowedFields []string) (Matcher, error) {
	compiled, err := parseNumericExpr(expr, allowedFields)
	if err != nil {
		return nil, err
	}
	return &numericMatcher{expr: compiled}, nil
}

func (m *numericMatcher) HasFacet(ctx MatchContext) bool {
	return ctx.Reading != nil
}

func (m *numericMatcher) Match(ctx MatchContext) (bool, error) {
	r := ctx.Reading
	if r == nil {
		return false, nil
	}
	return m.expr.eval(func(field string) (float64, bool) {
		switch field {
		case "Weight":
			return r.Weight, true
		case "Volume":
			return r.Volume, true
		case "Length":
			return r.Length, true
		case "Width":
			return r.Width, true
		case "Height":
			return r.Height, true
		}
		return 0, false
	})
}

// barcodeMatcher evaluates PREFIX:value conditions against the barcode.
type barcodeOp int

const (
	barcodeStartsWith barcodeOp = iota
	barcodeEndsWith
	barcodeContains
	barcodeEquals
	barcodeRegex
)

type barcodeMatcher struct {
	op    barcodeOp
	value string
	re    *regexp.Regexp // set for barcodeRegex only
}

func compileBarcodeMatcher(expr string) (Matcher, error) {
	prefix, value, found := strings.Cut(expr, ":")
	if !found {
		return nil, errors.WrapInvalid(
			fmt.Errorf("barcode condition must be PREFIX:value, got %q", expr),
			"rule", "compileBarcodeMatcher", "parse condition")
	}

	m := &barcodeMatcher{value: value}
	switch strings.ToUpper(strings.TrimSpace(prefix)) {
	case "STARTSWITH":
		m.op = barcodeStartsWith
	case "ENDSWITH":
		m.op = barcodeEndsWith
	case "CONTAINS":
		m.op = barcodeContains
	case "EQUALS":
		m.op = barcodeEquals
	case "REGEX":
		re, err := compileRegex(value)
		if err != nil {
			return nil, errors.WrapInvalid(err, "rule", "compileBarcodeMatcher", "compile regex")
		}
		m.op = barcodeRegex
		m.re = re
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown barcode condition prefix %q", prefix),
			"rule", "compileBarcodeMatcher", "parse condition")
	}
	return m, nil
}

func (m *barcodeMatcher) HasFacet(ctx MatchContext) bool {
	return ctx.Barcode != ""
}

func (m *barcodeMatcher) Match(ctx MatchContext) (bool, error) {
	barcode := ctx.Barcode
	switch m.op {
	case barcodeStartsWith:
		return strings.HasPrefix(barcode, m.value), nil
	case barcodeEndsWith:
		return strings.HasSuffix(barcode, m.value), nil
	case barcodeContains:
		return strings.Contains(barcode, m.value), nil
	case barcodeEquals:
		return barcode == m.value, nil
	case barcodeRegex:
		return m.re.MatchString(barcode), nil
	}
	return false, fmt.Errorf("unknown barcode operator")
}

// ocrMatcher evaluates field=value conditions against OCR-derived
// segments. A value containing regex metacharacters is compiled as a
// pattern; plain values compare by equality. Conditions combine with
// and/or, AND binding tighter than OR.
type ocrCondition struct {
	field string
	value string
	re    *regexp.Regexp // nil for literal equality
}

type ocrMatcher struct {
	groups [][]ocrCondition // disjunction of conjunctions
}

var regexMetaChars = ".*+?[](){}^$\\"

func compileOcrMatcher(expr string) (Matcher, error) {
	words := strings.Fields(expr)
	if len(words) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty OCR condition"), "rule", "compileOcrMatcher", "parse condition")
	}

	var groups [][]ocrCondition
	var current []ocrCondition

	expectCondition := true
	for _, word := range words {
		if expectCondition {
			field, value, found := strings.Cut(word, "=")
			if !found || field == "" {
				return nil, errors.WrapInvalid(
					fmt.Errorf("OCR condition must be field=value, got %q", word),
					"rule", "compileOcrMatcher", "parse condition")
			}
			cond := ocrCondition{field: field, value: value}
			if strings.ContainsAny(value, regexMetaChars) {
				re, err := compileRegex(value)
				if err != nil {
					return nil, errors.WrapInvalid(err, "rule", "compileOcrMatcher", "compile regex")
				}
				cond.re = re
			}
			current = append(current, cond)
			expectCondition = false
			continue
		}

		switch strings.ToLower(word) {
		case "and":
		case "or":
			groups = append(groups, current)
			current = nil
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("expected and/or, got %q", word),
				"rule", "compileOcrMatcher", "parse connective")
		}
		expectCondition = true
	}
	if expectCondition {
		return nil, errors.WrapInvalid(
			fmt.Errorf("OCR condition ends with a connective"),
			"rule", "compileOcrMatcher", "parse condition")
	}
	groups = append(groups, current)

	return &ocrMatcher{groups: groups}, nil
}

func (m *ocrMatcher) HasFacet(ctx MatchContext) bool {
	return ctx.Ocr != nil && len(ctx.Ocr.Fields) > 0
}

func (m *ocrMatcher) Match(ctx MatchContext) (bool, error) {
	if ctx.Ocr == nil {
		return false, nil
	}
	for _, group := range m.groups {
		all := true
		for _, cond := range group {
			actual, ok := ctx.Ocr.Fields[cond.field]
			if !ok {
				all = false
				break
			}
			if cond.re != nil {
				if !cond.re.MatchString(actual) {
					all = false
					break
				}
			} else if actual != cond.value {
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

// apiResponseMatcher inspects the payload returned by a prior
// external-API call. Supported forms:
//
//	CONTAINS:value   payload contains value
//	RCONTAINS:value  value contains payload (reverse containment)
//	REGEX:pattern    payload matches pattern
//	JSON:field=value top-level JSON field equals value
type apiResponseOp int

const (
	apiContains apiResponseOp = iota
	apiReverseContains
	apiRegex
	apiJSONField
)

type apiResponseMatcher struct {
	op        apiResponseOp
	value     string
	jsonField string
	re        *regexp.Regexp
}

func compileAPIResponseMatcher(expr string) (Matcher, error) {
	prefix, value, found := strings.Cut(expr, ":")
	if !found {
		return nil, errors.WrapInvalid(
			fmt.Errorf("API-response condition must be PREFIX:value, got %q", expr),
			"rule", "compileAPIResponseMatcher", "parse condition")
	}

	m := &apiResponseMatcher{value: value}
	switch strings.ToUpper(strings.TrimSpace(prefix)) {
	case "CONTAINS":
		m.op = apiContains
	case "RCONTAINS":
		m.op = apiReverseContains
	case "REGEX":
		re, err := compileRegex(value)
		if err != nil {
			return nil, errors.WrapInvalid(err, "rule", "compileAPIResponseMatcher", "compile regex")
		}
		m.op = apiRegex
		m.re = re
	case "JSON":
		field, fieldValue, ok := strings.Cut(value, "=")
		if !ok || field == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("JSON condition must be JSON:field=value, got %q", expr),
				"rule", "compileAPIResponseMatcher", "parse condition")
		}
		m.op = apiJSONField
		m.jsonField = field
		m.value = fieldValue
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown API-response condition prefix %q", prefix),
			"rule", "compileAPIResponseMatcher", "parse condition")
	}
	return m, nil
}

func (m *apiResponseMatcher) HasFacet(ctx MatchContext) bool {
	return ctx.ApiResponse != ""
}

func (m *apiResponseMatcher) Match(ctx MatchContext) (bool, error) {
	payload := ctx.ApiResponse
	switch m.op {
	case apiContains:
		return strings.Contains(payload, m.value), nil
	case apiReverseContains:
		return strings.Contains(m.value, payload), nil
	case apiRegex:
		return m.re.MatchString(payload), nil
	case apiJSONField:
		var doc map[string]any
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return false, fmt.Errorf("API response is not valid JSON: %w", err)
		}
		actual, ok := doc[m.jsonField]
		if !ok {
			return false, nil
		}
		return fmt.Sprintf("%v", actual) == m.value, nil
	}
	return false, fmt.Errorf("unknown API-response operator")
}
