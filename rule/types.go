package rule

import (
	"github.com/zakyip/sortengine/parcel"
)

// MatchingMethod selects which matcher evaluates a rule's condition
// expression and which data facet it needs.
type MatchingMethod string

// Matching methods
const (
	BarcodeRegex      MatchingMethod = "BarcodeRegex"
	WeightMatch       MatchingMethod = "WeightMatch"
	VolumeMatch       MatchingMethod = "VolumeMatch"
	OcrMatch          MatchingMethod = "OcrMatch"
	ApiResponseMatch  MatchingMethod = "ApiResponseMatch"
	LowCodeExpression MatchingMethod = "LowCodeExpression"
	LegacyExpression  MatchingMethod = "LegacyExpression"
)

// Valid reports whether m is a known matching method.
func (m MatchingMethod) Valid() bool {
	switch m {
	case BarcodeRegex, WeightMatch, VolumeMatch, OcrMatch,
		ApiResponseMatch, LowCodeExpression, LegacyExpression:
		return true
	}
	return false
}

// SortingRule is one configured routing rule. Rules are value types;
// a loaded snapshot is never mutated.
type SortingRule struct {
	RuleID              string         `json:"rule_id"`
	Priority            int            `json:"priority"`
	MatchingMethod      MatchingMethod `json:"matching_method"`
	ConditionExpression string         `json:"condition_expression"`
	TargetChute         string         `json:"target_chute"`
	IsEnabled           bool           `json:"is_enabled"`
}

// MatchContext carries the data facets available for one parcel at
// evaluation time. Nil/empty facets cause facet-requiring rules to be
// skipped rather than failed.
type MatchContext struct {
	Barcode     string
	Reading     *parcel.DwsReading
	Ocr         *parcel.OcrData
	ApiResponse string
}

// Matcher evaluates one compiled condition against a context facet.
// It returns an error only for runtime evaluation faults; expression
// syntax errors surface at compile time instead.
type Matcher interface {
	// Match reports whether the context satisfies the condition
	Match(ctx MatchContext) (bool, error)

	// HasFacet reports whether the context carries the facet this
	// matcher needs; when false the rule is skipped, not failed
	HasFacet(ctx MatchContext) bool
}
