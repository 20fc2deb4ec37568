package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakyip/sortengine/parcel"
)

func mustSnapshot(t *testing.T, rules []SortingRule) *Snapshot {
	t.Helper()
	snapshot, loadErrs := NewLoader(nil).Load(rules)
	require.Empty(t, loadErrs)
	return snapshot
}

func TestEvaluatePriorityOrder(t *testing.T) {
	// Both rules match the parcel; the lower priority number wins even
	// though the barcode rule was registered first.
	snapshot := mustSnapshot(t, []SortingRule{
		{RuleID: "R-BARCODE", Priority: 2, MatchingMethod: BarcodeRegex,
			ConditionExpression: "STARTSWITH:SF", TargetChute: "B02", IsEnabled: true},
		{RuleID: "R-HEAVY", Priority: 1, MatchingMethod: WeightMatch,
			ConditionExpression: "Weight > 1000", TargetChute: "A01", IsEnabled: true},
	})

	e := NewEvaluator(nil)
	e.Swap(snapshot)

	result, matched := e.Evaluate(MatchContext{
		Barcode: "SF123456",
		Reading: &parcel.DwsReading{Weight: 1500},
	})
	require.True(t, matched)
	assert.Equal(t, "R-HEAVY", result.Rule.RuleID)
	assert.Equal(t, "A01", result.TargetChute)

	// A light parcel falls through to the barcode rule.
	result, matched = e.Evaluate(MatchContext{
		Barcode: "SF123456",
		Reading: &parcel.DwsReading{Weight: 200},
	})
	require.True(t, matched)
	assert.Equal(t, "R-BARCODE", result.Rule.RuleID)
	assert.Equal(t, "B02", result.TargetChute)
}

func TestEvaluatePriorityTieKeepsRegistrationOrder(t *testing.T) {
	snapshot := mustSnapshot(t, []SortingRule{
		{RuleID: "FIRST", Priority: 5, MatchingMethod: WeightMatch,
			ConditionExpression: "Weight > 0", TargetChute: "C01", IsEnabled: true},
		{RuleID: "SECOND", Priority: 5, MatchingMethod: WeightMatch,
			ConditionExpression: "Weight > 0", TargetChute: "C02", IsEnabled: true},
	})

	e := NewEvaluator(nil)
	e.Swap(snapshot)

	result, matched := e.Evaluate(MatchContext{Reading: &parcel.DwsReading{Weight: 10}})
	require.True(t, matched)
	assert.Equal(t, "FIRST", result.Rule.RuleID)
}

func TestEvaluateSkipsRulesWithoutFacet(t *testing.T) {
	snapshot := mustSnapshot(t, []SortingRule{
		{RuleID: "R-OCR", Priority: 1, MatchingMethod: OcrMatch,
			ConditionExpression: "Segment1=SH", TargetChute: "D01", IsEnabled: true},
		{RuleID: "R-WEIGHT", Priority: 2, MatchingMethod: WeightMatch,
			ConditionExpression: "Weight > 0", TargetChute: "D02", IsEnabled: true},
	})

	e := NewEvaluator(nil)
	e.Swap(snapshot)

	// No OCR facet: the higher-priority OCR rule is skipped, not failed.
	result, matched := e.Evaluate(MatchContext{Reading: &parcel.DwsReading{Weight: 10}})
	require.True(t, matched)
	assert.Equal(t, "R-WEIGHT", result.Rule.RuleID)
}

func TestEvaluateRuntimeFaultScopedToRule(t *testing.T) {
	// The JSON matcher faults on a non-JSON payload; evaluation must
	// continue with the next rule instead of aborting.
	snapshot := mustSnapshot(t, []SortingRule{
		{RuleID: "R-JSON", Priority: 1, MatchingMethod: ApiResponseMatch,
			ConditionExpression: "JSON:chute=A07", TargetChute: "A07", IsEnabled: true},
		{RuleID: "R-FALLBACK", Priority: 2, MatchingMethod: ApiResponseMatch,
			ConditionExpression: "CONTAINS:A07", TargetChute: "A08", IsEnabled: true},
	})

	e := NewEvaluator(nil)
	e.Swap(snapshot)

	result, matched := e.Evaluate(MatchContext{ApiResponse: "plain A07 payload"})
	require.True(t, matched)
	assert.Equal(t, "R-FALLBACK", result.Rule.RuleID)
}

func TestEvaluateNoMatch(t *testing.T) {
	snapshot := mustSnapshot(t, []SortingRule{
		{RuleID: "R1", Priority: 1, MatchingMethod: WeightMatch,
			ConditionExpression: "Weight > 1000", TargetChute: "A01", IsEnabled: true},
	})

	e := NewEvaluator(nil)
	e.Swap(snapshot)

	_, matched := e.Evaluate(MatchContext{Reading: &parcel.DwsReading{Weight: 10}})
	assert.False(t, matched)
}

func TestEvaluatorEmptyAndNilSnapshot(t *testing.T) {
	e := NewEvaluator(nil)

	_, matched := e.Evaluate(MatchContext{Barcode: "SF1"})
	assert.False(t, matched)

	// Swapping nil keeps the evaluator usable.
	e.Swap(nil)
	_, matched = e.Evaluate(MatchContext{Barcode: "SF1"})
	assert.False(t, matched)
	assert.Equal(t, 0, e.Current().Len())
}

func TestSwapReplacesWholesale(t *testing.T) {
	e := NewEvaluator(nil)
	e.Swap(mustSnapshot(t, []SortingRule{
		{RuleID: "OLD", Priority: 1, MatchingMethod: BarcodeRegex,
			ConditionExpression: "STARTSWITH:SF", TargetChute: "A01", IsEnabled: true},
	}))
	e.Swap(mustSnapshot(t, []SortingRule{
		{RuleID: "NEW", Priority: 1, MatchingMethod: BarcodeRegex,
			ConditionExpression: "STARTSWITH:JD", TargetChute: "B01", IsEnabled: true},
	}))

	_, matched := e.Evaluate(MatchContext{Barcode: "SF123"})
	assert.False(t, matched, "replaced rule must not survive the swap")

	result, matched := e.Evaluate(MatchContext{Barcode: "JD123"})
	require.True(t, matched)
	assert.Equal(t, "NEW", result.Rule.RuleID)
}
