package rule

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// compiledRule pairs a rule with its compiled matcher and its
// registration index for stable priority ties.
type compiledRule struct {
	rule    SortingRule
	matcher Matcher
	index   int
}

// Snapshot is an immutable, validated set of enabled rules ordered by
// priority ascending with ties broken by registration order. Snapshots
// are safe for concurrent evaluation; configuration changes produce a
// new snapshot rather than mutating an existing one.
type Snapshot struct {
	rules []compiledRule
}

// Len returns the number of evaluable rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Result is a successful rule evaluation outcome.
type Result struct {
	Rule        SortingRule
	TargetChute string
}

// Evaluator applies the current rule snapshot to match contexts. The
// snapshot is swapped atomically on reload; in-flight evaluations keep
// the snapshot they started with.
type Evaluator struct {
	snapshot atomic.Pointer[Snapshot]
	logger   *slog.Logger
	mu       sync.Mutex // serializes snapshot swaps, not evaluation
}

// NewEvaluator creates an evaluator starting with an empty snapshot.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{logger: logger}
	e.snapshot.Store(&Snapshot{})
	return e
}

// Swap atomically replaces the active snapshot.
func (e *Evaluator) Swap(s *Snapshot) {
	if s == nil {
		s = &Snapshot{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot.Store(s)
}

// Current returns the active snapshot.
func (e *Evaluator) Current() *Snapshot {
	return e.snapshot.Load()
}

// Evaluate walks rules in priority order and returns the first rule
// whose matcher accepts the context. Rules whose required facet is
// absent are skipped. A matcher runtime fault is scoped to its rule:
// it is logged and evaluation continues with the next rule.
func (e *Evaluator) Evaluate(ctx MatchContext) (Result, bool) {
	snapshot := e.snapshot.Load()
	for _, cr := range snapshot.rules {
		if !cr.matcher.HasFacet(ctx) {
			continue
		}
		matched, err := cr.matcher.Match(ctx)
		if err != nil {
			e.logger.Error("rule evaluation fault, skipping rule",
				"rule_id", cr.rule.RuleID,
				"error", err)
			continue
		}
		if matched {
			return Result{Rule: cr.rule, TargetChute: cr.rule.TargetChute}, true
		}
	}
	return Result{}, false
}

// newSnapshot compiles and orders rules; the caller has already
// filtered out disabled and invalid entries.
func newSnapshot(rules []compiledRule) *Snapshot {
	ordered := make([]compiledRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].rule.Priority != ordered[j].rule.Priority {
			return ordered[i].rule.Priority < ordered[j].rule.Priority
		}
		return ordered[i].index < ordered[j].index
	})
	return &Snapshot{rules: ordered}
}
