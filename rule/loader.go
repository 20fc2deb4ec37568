package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zakyip/sortengine/errors"
)

// LoadError reports one rule rejected at load time.
type LoadError struct {
	RuleID string
	Err    error
}

func (le LoadError) Error() string {
	return fmt.Sprintf("rule %s: %v", le.RuleID, le.Err)
}

// Loader validates rule definitions and builds snapshots. Invalid rules
// are excluded and reported; the system continues with the remaining
// valid rules.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a rule loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load compiles the given definitions into a snapshot. Disabled rules
// are skipped silently; rules with unknown matching methods or
// unparsable expressions are excluded and returned as load errors.
func (l *Loader) Load(definitions []SortingRule) (*Snapshot, []LoadError) {
	var compiled []compiledRule
	var loadErrs []LoadError

	for i, def := range definitions {
		if !def.IsEnabled {
			l.logger.Debug("skipping disabled rule", "rule_id", def.RuleID)
			continue
		}

		matcher, err := CompileMatcher(def.MatchingMethod, def.ConditionExpression)
		if err != nil {
			l.logger.Error("excluding invalid rule",
				"rule_id", def.RuleID,
				"matching_method", string(def.MatchingMethod),
				"error", err)
			loadErrs = append(loadErrs, LoadError{RuleID: def.RuleID, Err: err})
			continue
		}

		compiled = append(compiled, compiledRule{rule: def, matcher: matcher, index: i})
		l.logger.Info("loaded rule",
			"rule_id", def.RuleID,
			"priority", def.Priority,
			"target_chute", def.TargetChute)
	}

	if len(compiled) == 0 {
		l.logger.Warn("no evaluable rules loaded")
	}

	return newSnapshot(compiled), loadErrs
}

// LoadFile reads rule definitions from a JSON file holding either an
// array of rules or a single rule object.
func (l *Loader) LoadFile(path string) (*Snapshot, []LoadError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "rule.Loader", "LoadFile", "read rules file")
	}

	var definitions []SortingRule
	if err := json.Unmarshal(data, &definitions); err != nil {
		var single SortingRule
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("failed to parse rules file %s: %w", path, err),
				"rule.Loader", "LoadFile", "parse rules file")
		}
		definitions = []SortingRule{single}
	}

	snapshot, loadErrs := l.Load(definitions)
	return snapshot, loadErrs, nil
}

// Watch follows a JetStream KV bucket and swaps the evaluator's snapshot
// whenever the rules entry changes. Rules reload wholesale: a changed
// entry replaces the entire snapshot, so no partial mutation is visible
// mid-evaluation. Watch blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, kv jetstream.KeyValue, key string, evaluator *Evaluator) error {
	watcher, err := kv.Watch(ctx, key)
	if err != nil {
		return errors.WrapTransient(err, "rule.Loader", "Watch", "create KV watcher")
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil
			}
			// A nil entry marks the end of initial replay
			if entry == nil {
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}

			var definitions []SortingRule
			if err := json.Unmarshal(entry.Value(), &definitions); err != nil {
				l.logger.Error("ignoring malformed rules update",
					"key", entry.Key(),
					"revision", entry.Revision(),
					"error", err)
				continue
			}

			snapshot, loadErrs := l.Load(definitions)
			for _, le := range loadErrs {
				l.logger.Error("rule excluded during reload", "rule_id", le.RuleID, "error", le.Err)
			}
			evaluator.Swap(snapshot)
			l.logger.Info("rule snapshot reloaded",
				"revision", entry.Revision(),
				"rules", snapshot.Len(),
				"excluded", len(loadErrs))
		}
	}
}
