// Package rule implements sorting-rule matching and evaluation. Rules are
// read-only snapshots: the loader validates every rule at load time
// (malformed expressions and unknown matching methods are excluded and
// reported, never evaluated), compiles its condition expression, and
// publishes an immutable snapshot that the evaluator walks in priority
// order. Matchers are pure functions over a single data facet and are
// safe for concurrent use across parcels.
package rule
