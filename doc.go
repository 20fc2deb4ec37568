// Package sortengine implements a parcel sortation engine for
// cross-belt sorters whose dimensioning/weighing/scanning (DWS)
// hardware emits parcel-blind readings.
//
// # The correlation problem
//
// Upstream detection announces each parcel as it enters the belt, but
// the DWS station measures parcels without knowing which one it is
// looking at. The engine binds each reading to a parcel purely by
// timing: a reading belongs to the oldest pending parcel that has aged
// past the configured minimum wait. Barcode content is advisory only
// and never selects the parcel, because relabeled and duplicate
// barcodes occur on real belts.
//
// # Pipeline
//
//	┌──────────────┐   ┌───────────────┐   ┌──────────────┐
//	│   Ingress    │ → │  Correlation  │ → │ Orchestrator │
//	│ (NATS events)│   │ queue (window)│   │  (decisions) │
//	└──────────────┘   └───────────────┘   └──────┬───────┘
//	                                              ↓
//	                   ┌───────────────┐   ┌──────────────┐
//	                   │   Lifecycle   │   │   Publisher  │
//	                   │    tracker    │   │ (sorter cmd) │
//	                   └───────────────┘   └──────────────┘
//
// Chute decisions come from one of three strategies: priority-ordered
// rule matching over barcode, weight, volume and OCR facets; random
// selection from a configured chute set; or an external resolver
// reached over NATS request-reply behind a circuit breaker.
//
// Every parcel carries an append-only lifecycle log from detection to
// a terminal stage. When the sorter reports a parcel lost, the engine
// reroutes the still-airborne neighbors admitted after it to the
// exception chute, because the broken belt sequence makes their
// positions untrustworthy.
//
// The engine package wires everything together; cmd/sortengine is the
// runnable daemon.
package sortengine
