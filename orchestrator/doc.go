// Package orchestrator turns correlated (parcel, reading) pairs into
// chute decisions and drives lifecycle transitions. Three strategies are
// supported: RuleBased evaluation of the sorting-rule snapshot,
// AutoResponse random chute draws for load testing and bypass, and
// ApiDriven resolution through an external collaborator guarded by a
// circuit breaker. The orchestrator also applies lost-parcel correction,
// overriding the decisions of belt neighbors whose position became
// ambiguous. Decisioning never runs inside the correlation queue lock.
package orchestrator
