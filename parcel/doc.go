// Package parcel defines the core sortation data model: parcels awaiting
// correlation, DWS measurement readings, lifecycle stages, and chute
// decisions. Types here are plain values shared by the correlation queue,
// the rule evaluator, and the decision orchestrator; they carry no
// behavior beyond stage-ordering rules.
package parcel
