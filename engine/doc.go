// Package engine assembles the sortation pipeline and manages its
// lifecycle: the NATS ingress, the correlation queue, rule evaluation,
// decision orchestration, the outbound sorter channel and the optional
// metrics and live-feed endpoints. Components start in dependency order
// and stop in reverse.
package engine
