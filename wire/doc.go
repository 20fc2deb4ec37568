// Package wire defines the JSON message shapes exchanged with external
// collaborators: upstream parcel-detection and DWS devices, and the
// downstream sorter. Field names are part of the stable wire contract and
// must round-trip exactly; do not rename them.
package wire
