// Package correlation binds parcel-blind DWS measurement events to
// pending parcels by timing. Parcels are admitted into a FIFO pending
// set stamped with a gap-free sequence number; an incoming reading binds
// to the oldest pending parcel that has aged past the minimum wait of
// the correlation window. A periodic scan evicts parcels that exceed the
// maximum wait. Enqueue, BindReading and the timeout scan share one
// exclusive lock over the pending set, so a late reading and a
// concurrent eviction of the same parcel cannot race.
package correlation
