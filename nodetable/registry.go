// File: nodetable/registry.go
// License: Apache-2.0
package nodetable

import "github.com/fleetedge/canbus-core/frame"

// Registry holds one Table per physical bus plus a separately indexed
// collection for Ethernet logical buses, each self-describing in length
// (spec §9 design note: avoids the historical bug of iterating a flat
// array sized for physical buses only).
type Registry struct {
	physical [2]*Table
	ethernet []*Table
}

// NewRegistry builds a Registry. physical[0]/[1] may be nil if that bus
// carries no decode targets; ethernet tables are indexed by logical bus
// index (0-based), matching frame.BusID.EthernetIndex.
func NewRegistry(can0, can1 *Table, ethernet []*Table) *Registry {
	r := &Registry{ethernet: ethernet}
	r.physical[0] = can0
	r.physical[1] = can1
	return r
}

// For returns the table serving bus, or nil if the bus has no table
// (either genuinely unconfigured, or an out-of-range Ethernet index).
func (r *Registry) For(bus frame.BusID) *Table {
	if bus.IsPhysical() {
		return r.physical[bus]
	}
	idx, ok := bus.EthernetIndex()
	if !ok || idx >= len(r.ethernet) {
		return nil
	}
	return r.ethernet[idx]
}

// Lookup looks up canID on the table for bus; nil if the bus or the ID is
// unmapped.
func (r *Registry) Lookup(bus frame.BusID, canID uint32) *NodeDescriptor {
	t := r.For(bus)
	if t == nil {
		return nil
	}
	return t.Lookup(canID)
}
