// File: nodetable/table.go
// License: Apache-2.0
package nodetable

import "github.com/fleetedge/canbus-core/errs"

// Table is an immutable-after-build open-addressing hash table keyed by
// CAN identifier. Keys are at most 29 bits (spec §4.F); a Fibonacci
// multiply-shift hash with load factor <= 0.5 gives O(1) average lookup
// with a small, cache-friendly backing array.
type Table struct {
	slots []tableSlot
	mask  uint64
	shift uint
	count int
}

type tableSlot struct {
	occupied bool
	key      uint32
	node     *NodeDescriptor
}

// fibMultiplier is the 64-bit golden-ratio constant used for
// multiply-shift hashing (Knuth's multiplicative method).
const fibMultiplier = 0x9E3779B97F4A7C15

func hashKey(key uint32, shift uint) uint64 {
	return (uint64(key) * fibMultiplier) >> shift
}

// Builder accumulates nodes then produces an immutable Table sized for a
// load factor <= 0.5.
type Builder struct {
	nodes []*NodeDescriptor
	seen  map[uint32]bool
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[uint32]bool)}
}

// Add registers a node. It is a configuration-time error (spec §6.3,
// "bad node table ... fatal and prevent startup") to add the same CAN ID
// twice or to declare more signals than MaxSignalsPerFrame.
func (b *Builder) Add(n *NodeDescriptor) error {
	if b.seen[n.ID] {
		return errs.New(errs.KindConfig, "duplicate can id in node table").WithContext("can_id", n.ID)
	}
	if n.Mux == nil && len(n.Signals) > MaxSignalsPerFrame {
		return errs.New(errs.KindConfig, "node exceeds MaxSignalsPerFrame").WithContext("can_id", n.ID)
	}
	if n.Mux != nil {
		for muxVal, sigs := range n.Mux.Sets {
			if len(sigs) > MaxSignalsPerFrame {
				return errs.New(errs.KindConfig, "mux set exceeds MaxSignalsPerFrame").
					WithContext("can_id", n.ID).WithContext("mux_value", muxVal)
			}
		}
	}
	b.seen[n.ID] = true
	b.nodes = append(b.nodes, n)
	return nil
}

// Build produces the immutable Table. Bucket count is the next power of
// two at or above 2x the node count (load factor <= 0.5), minimum 8.
func (b *Builder) Build() *Table {
	size := 8
	for size < len(b.nodes)*2 {
		size <<= 1
	}
	shift := uint(64)
	for n := size; n > 1; n >>= 1 {
		shift--
	}
	t := &Table{
		slots: make([]tableSlot, size),
		mask:  uint64(size - 1),
		shift: shift,
	}
	for _, n := range b.nodes {
		t.insert(n)
	}
	return t
}

func (t *Table) insert(n *NodeDescriptor) {
	idx := hashKey(n.ID, t.shift) & t.mask
	for i := uint64(0); i < uint64(len(t.slots)); i++ {
		slot := &t.slots[(idx+i)&t.mask]
		if !slot.occupied {
			slot.occupied = true
			slot.key = n.ID
			slot.node = n
			t.count++
			return
		}
	}
	// Unreachable given the 2x sizing in Build, but fail safe rather than
	// silently drop a node.
	panic("nodetable: table full, builder sizing invariant violated")
}

// Lookup returns the node for canID, or nil if absent.
func (t *Table) Lookup(canID uint32) *NodeDescriptor {
	if len(t.slots) == 0 {
		return nil
	}
	idx := hashKey(canID, t.shift) & t.mask
	for i := uint64(0); i < uint64(len(t.slots)); i++ {
		slot := &t.slots[(idx+i)&t.mask]
		if !slot.occupied {
			return nil
		}
		if slot.key == canID {
			return slot.node
		}
	}
	return nil
}

// Len returns the number of nodes in the table.
func (t *Table) Len() int { return t.count }
