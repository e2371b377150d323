package lpctrie

import "github.com/qv2ray/cidrmatcher/bitvec"

// Key is the capability set a trie key type must satisfy: the bitvec
// primitives plus ordinary equality, which the trie uses to detect an
// exact-match leaf during insertion and removal.
type Key[T any] interface {
	comparable
	bitvec.BitVec[T]
}

type kind uint8

const (
	kindNone kind = iota
	kindLeaf
	kindInternal
)

// node is a tagged union of the three node variants the spec describes
// (None / Leaf / Internal), represented as a single struct rather than an
// interface so that a slice of nodes ([]node[K]) is one contiguous
// allocation — there is no nullable-pointer indirection for an absent
// child slot, it is simply a node with kind == kindNone.
type node[K Key[K]] struct {
	kind kind
	key  K

	// leaf fields
	prefix uint32
	value  string

	// internal fields
	pos           uint32
	bits          uint32
	fullChildren  uint32
	emptyChildren uint32
	children      []node[K]
}

func (n node[K]) isNone() bool { return n.kind == kindNone }
func (n node[K]) isSome() bool { return n.kind != kindNone }

func zeroKey[K Key[K]]() K {
	var z K
	return z.Empty()
}

func newInternal[K Key[K]](key K, pos, bits uint32) node[K] {
	size := uint32(1) << bits
	return node[K]{
		kind:          kindInternal,
		key:           key,
		pos:           pos,
		bits:          bits,
		emptyChildren: size,
		children:      make([]node[K], size),
	}
}

func newLeaf[K Key[K]](key K, prefix uint32, value string) node[K] {
	return node[K]{kind: kindLeaf, key: key, prefix: prefix, value: value}
}

// isFull reports whether child is an Internal node immediately adjacent to
// n — i.e. its branch position picks up exactly where n's leaves off, with
// no skipped bits in between.
func (n *node[K]) isFull(child node[K]) bool {
	return child.kind == kindInternal && child.pos == n.pos+n.bits
}

// putChild overwrites slot idx with newChild, maintaining emptyChildren and
// fullChildren as it goes.
func (n *node[K]) putChild(idx int, newChild node[K]) {
	old := n.children[idx]
	if newChild.isNone() && old.isSome() {
		n.emptyChildren++
	} else if newChild.isSome() && old.isNone() {
		n.emptyChildren--
	}

	wasFull := n.isFull(old)
	isFull := n.isFull(newChild)
	if wasFull && !isFull {
		n.fullChildren--
	} else if !wasFull && isFull {
		n.fullChildren++
	}

	n.children[idx] = newChild
}

// soleChild returns the first non-empty child, or ok == false if every slot
// is empty. Callers only use it when exactly one slot is occupied.
func (n *node[K]) soleChild() (node[K], bool) {
	for _, c := range n.children {
		if c.isSome() {
			return c, true
		}
	}
	return node[K]{}, false
}

// refreshKey sets n.key from the last non-empty child, matching the
// original's loop that keeps overwriting as it scans (so the final value
// comes from the highest-indexed non-empty child).
func (n *node[K]) refreshKey() {
	for _, c := range n.children {
		if c.isSome() {
			n.key = c.key
		}
	}
}

const (
	inflateThreshold uint32 = 50
	halveThreshold   uint32 = 25
)

// resize re-establishes the inflate/halve invariants after a mutation and
// returns the node that should replace n in its parent's slot: None if it
// collapsed, a promoted single child if only one slot is occupied, or n
// itself otherwise.
func (n *node[K]) resize() node[K] {
	size := uint32(len(n.children))

	if n.emptyChildren == size {
		return node[K]{}
	}

	if n.emptyChildren == size-1 {
		if c, ok := n.soleChild(); ok {
			return c
		}
	} else {
		for n.fullChildren > 0 &&
			50*(n.fullChildren+size-n.emptyChildren) >= inflateThreshold*size {
			n.inflate()
			size = uint32(len(n.children))
		}

		for n.bits > 1 &&
			100*(size-n.emptyChildren) < halveThreshold*size {
			n.halve()
			size = uint32(len(n.children))
		}
	}

	if n.emptyChildren == uint32(len(n.children))-1 {
		if c, ok := n.soleChild(); ok {
			return c
		}
	}

	n.kind = kindInternal
	return *n
}

// inflate doubles the branching factor, redistributing each old slot into
// the two new slots its top bit selects.
func (n *node[K]) inflate() {
	old := n.children
	n.bits++
	n.children = make([]node[K], 1<<n.bits)
	n.fullChildren = 0
	n.emptyChildren = 1 << n.bits

	newBit := n.pos + n.bits - 1

	for idx, child := range old {
		switch child.kind {
		case kindNone:
			continue

		case kindLeaf:
			if child.key.ExtractBits(newBit, 1).IsEmpty() {
				n.putChild(2*idx, child)
			} else {
				n.putChild(2*idx+1, child)
			}

		case kindInternal:
			switch {
			case child.pos > newBit:
				// Not immediately adjacent: route by the new branching bit.
				if child.key.ExtractBits(newBit, 1).IsEmpty() {
					n.putChild(2*idx, child)
				} else {
					n.putChild(2*idx+1, child)
				}

			case child.bits == 1:
				// Adjacent with a single branching bit: its two
				// grandchildren replace it directly.
				n.putChild(2*idx, child.children[0])
				n.putChild(2*idx+1, child.children[1])

			default:
				// Adjacent with a wider branch: split by its top bit.
				half := uint32(1) << (child.bits - 1)
				left := newInternal[K](zeroKey[K](), child.pos+1, child.bits-1)
				right := newInternal[K](zeroKey[K](), child.pos+1, child.bits-1)
				for i := uint32(0); i < half; i++ {
					left.putChild(int(i), child.children[i])
					right.putChild(int(i), child.children[i+half])
				}
				left.refreshKey()
				right.refreshKey()
				n.putChild(2*idx, left.resize())
				n.putChild(2*idx+1, right.resize())
			}
		}
	}
}

// halve pairs up consecutive slots, merging each pair into one.
func (n *node[K]) halve() {
	old := n.children
	n.bits--
	n.children = make([]node[K], 1<<n.bits)
	n.fullChildren = 0
	n.emptyChildren = 1 << n.bits

	for i := 0; i < len(old); i += 2 {
		left, right := old[i], old[i+1]
		switch {
		case left.isNone() && right.isNone():
			continue
		case left.isNone():
			n.putChild(i/2, right)
		case right.isNone():
			n.putChild(i/2, left)
		default:
			pair := newInternal[K](left.key, n.pos+n.bits, 1)
			pair.putChild(0, left)
			pair.putChild(1, right)
			n.putChild(i/2, pair.resize())
		}
	}
}
