// Package lpctrie implements an adaptive level-compressed PATRICIA trie
// (LPC-trie) for longest-prefix-match lookups over fixed-width, left-aligned
// bit-vector keys. It is generic over the key width so the same algorithm
// serves both 32-bit IPv4 keys and 128-bit IPv6 keys.
package lpctrie

import "github.com/qv2ray/cidrmatcher/bitvec"

// Trie is an LPC-trie keyed by K. The zero value is an empty trie; New
// returns a pointer to one.
type Trie[K Key[K]] struct {
	root     node[K]
	size     uint32
	keyFound bool
}

// TrieV4 is an LPC-trie over 32-bit IPv4 keys.
type TrieV4 = Trie[bitvec.Key32]

// TrieV6 is an LPC-trie over 128-bit IPv6 keys.
type TrieV6 = Trie[bitvec.Key128]

// New returns an empty trie.
func New[K Key[K]]() *Trie[K] {
	return &Trie[K]{}
}

// Clear removes every entry.
func (t *Trie[K]) Clear() {
	t.root = node[K]{}
	t.size = 0
}

// Empty reports whether the trie holds no entries.
func (t *Trie[K]) Empty() bool { return t.size == 0 }

// Size returns the number of distinct keys inserted.
func (t *Trie[K]) Size() uint32 { return t.size }

// Put inserts key with the given prefix length and associated value. key
// must already be masked to prefix bits. If a leaf with an identical key
// already exists it is left unchanged and the size does not grow.
func (t *Trie[K]) Put(key K, prefix uint32, value string) {
	t.keyFound = false
	t.root = t.insert(key, prefix, value, t.root, 0)
	if !t.keyFound {
		t.size++
	}
}

func (t *Trie[K]) insert(key K, prefix uint32, value string, cur node[K], pos uint32) node[K] {
	switch {
	case cur.kind == kindInternal && cur.key.SubEqual(pos, cur.pos-pos, key):
		bitpat := key.ExtractBits(cur.pos, cur.bits)
		idx := int(bitpat.SafeToUsize())
		childPos := cur.pos + cur.bits

		newChild := t.insert(key, prefix, value, cur.children[idx], childPos)
		cur.putChild(idx, newChild)
		return cur.resize()

	case cur.kind == kindLeaf && cur.key == key:
		t.keyFound = true
		return cur

	case cur.kind == kindInternal || cur.kind == kindLeaf:
		m := key.Mismatch(pos, cur.key)
		branch := newInternal[K](cur.key, m, 1)
		leaf := newLeaf[K](key, prefix, value)

		if key.ExtractBits(m, 1).IsEmpty() {
			branch.putChild(0, leaf)
			branch.putChild(1, cur)
		} else {
			branch.putChild(0, cur)
			branch.putChild(1, leaf)
		}
		return branch.resize()

	default: // kindNone
		return newLeaf[K](key, prefix, value)
	}
}

// Get reports whether key matches a stored leaf: for a leaf whose prefix
// covers the whole key width this is exact equality, otherwise it is
// agreement on the leaf's first prefix bits (the two are equivalent for
// bits == width, since sub_equal at a zero shift amount degenerates to a
// full-width XOR-is-zero test).
func (t *Trie[K]) Get(key K) bool {
	leaf, ok := t.descend(key)
	if !ok {
		return false
	}
	return leaf.key.SubEqual(0, leaf.prefix, key)
}

// GetWithValue returns the value of the leaf matching key, or "" on a miss.
func (t *Trie[K]) GetWithValue(key K) string {
	leaf, ok := t.descend(key)
	if !ok {
		return ""
	}
	if leaf.key.SubEqual(0, leaf.prefix, key) {
		return leaf.value
	}
	return ""
}

// descend walks internal nodes following key's bits until it reaches a
// leaf, returning that leaf (unverified) or ok == false on a None.
func (t *Trie[K]) descend(key K) (node[K], bool) {
	cur := t.root
	for cur.kind == kindInternal {
		idx := int(key.ExtractBits(cur.pos, cur.bits).SafeToUsize())
		cur = cur.children[idx]
	}
	if cur.kind != kindLeaf {
		return node[K]{}, false
	}
	return cur, true
}

// Remove deletes the leaf whose key is exactly equal to key (the same
// identity Put uses to detect a duplicate), rebalancing the spine on the
// way back up. It reports whether a leaf was removed. This is a
// best-effort operation: the spec does not require aggressive rebalancing
// of remove, and this implementation simply folds it through the same
// resize() logic insert uses.
func (t *Trie[K]) Remove(key K) bool {
	removed := false
	t.root = t.remove(t.root, key, 0, &removed)
	if removed {
		t.size--
	}
	return removed
}

func (t *Trie[K]) remove(cur node[K], key K, pos uint32, removed *bool) node[K] {
	switch cur.kind {
	case kindNone:
		return cur

	case kindLeaf:
		if cur.key == key {
			*removed = true
			return node[K]{}
		}
		return cur

	default: // kindInternal
		if !cur.key.SubEqual(pos, cur.pos-pos, key) {
			return cur
		}
		idx := int(key.ExtractBits(cur.pos, cur.bits).SafeToUsize())
		childPos := cur.pos + cur.bits

		newChild := t.remove(cur.children[idx], key, childPos, removed)
		cur.putChild(idx, newChild)
		return cur.resize()
	}
}
