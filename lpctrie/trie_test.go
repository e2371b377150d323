package lpctrie

import (
	"math/rand"
	"testing"

	"github.com/qv2ray/cidrmatcher/bitvec"
)

// s1Keys are the eight-bit keys from spec scenario S1/S2.
var s1Keys = []string{
	"00010000", "01000010", "00001010", "00101011",
	"10101101", "10110110", "11011011", "01101110",
	"10111010", "11101001", "10100111", "10011110",
}

func TestScenarioS1FullPrefix(t *testing.T) {
	trie := New[bitvec.Key32]()
	for _, s := range s1Keys {
		trie.Put(bitvec.FromBitStr32(s), 8, "fake")
	}
	for _, s := range s1Keys {
		if !trie.Get(bitvec.FromBitStr32(s)) {
			t.Errorf("Get(%s) = false, want true", s)
		}
	}
	if trie.Get(bitvec.FromBitStr32("00110000")) {
		t.Error("Get(00110000) = true, want false")
	}
	if got := trie.Size(); got != uint32(len(s1Keys)) {
		t.Errorf("Size() = %d, want %d", got, len(s1Keys))
	}
}

func TestScenarioS2SevenBitPrefix(t *testing.T) {
	trie := New[bitvec.Key32]()
	for _, s := range s1Keys {
		trie.Put(bitvec.FromBitStr32(s), 7, "fake")
	}
	if trie.Get(bitvec.FromBitStr32("10011100")) {
		t.Error("Get(10011100) = true, want false (differs within the 7-bit prefix)")
	}
	if !trie.Get(bitvec.FromBitStr32("10011111")) {
		t.Error("Get(10011111) = false, want true (differs only at bit 7, outside the prefix)")
	}
}

func TestScenarioS1Over128BitKey(t *testing.T) {
	trie := New[bitvec.Key128]()
	for _, s := range s1Keys {
		trie.Put(bitvec.FromBitStr128(s), 7, "fake")
	}
	if trie.Get(bitvec.FromBitStr128("00110000")) {
		t.Error("Get(00110000) = true, want false")
	}
	for _, s := range s1Keys {
		if !trie.Get(bitvec.FromBitStr128(s)) {
			t.Errorf("Get(%s) = false, want true", s)
		}
	}
	if trie.Get(bitvec.FromBitStr128("10011100")) {
		t.Error("Get(10011100) = true, want false")
	}
}

func TestInsertionIdempotence(t *testing.T) {
	trie := New[bitvec.Key32]()
	key := bitvec.FromBitStr32("10101010")
	trie.Put(key, 8, "a")
	trie.Put(key, 8, "a")
	if trie.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after duplicate insert", trie.Size())
	}
	if got := trie.GetWithValue(key); got != "a" {
		t.Errorf("GetWithValue = %q, want %q", got, "a")
	}
}

func TestClearEmptiesTrie(t *testing.T) {
	trie := New[bitvec.Key32]()
	for _, s := range s1Keys {
		trie.Put(bitvec.FromBitStr32(s), 8, "fake")
	}
	trie.Clear()
	if !trie.Empty() {
		t.Fatal("Empty() = false after Clear")
	}
	for _, s := range s1Keys {
		if trie.Get(bitvec.FromBitStr32(s)) {
			t.Errorf("Get(%s) = true after Clear, want false", s)
		}
	}
}

func TestRemove(t *testing.T) {
	trie := New[bitvec.Key32]()
	for _, s := range s1Keys {
		trie.Put(bitvec.FromBitStr32(s), 8, "fake")
	}
	target := bitvec.FromBitStr32(s1Keys[3])
	if !trie.Remove(target) {
		t.Fatal("Remove returned false for an existing key")
	}
	if trie.Get(target) {
		t.Error("Get still true after Remove")
	}
	if got, want := trie.Size(), uint32(len(s1Keys)-1); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	for i, s := range s1Keys {
		if i == 3 {
			continue
		}
		if !trie.Get(bitvec.FromBitStr32(s)) {
			t.Errorf("Get(%s) = false after unrelated Remove, want true", s)
		}
	}
}

// checkInvariants walks the whole tree verifying the structural invariant
// (empty_children/full_children counts) and the resize thresholds (no
// Internal node may satisfy the strict inflate or halve predicate).
func checkInvariants[K Key[K]](t *testing.T, n node[K]) {
	t.Helper()
	if n.kind != kindInternal {
		return
	}

	size := uint32(len(n.children))
	var wantEmpty, wantFull uint32
	for _, c := range n.children {
		if c.isNone() {
			wantEmpty++
		}
		if n.isFull(c) {
			wantFull++
		}
	}
	if wantEmpty != n.emptyChildren {
		t.Errorf("emptyChildren = %d, want %d (pos=%d bits=%d)", n.emptyChildren, wantEmpty, n.pos, n.bits)
	}
	if wantFull != n.fullChildren {
		t.Errorf("fullChildren = %d, want %d (pos=%d bits=%d)", n.fullChildren, wantFull, n.pos, n.bits)
	}

	if n.fullChildren > 0 && 50*(n.fullChildren+size-n.emptyChildren) >= inflateThreshold*size {
		t.Errorf("node at pos=%d bits=%d satisfies the strict inflate predicate", n.pos, n.bits)
	}
	if n.bits > 1 && 100*(size-n.emptyChildren) < halveThreshold*size {
		t.Errorf("node at pos=%d bits=%d satisfies the strict halve predicate", n.pos, n.bits)
	}

	for _, c := range n.children {
		checkInvariants(t, c)
	}
}

// maskPrefix32 zeroes every bit of key beyond the leading prefix bits,
// keeping the left-aligned representation Put expects.
func maskPrefix32(key bitvec.Key32, prefix uint32) bitvec.Key32 {
	if prefix == 0 {
		return 0
	}
	if prefix >= 32 {
		return key
	}
	return key & (bitvec.Key32(^uint32(0)) << (32 - prefix))
}

func TestStructuralInvariantsAfterEveryPut(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	trie := New[bitvec.Key32]()
	for i := 0; i < 2000; i++ {
		key := bitvec.Key32(rng.Uint32())
		prefix := uint32(rng.Intn(33))
		masked := maskPrefix32(key, prefix)
		trie.Put(masked, prefix, "v")
		checkInvariants(t, trie.root)
	}
}

// TestLookupSoundnessAndCompleteness inserts 4096 entries, each keyed by a
// distinct 12-bit prefix (the entry's index placed in the top 12 bits), so
// every leaf's prefix region is disjoint from every other's and the
// longest-match structure cannot introduce ambiguity between entries.
func TestLookupSoundnessAndCompleteness(t *testing.T) {
	const prefix = 12
	trie := New[bitvec.Key32]()
	for i := 0; i < 1<<prefix; i++ {
		key := bitvec.Key32(uint32(i) << (32 - prefix))
		trie.Put(key, prefix, "v")
	}

	for i := 0; i < 1<<prefix; i++ {
		base := bitvec.Key32(uint32(i) << (32 - prefix))
		// Completeness: the exact inserted key is found.
		if !trie.Get(base) {
			t.Fatalf("Get(exact key %d) = false, want true", i)
		}
		// Soundness: any bit pattern below the prefix boundary must match
		// the same entry, since no other entry shares this 12-bit prefix.
		trailing := bitvec.Key32(uint32(i)*2654435761 + 1)
		withTrailing := base | (trailing &^ maskPrefix32(bitvec.Key32(^uint32(0)), prefix))
		if !trie.Get(withTrailing) {
			t.Errorf("Get(key %d with trailing bits set) = false, want true", i)
		}
	}

	// Negative membership: a 12-bit prefix never inserted must miss.
	trie2 := New[bitvec.Key32]()
	trie2.Put(bitvec.FromBitStr32("111100000000"), prefix, "v")
	if trie2.Get(bitvec.FromBitStr32("000011111111")) {
		t.Error("Get of a disjoint 12-bit prefix = true, want false")
	}
}

func TestNegativeMembership(t *testing.T) {
	trie := New[bitvec.Key32]()
	trie.Put(bitvec.FromBitStr32("11110000"), 4, "v")
	if trie.Get(bitvec.FromBitStr32("00000000")) {
		t.Error("Get of a key disjoint from every prefix = true, want false")
	}
}
