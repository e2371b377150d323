package loader

import (
	"iter"

	"github.com/qv2ray/cidrmatcher/bitvec"
	"github.com/qv2ray/cidrmatcher/lpctrie"
)

// LoadLPCTrie normalizes every CIDR entry of every record whose country
// code passes countryFilter (nil admits everything) into a left-aligned,
// prefix-masked key of type K via keyOf, and inserts it into trie. A
// record may legitimately mix v4 and v6 entries (spec.md §6's per-record
// `ip.len ∈ {4,16}` contract), so an entry whose address length doesn't
// match the family keyOf expects is skipped rather than treated as an
// error — only one address family at a time ever belongs in a given
// trie. It returns the number of entries inserted and the first
// genuine validation error encountered, if any; loading stops at the
// first such error.
func LoadLPCTrie[K lpctrie.Key[K]](
	records iter.Seq[Record],
	trie *lpctrie.Trie[K],
	countryFilter func(string) bool,
	keyOf func(ip []byte, prefix int) (K, error),
) (n int, err error) {
	for rec := range records {
		if countryFilter != nil && !countryFilter(rec.CountryCode) {
			continue
		}
		for _, e := range rec.CIDR {
			if verr := e.validate(); verr != nil {
				return n, verr
			}
			key, kerr := keyOf(e.IP, e.Prefix)
			if kerr != nil {
				// e already passed validate(), so this can only be a
				// family mismatch (e.g. a v6 entry offered to a v4
				// trie) — skip it, don't abort the whole load.
				continue
			}
			trie.Put(key, uint32(e.Prefix), rec.CountryCode)
			n++
		}
	}
	return n, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// KeyV4FromBytes parses a 4-byte big-endian address into a bitvec.Key32,
// masked to prefix bits (bits beyond prefix zeroed, left-aligned).
func KeyV4FromBytes(ip []byte, prefix int) (bitvec.Key32, error) {
	if len(ip) != 4 {
		return 0, ErrInvalidAddress
	}
	v := be32(ip)
	if prefix < 32 {
		v = v >> (32 - prefix) << (32 - prefix)
	}
	return bitvec.Key32(v), nil
}

// KeyV6FromBytes parses a 16-byte big-endian address into a bitvec.Key128,
// masked to prefix bits (bits beyond prefix zeroed, left-aligned).
func KeyV6FromBytes(ip []byte, prefix int) (bitvec.Key128, error) {
	if len(ip) != 16 {
		return bitvec.Key128{}, ErrInvalidAddress
	}
	hi, lo := be64(ip[0:8]), be64(ip[8:16])
	switch {
	case prefix <= 0:
		hi, lo = 0, 0
	case prefix <= 64:
		hi = hi >> (64 - prefix) << (64 - prefix)
		lo = 0
	case prefix < 128:
		lo = lo >> (128 - prefix) << (128 - prefix)
	}
	return bitvec.Key128{Hi: hi, Lo: lo}, nil
}

// LoadLPCTrieV4 is LoadLPCTrie specialized for IPv4 records.
func LoadLPCTrieV4(records iter.Seq[Record], trie *lpctrie.TrieV4, countryFilter func(string) bool) (int, error) {
	return LoadLPCTrie(records, trie, countryFilter, KeyV4FromBytes)
}

// LoadLPCTrieV6 is LoadLPCTrie specialized for IPv6 records.
func LoadLPCTrieV6(records iter.Seq[Record], trie *lpctrie.TrieV6, countryFilter func(string) bool) (int, error) {
	return LoadLPCTrie(records, trie, countryFilter, KeyV6FromBytes)
}
