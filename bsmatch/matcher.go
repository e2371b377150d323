// Package bsmatch implements a compact, allocation-free-at-query-time
// longest-prefix-match matcher backed by sorted arrays and binary search,
// as an alternative engine to lpctrie for the same CIDR membership problem.
package bsmatch

import "sort"

// CIDR is one (address, prefix length) pair as delivered by a loader, with
// ip in network (big-endian) byte order and len(ip) in {4, 16}.
type CIDR struct {
	IP     []byte
	Prefix int
}

// Record is a country's full CIDR block list, as handed to Put.
type Record struct {
	CountryCode string
	CIDRs       []CIDR
}

// V6 is a 128-bit address represented as two big-endian halves, ordered
// lexicographically (Hi first, then Lo) to match network byte order.
type V6 struct {
	Hi, Lo uint64
}

// Less reports whether v sorts strictly before other.
func (v V6) Less(other V6) bool {
	return v.Hi < other.Hi || (v.Hi == other.Hi && v.Lo < other.Lo)
}

func (v V6) normalize(prefix int) V6 {
	switch {
	case prefix <= 0:
		return V6{}
	case prefix <= 64:
		return V6{Hi: v.Hi >> (64 - prefix) << (64 - prefix)}
	case prefix >= 128:
		return v
	default:
		return V6{Hi: v.Hi, Lo: v.Lo >> (128 - prefix) << (128 - prefix)}
	}
}

// newV6 reads a 16-byte big-endian address into a V6, taking the high half
// from bytes[0:8] and the low half from bytes[8:16]. (The Rust original this
// is ported from read bytes[0:8] for both halves, a bug the spec calls out
// explicitly — fixed here.)
func newV6(b []byte) V6 {
	return V6{
		Hi: beUint64(b[0:8]),
		Lo: beUint64(b[8:16]),
	}
}

func beUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Matcher is a single tagged set of CIDR blocks, queryable for membership
// via binary search over normalized, sorted bases.
type Matcher struct {
	countryCode string

	ip4     []uint32
	prefix4 []uint8

	ip6     []V6
	prefix6 []uint8
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// CountryCode returns the label adopted by the most recent Put.
func (m *Matcher) CountryCode() string { return m.countryCode }

// Put loads record into the matcher, replacing any prior country label.
// Entries are appended to the existing arrays and the backing arrays are
// re-sorted, so calling Put more than once accumulates blocks rather than
// replacing them (the country label is overwritten each call).
func (m *Matcher) Put(record Record) {
	pairs := make([]CIDR, len(record.CIDRs))
	copy(pairs, record.CIDRs)

	// Stable-sort by ascending prefix length first: shorter, broader
	// blocks are appended before narrower ones sharing the same base, so
	// the tie-break in the final address sort sees them in that order.
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Prefix < pairs[j].Prefix
	})

	m.countryCode = toUpper(record.CountryCode)

	for _, pair := range pairs {
		switch len(pair.IP) {
		case 4:
			prefix := uint8(pair.Prefix)
			base := beUint32(pair.IP)
			if prefix < 32 {
				base = base >> (32 - prefix) << (32 - prefix)
			}
			m.ip4 = append(m.ip4, base)
			m.prefix4 = append(m.prefix4, prefix)
		case 16:
			prefix := uint8(pair.Prefix)
			base := newV6(pair.IP).normalize(int(prefix))
			m.ip6 = append(m.ip6, base)
			m.prefix6 = append(m.prefix6, prefix)
		default:
			// Invalid address length: silently dropped. Loaders are
			// expected to validate before handing records to Put.
		}
	}

	sortParallel4(m.ip4, m.prefix4)
	sortParallel6(m.ip6, m.prefix6)
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// sortParallel4 sorts ip4/prefix4 ascending by address, breaking ties by
// ascending prefix so the broader block precedes the narrower one.
func sortParallel4(ip []uint32, prefix []uint8) {
	idx := make([]int, len(ip))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if ip[ia] != ip[ib] {
			return ip[ia] < ip[ib]
		}
		return prefix[ia] < prefix[ib]
	})
	applyPermutation4(ip, prefix, idx)
}

func applyPermutation4(ip []uint32, prefix []uint8, idx []int) {
	outIP := make([]uint32, len(ip))
	outPrefix := make([]uint8, len(prefix))
	for i, j := range idx {
		outIP[i] = ip[j]
		outPrefix[i] = prefix[j]
	}
	copy(ip, outIP)
	copy(prefix, outPrefix)
}

func sortParallel6(ip []V6, prefix []uint8) {
	idx := make([]int, len(ip))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if ip[ia] != ip[ib] {
			return ip[ia].Less(ip[ib])
		}
		return prefix[ia] < prefix[ib]
	})
	applyPermutation6(ip, prefix, idx)
}

func applyPermutation6(ip []V6, prefix []uint8, idx []int) {
	outIP := make([]V6, len(ip))
	outPrefix := make([]uint8, len(prefix))
	for i, j := range idx {
		outIP[i] = ip[j]
		outPrefix[i] = prefix[j]
	}
	copy(ip, outIP)
	copy(prefix, outPrefix)
}

// Match4 reports whether ip (host order, already parsed from 4 bytes) falls
// within any loaded v4 block.
func (m *Matcher) Match4(ip uint32) bool {
	if len(m.ip4) == 0 || ip < m.ip4[0] {
		return false
	}
	l, r := 0, len(m.ip4)
	for l < r {
		x := (l + r) >> 1
		if ip < m.ip4[x] {
			r = x
			continue
		}
		p := m.prefix4[x]
		nip := ip
		if p < 32 {
			nip = ip >> (32 - p) << (32 - p)
		}
		if nip == m.ip4[x] {
			return true
		}
		l = x + 1
	}
	if l == 0 {
		return false
	}
	p := m.prefix4[l-1]
	nip := ip
	if p < 32 {
		nip = ip >> (32 - p) << (32 - p)
	}
	return nip == m.ip4[l-1]
}

// Match6 reports whether ip falls within any loaded v6 block.
func (m *Matcher) Match6(ip V6) bool {
	if len(m.ip6) == 0 || ip.Less(m.ip6[0]) {
		return false
	}
	l, r := 0, len(m.ip6)
	for l < r {
		x := (l + r) >> 1
		if ip.Less(m.ip6[x]) {
			r = x
			continue
		}
		nip := ip.normalize(int(m.prefix6[x]))
		if nip == m.ip6[x] {
			return true
		}
		l = x + 1
	}
	if l == 0 {
		return false
	}
	nip := ip.normalize(int(m.prefix6[l-1]))
	return nip == m.ip6[l-1]
}

// MatchIP dispatches on the byte length of b, matching spec-defined lengths
// of 4 (IPv4) or 16 (IPv6). Any other length panics: callers must validate
// address length before reaching the matcher.
func (m *Matcher) MatchIP(b []byte) bool {
	switch len(b) {
	case 4:
		return m.Match4(beUint32(b))
	case 16:
		return m.Match6(newV6(b))
	default:
		panic("bsmatch: unsupported address length")
	}
}
