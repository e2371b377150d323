// Package report implements the engine-equivalence check described in
// spec.md §8 property 7: for a fixed corpus, the LPC-trie and the
// BS-Matcher must return identical membership verdicts on the same
// queries. It is also where a/b timing comparisons between the two
// engines live, mirroring the three-way bench comparison in the original
// source's benchmark harness (LPC-trie vs radix trie vs the legacy
// GeoIPMatcher).
package report

import (
	"fmt"
	"time"

	"github.com/qv2ray/cidrmatcher/bitvec"
	"github.com/qv2ray/cidrmatcher/bsmatch"
	"github.com/qv2ray/cidrmatcher/loader"
	"github.com/qv2ray/cidrmatcher/lpctrie"
)

// Mismatch records one query where the two engines disagreed.
type Mismatch struct {
	IP        []byte
	TrieMatch bool
	BSMatch   bool
}

// Compare runs every address in queries against both engines and returns
// every disagreement found. An empty result means the two engines are
// equivalent over this corpus.
func Compare(trieV4 *lpctrie.TrieV4, trieV6 *lpctrie.TrieV6, bsV4, bsV6 *bsmatch.Matcher, queries [][]byte) []Mismatch {
	var mismatches []Mismatch
	for _, ip := range queries {
		var trieHit, bsHit bool
		switch len(ip) {
		case 4:
			key, err := loader.KeyV4FromBytes(ip, 32)
			if err != nil {
				continue
			}
			trieHit = trieV4.Get(key)
			bsHit = bsV4.MatchIP(ip)
		case 16:
			key, err := loader.KeyV6FromBytes(ip, 128)
			if err != nil {
				continue
			}
			trieHit = trieV6.Get(key)
			bsHit = bsV6.MatchIP(ip)
		default:
			continue
		}
		if trieHit != bsHit {
			mismatches = append(mismatches, Mismatch{IP: ip, TrieMatch: trieHit, BSMatch: bsHit})
		}
	}
	return mismatches
}

// Timing is the measured wall-clock cost of running every query in
// queries against one engine, once.
type Timing struct {
	Engine   string
	Queries  int
	Elapsed  time.Duration
	PerQuery time.Duration
}

func (t Timing) String() string {
	return fmt.Sprintf("%s: %d queries in %s (%s/query)", t.Engine, t.Queries, t.Elapsed, t.PerQuery)
}

// TimeTrie measures a single pass of queries against an LPC-trie.
func TimeTrie(trieV4 *lpctrie.TrieV4, queries []bitvec.Key32) Timing {
	start := time.Now()
	for _, k := range queries {
		trieV4.Get(k)
	}
	elapsed := time.Since(start)
	return timingOf("lpc-trie", len(queries), elapsed)
}

// TimeBSMatcher measures a single pass of queries against a BS-Matcher.
func TimeBSMatcher(m *bsmatch.Matcher, queries [][]byte) Timing {
	start := time.Now()
	for _, q := range queries {
		m.MatchIP(q)
	}
	elapsed := time.Since(start)
	return timingOf("bs-matcher", len(queries), elapsed)
}

func timingOf(engine string, n int, elapsed time.Duration) Timing {
	t := Timing{Engine: engine, Queries: n, Elapsed: elapsed}
	if n > 0 {
		t.PerQuery = elapsed / time.Duration(n)
	}
	return t
}
