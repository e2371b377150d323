// Package regionindex holds a country-tagged CIDR index behind a
// lock-free, hot-swappable snapshot, adapting the teacher's singleton
// manager + EDL updater + atomic-swap matcher architecture from "one
// blocklist trie" to "every loaded country's engines at once".
package regionindex

import (
	"context"
	"fmt"
	"iter"
	"net"

	"github.com/qv2ray/cidrmatcher/bitvec"
	"github.com/qv2ray/cidrmatcher/bsmatch"
	"github.com/qv2ray/cidrmatcher/loader"
	"github.com/qv2ray/cidrmatcher/lpctrie"
	"github.com/qv2ray/cidrmatcher/pkg/logger"
	"github.com/qv2ray/cidrmatcher/pkg/utils"
	"github.com/qv2ray/cidrmatcher/ratelimit"
)

// snapshot bundles every engine built from one loaded generation of
// records: the two LPC-tries (shared across all countries, each leaf's
// value being its country code) and, per country, a BS-Matcher pair kept around for
// the engine-equivalence property (spec.md §8 property 7).
type snapshot struct {
	generation string

	trieV4 *lpctrie.TrieV4
	trieV6 *lpctrie.TrieV6

	bsV4 map[string]*bsmatch.Matcher
	bsV6 map[string]*bsmatch.Matcher
}

func emptySnapshot() *snapshot {
	return &snapshot{
		trieV4: lpctrie.New[bitvec.Key32](),
		trieV6: lpctrie.New[bitvec.Key128](),
		bsV4:   map[string]*bsmatch.Matcher{},
		bsV6:   map[string]*bsmatch.Matcher{},
	}
}

// Index is a lock-free-readable CIDR index covering any number of
// countries. The zero value is not usable; construct with New.
type Index struct {
	current atomicPointer
	limiter *ratelimit.Bucket
}

// New returns an empty Index. reloadsPerMinute bounds how often Reload is
// allowed to rebuild the snapshot (it doubles as the initial burst
// capacity); pass 0 to fall back to a generous default of 6 reloads per
// minute. ratelimit.Bucket refills per second, so rates below 60/minute
// are clamped to a 1-per-second floor rather than reproduced exactly.
func New(reloadsPerMinute int64) *Index {
	if reloadsPerMinute <= 0 {
		reloadsPerMinute = 6
	}
	refillPerSecond := reloadsPerMinute / 60
	if refillPerSecond < 1 {
		refillPerSecond = 1
	}
	idx := &Index{limiter: ratelimit.New(reloadsPerMinute, refillPerSecond)}
	idx.current.store(emptySnapshot())
	return idx
}

// CountryOf returns the uppercased country code of the CIDR block that the
// v4 or v6 trie lookup for ip lands on, or "" when that block does not
// contain ip. The lookup checks a single block: where blocks nest or share
// a base, the block reached is not necessarily the most specific one
// containing ip, and a containing broader block may be missed.
func (idx *Index) CountryOf(ip net.IP) string {
	snap := idx.current.load()
	if v4 := ip.To4(); v4 != nil {
		key, err := loader.KeyV4FromBytes(v4, 32)
		if err != nil {
			return ""
		}
		return snap.trieV4.GetWithValue(key)
	}
	if v6 := ip.To16(); v6 != nil {
		key, err := loader.KeyV6FromBytes(v6, 128)
		if err != nil {
			return ""
		}
		return snap.trieV6.GetWithValue(key)
	}
	return ""
}

// Sizes returns the number of entries held by the v4 and v6 LPC-tries in
// the currently active snapshot.
func (idx *Index) Sizes() (v4, v6 uint32) {
	snap := idx.current.load()
	return snap.trieV4.Size(), snap.trieV6.Size()
}

// Contains reports whether ip matches any loaded block, regardless of
// which country it belongs to.
func (idx *Index) Contains(ip net.IP) bool {
	return idx.CountryOf(ip) != ""
}

// MatchViaBSMatcher reproduces CountryOf's verdict using the BS-Matcher
// engine instead of the trie, for the country code given. This package's
// tests use it to check engine equivalence (spec.md §8 property 7);
// production lookups should use CountryOf/Contains.
func (idx *Index) MatchViaBSMatcher(ip net.IP, countryCode string) bool {
	snap := idx.current.load()
	if v4 := ip.To4(); v4 != nil {
		m := snap.bsV4[countryCode]
		return m != nil && m.MatchIP(v4)
	}
	if v6 := ip.To16(); v6 != nil {
		m := snap.bsV6[countryCode]
		return m != nil && m.MatchIP(v6)
	}
	return false
}

// Reload rebuilds the index from records off to the side and atomically
// swaps it in, never mutating the snapshot a concurrent reader might be
// traversing. It returns an error without swapping if the rate limiter
// rejects this call, or if the records fail validation.
func (idx *Index) Reload(ctx context.Context, records iter.Seq[loader.Record]) error {
	if !idx.limiter.Allow(1) {
		logger.Warn("reload rejected: rate limit exceeded")
		return fmt.Errorf("regionindex: reload rate limit exceeded")
	}

	materialized, countries, err := materialize(records)
	if err != nil {
		logger.Errorf("reload aborted: %v", err)
		return err
	}

	next := emptySnapshot()
	next.generation = utils.GenerateUUID()
	n4, err := loader.LoadLPCTrieV4(seqOf(materialized), next.trieV4, nil)
	if err != nil {
		logger.Errorf("lpc-trie v4 load failed: %v", err)
		return err
	}
	n6, err := loader.LoadLPCTrieV6(seqOf(materialized), next.trieV6, nil)
	if err != nil {
		logger.Errorf("lpc-trie v6 load failed: %v", err)
		return err
	}
	for _, cc := range countries {
		v4, v6, err := loader.LoadBSMatcher(seqOf(materialized), cc)
		if err != nil {
			logger.Errorf("bs-matcher load failed for %s: %v", cc, err)
			return err
		}
		next.bsV4[cc] = v4
		next.bsV6[cc] = v6
	}

	idx.current.store(next)
	logger.Infof("reload complete generation=%s: %s, %s, %d countries", next.generation, logger.WithField("trieV4Entries", n4), logger.WithField("trieV6Entries", n6), len(countries))
	return nil
}

// ReloadFromCatalog fetches every source named in cat via fetch, decodes
// each as an NDJSON stream of records, and reloads the index from their
// concatenation. This is the entry point that corresponds to a real
// deployment's refresh cycle; Reload itself stays decoupled from any
// particular transport so tests and the CLI can feed it records directly.
func (idx *Index) ReloadFromCatalog(ctx context.Context, cat *loader.CatalogClaims, fetch loader.FetchSource) error {
	var all []loader.Record
	for country, ref := range cat.Sources {
		rc, err := fetch(ctx, ref)
		if err != nil {
			return fmt.Errorf("regionindex: fetch source for %s: %w", country, err)
		}
		records, err := loader.DecodeRecords(rc)
		closeErr := rc.Close()
		if err != nil {
			return fmt.Errorf("regionindex: decode source for %s: %w", country, err)
		}
		if closeErr != nil {
			return fmt.Errorf("regionindex: close source for %s: %w", country, closeErr)
		}
		all = append(all, records...)
	}
	return idx.Reload(ctx, seqOf(all))
}

// Generation returns the random identifier tagging the currently active
// snapshot, for log correlation across a Reload and subsequent lookups.
func (idx *Index) Generation() string {
	return idx.current.load().generation
}

// materialize drains records into a slice, uppercasing each country code so
// the trie's stored value, the BS-Matcher map keys, and bsmatch.Matcher's
// own uppercased label all agree.
func materialize(records iter.Seq[loader.Record]) ([]loader.Record, []string, error) {
	var out []loader.Record
	seen := map[string]bool{}
	var countries []string
	for r := range records {
		r.CountryCode = toUpper(r.CountryCode)
		out = append(out, r)
		if !seen[r.CountryCode] {
			seen[r.CountryCode] = true
			countries = append(countries, r.CountryCode)
		}
	}
	return out, countries, nil
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

func seqOf(records []loader.Record) iter.Seq[loader.Record] {
	return func(yield func(loader.Record) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}
