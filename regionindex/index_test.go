package regionindex

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qv2ray/cidrmatcher/loader"
)

func records() []loader.Record {
	return []loader.Record{
		{CountryCode: "cn", CIDR: []loader.CIDREntry{{IP: []byte{1, 0, 1, 0}, Prefix: 24}}},
		{CountryCode: "us", CIDR: []loader.CIDREntry{{IP: []byte{8, 8, 8, 0}, Prefix: 24}}},
	}
}

func seqOfRecords(rs []loader.Record) func(yield func(loader.Record) bool) {
	return func(yield func(loader.Record) bool) {
		for _, r := range rs {
			if !yield(r) {
				return
			}
		}
	}
}

func TestReloadAndLookup(t *testing.T) {
	idx := New(0)
	require.NoError(t, idx.Reload(context.Background(), seqOfRecords(records())))

	assert.Equal(t, "CN", idx.CountryOf(net.ParseIP("1.0.1.5")))
	assert.Equal(t, "US", idx.CountryOf(net.ParseIP("8.8.8.8")))
	assert.Equal(t, "", idx.CountryOf(net.ParseIP("9.9.9.9")))
	assert.True(t, idx.Contains(net.ParseIP("1.0.1.5")))
	assert.False(t, idx.Contains(net.ParseIP("9.9.9.9")))
}

func TestReloadRateLimited(t *testing.T) {
	idx := New(1)
	require.NoError(t, idx.Reload(context.Background(), seqOfRecords(records())))
	err := idx.Reload(context.Background(), seqOfRecords(records()))
	assert.Error(t, err)
}

func TestEmptyIndexAlwaysMisses(t *testing.T) {
	idx := New(0)
	assert.False(t, idx.Contains(net.ParseIP("1.2.3.4")))
	assert.Equal(t, "", idx.CountryOf(net.ParseIP("::1")))
}

// TestConcurrentReloadAndLookup exercises the hot-swap contract: a reader
// must never observe a partially-built snapshot while Reload is rebuilding
// one off to the side. Run with -race to confirm no data race surfaces.
func TestConcurrentReloadAndLookup(t *testing.T) {
	idx := New(1000000) // large burst capacity: this test targets hot-swap safety, not rate limiting
	require.NoError(t, idx.Reload(context.Background(), seqOfRecords(records())))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					cc := idx.CountryOf(net.ParseIP("1.0.1.5"))
					if cc != "" && cc != "CN" {
						t.Errorf("unexpected country %q during concurrent reload", cc)
					}
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, idx.Reload(context.Background(), seqOfRecords(records())))
	}

	close(stop)
	wg.Wait()
}

func TestReloadWithMixedFamilyRecord(t *testing.T) {
	// A single country's record may carry both v4 and v6 entries
	// (spec.md §6); Reload must populate both tries from the same pass
	// over the records instead of erroring out on the "wrong" family.
	mixed := []loader.Record{
		{
			CountryCode: "cn",
			CIDR: []loader.CIDREntry{
				{IP: []byte{1, 0, 1, 0}, Prefix: 24},
				{IP: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, Prefix: 32},
			},
		},
	}

	idx := New(0)
	require.NoError(t, idx.Reload(context.Background(), seqOfRecords(mixed)))

	assert.Equal(t, "CN", idx.CountryOf(net.ParseIP("1.0.1.5")))
	assert.Equal(t, "CN", idx.CountryOf(net.ParseIP("2001:db8::1")))
	assert.Equal(t, "", idx.CountryOf(net.ParseIP("9.9.9.9")))
}

func TestReloadFromCatalog(t *testing.T) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	require.NoError(t, enc.Encode(loader.Record{
		CountryCode: "CN",
		CIDR:        []loader.CIDREntry{{IP: []byte{1, 0, 1, 0}, Prefix: 24}},
	}))
	payload := body.Bytes()
	sum := sha256.Sum256(payload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cat := &loader.CatalogClaims{
		Sources: map[string]loader.SourceRef{
			"CN": {URL: srv.URL, Hash: hex.EncodeToString(sum[:])},
		},
	}

	idx := New(0)
	fetcher := loader.NewFetcher()
	require.NoError(t, idx.ReloadFromCatalog(context.Background(), cat, fetcher.Fetch))

	assert.Equal(t, "CN", idx.CountryOf(net.ParseIP("1.0.1.5")))
	assert.NotEmpty(t, idx.Generation())
}

func TestTrieAndBSMatcherAgree(t *testing.T) {
	idx := New(0)
	require.NoError(t, idx.Reload(context.Background(), seqOfRecords(records())))

	for _, addr := range []string{"1.0.1.5", "8.8.8.8", "9.9.9.9"} {
		ip := net.ParseIP(addr)
		cc := idx.CountryOf(ip)
		for _, candidate := range []string{"CN", "US"} {
			viaBS := idx.MatchViaBSMatcher(ip, candidate)
			viaTrie := cc == candidate
			assert.Equal(t, viaTrie, viaBS, "mismatch for %s against %s", addr, candidate)
		}
	}
}
