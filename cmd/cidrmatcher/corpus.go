package main

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qv2ray/cidrmatcher/loader"
	"github.com/qv2ray/cidrmatcher/regionindex"
)

// readCorpus decodes a JSON/NDJSON corpus of loader.Record entries from
// path, optionally keeping only the given country code.
func readCorpus(path, countryFilter string) ([]loader.Record, error) {
	if path == "" {
		return nil, fmt.Errorf("no --data corpus path given")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	records, err := loader.DecodeRecords(f)
	if err != nil {
		return nil, err
	}
	if countryFilter == "" {
		return records, nil
	}

	var filtered []loader.Record
	for _, r := range records {
		if r.CountryCode == countryFilter {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// buildIndex populates a fresh regionindex.Index from --catalog-jwt (when
// set, fetching every named source over HTTP) or else from --data.
func buildIndex(ctx context.Context, cfg *config) (*regionindex.Index, error) {
	idx := regionindex.New(0)

	if cfg.CatalogJWT != "" {
		secret := []byte(cfg.CatalogSecret)
		cat, err := loader.ParseCatalog(cfg.CatalogJWT, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			return nil, err
		}
		fetcher := loader.NewFetcher()
		if err := idx.ReloadFromCatalog(ctx, cat, fetcher.Fetch); err != nil {
			return nil, err
		}
		return idx, nil
	}

	records, err := readCorpus(cfg.DataPath, cfg.CountryFilter)
	if err != nil {
		return nil, err
	}
	if err := idx.Reload(ctx, seqOfRecords(records)); err != nil {
		return nil, err
	}
	return idx, nil
}

func seqOfRecords(records []loader.Record) iter.Seq[loader.Record] {
	return func(yield func(loader.Record) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}
