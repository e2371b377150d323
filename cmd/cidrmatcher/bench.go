package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qv2ray/cidrmatcher/bitvec"
	"github.com/qv2ray/cidrmatcher/loader"
	"github.com/qv2ray/cidrmatcher/lpctrie"
	"github.com/qv2ray/cidrmatcher/report"
)

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Compare the LPC-trie and BS-Matcher engines for agreement and timing",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readCorpus(cfg.DataPath, cfg.CountryFilter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("corpus has no records to benchmark")
			}

			country := cfg.CountryFilter
			if country == "" {
				country = records[0].CountryCode
			}

			trieV4 := lpctrie.New[bitvec.Key32]()
			trieV6 := lpctrie.New[bitvec.Key128]()
			if _, err := loader.LoadLPCTrieV4(seqOfRecords(records), trieV4, func(cc string) bool { return cc == country }); err != nil {
				return err
			}
			if _, err := loader.LoadLPCTrieV6(seqOfRecords(records), trieV6, func(cc string) bool { return cc == country }); err != nil {
				return err
			}
			bsV4, bsV6, err := loader.LoadBSMatcher(seqOfRecords(records), country)
			if err != nil {
				return err
			}

			var queries4 [][]byte
			var queries6 [][]byte
			var keys4 []bitvec.Key32
			for _, r := range records {
				if r.CountryCode != country {
					continue
				}
				for _, e := range r.CIDR {
					switch len(e.IP) {
					case 4:
						queries4 = append(queries4, e.IP)
						key, err := loader.KeyV4FromBytes(e.IP, 32)
						if err == nil {
							keys4 = append(keys4, key)
						}
					case 16:
						queries6 = append(queries6, e.IP)
					}
				}
			}

			mismatches := report.Compare(trieV4, trieV6, bsV4, bsV6, append(append([][]byte{}, queries4...), queries6...))
			for _, m := range mismatches {
				log.WithFields(map[string]interface{}{
					"ip":         fmt.Sprintf("%v", m.IP),
					"trie_match": m.TrieMatch,
					"bs_match":   m.BSMatch,
				}).Warn("engine disagreement")
			}

			trieTiming := report.TimeTrie(trieV4, keys4)
			log.WithFields(map[string]interface{}{
				"engine":   trieTiming.Engine,
				"family":   "v4",
				"entries":  trieTiming.Queries,
				"duration": trieTiming.Elapsed,
			}).Info(trieTiming.String())

			bsTiming := report.TimeBSMatcher(bsV4, queries4)
			log.WithFields(map[string]interface{}{
				"engine":   bsTiming.Engine,
				"family":   "v4",
				"entries":  bsTiming.Queries,
				"duration": bsTiming.Elapsed,
			}).Info(bsTiming.String())

			log.WithField("mismatches", len(mismatches)).Info("bench complete")
			return nil
		},
	}
}
