package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Load a corpus into both engines and report their sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			idx, err := buildIndex(context.Background(), cfg)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			v4, v6 := idx.Sizes()

			log.WithFields(map[string]interface{}{
				"engine":   "lpc-trie",
				"family":   "v4",
				"entries":  v4,
				"duration": elapsed,
			}).Info("build complete")
			log.WithFields(map[string]interface{}{
				"engine":   "lpc-trie",
				"family":   "v6",
				"entries":  v6,
				"duration": elapsed,
			}).Info("build complete")
			return nil
		},
	}
}
