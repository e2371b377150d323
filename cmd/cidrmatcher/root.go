// Command cidrmatcher is the operator-facing CLI wrapped around the
// lpctrie/bsmatch/loader/regionindex/report packages: it is not part of
// the core library contract (spec.md §6), only a way to exercise it
// against a real or test corpus without embedding it in another program.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config
	log     = logrus.New()
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "cidrmatcher",
		Short:         "Country-tagged CIDR longest-prefix-match indexing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			loaded, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded

			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().String("data", "", "path to a JSON/NDJSON corpus of loader.Record entries")
	root.PersistentFlags().String("country", "", "restrict to a single country code (empty means all)")
	root.PersistentFlags().String("log-level", "info", "trace|debug|info|warn|error")
	root.PersistentFlags().String("catalog-jwt", "", "signed catalog token naming per-country archive sources")
	root.PersistentFlags().String("catalog-secret", "", "HMAC secret verifying --catalog-jwt")

	root.AddCommand(newBuildCmd(), newBenchCmd(), newLookupCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cidrmatcher:", err)
		os.Exit(1)
	}
}
