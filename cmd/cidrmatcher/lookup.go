package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <ip>",
		Short: "Look up which country's CIDR blocks, if any, an address falls under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip := net.ParseIP(args[0])
			if ip == nil {
				return fmt.Errorf("invalid IP address: %s", args[0])
			}

			idx, err := buildIndex(context.Background(), cfg)
			if err != nil {
				return err
			}

			cc := idx.CountryOf(ip)
			family := "v6"
			if ip.To4() != nil {
				family = "v4"
			}
			if cc == "" {
				log.WithFields(map[string]interface{}{"family": family}).Info("no match")
				fmt.Println("no match")
				return nil
			}

			log.WithFields(map[string]interface{}{
				"family": family,
				"engine": "lpc-trie",
			}).Infof("matched %s", cc)
			fmt.Println(cc)
			return nil
		},
	}
}
