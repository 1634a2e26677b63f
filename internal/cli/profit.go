package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cryptobot/internal/config"
	"cryptobot/internal/journal"
)

func newProfitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profit",
		Short: "Report realised profit from the trade archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			archive, err := journal.Open(cfg.Storage.ArchivePath)
			if err != nil {
				return err
			}
			defer archive.Close()

			summary, err := archive.Summarise()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PAIR\tTRADES\tNET PROFIT\tMEAN MARGIN")
			for _, p := range summary.Pairs {
				fmt.Fprintf(w, "%s\t%d\t%.8f\t%.2f%%\n", p.Pair, p.Trades, p.NetProfit, p.MeanMargin)
			}
			fmt.Fprintf(w, "TOTAL\t%d\t%.8f\t%.2f%%\n", summary.Trades, summary.NetProfit, summary.MeanMargin)
			return w.Flush()
		},
	}
}
