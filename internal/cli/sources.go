package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/internal/loki"
)

var sourcesLabel string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List log sources known to Loki",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := loki.NewHTTPClient(cfg.Loki.BaseURL, cfg.Loki.Username, cfg.Loki.Password, cfg.Loki.OrgID, cfg.Loki.Timeout)
		var values []string
		var err error
		if sourcesLabel == "" {
			values, err = c.Labels(cmd.Context())
		} else {
			values, err = c.LabelValues(cmd.Context(), sourcesLabel)
		}
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesLabel, "label", "service", "stream label whose values name log sources; empty lists label names")
}
