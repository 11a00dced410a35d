package cli

import (
	"github.com/spf13/cobra"

	"soltrader/internal/app"
)

var (
	showLimit  int
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent journaled trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit, Alerts: showAlerts})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum number of rows to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show recent risk alerts instead of trades")
}
