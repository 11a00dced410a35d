package cli

import (
	"github.com/spf13/cobra"

	"soltrader/internal/app"
)

var (
	tradeInput  string
	tradeOutput string
	tradeAmount uint64
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Execute a single swap through the best available route",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trade(cmd.Context(), app.TradeOptions{
			InputMint:  tradeInput,
			OutputMint: tradeOutput,
			Amount:     tradeAmount,
		})
	},
}

func init() {
	tradeCmd.Flags().StringVar(&tradeInput, "input", "", "Input token mint")
	tradeCmd.Flags().StringVar(&tradeOutput, "output", "", "Output token mint")
	tradeCmd.Flags().Uint64Var(&tradeAmount, "amount", 0, "Input amount in base units")
}
