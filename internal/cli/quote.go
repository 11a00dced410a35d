package cli

import (
	"github.com/spf13/cobra"

	"soltrader/internal/app"
)

var (
	quoteInput  string
	quoteOutput string
	quoteAmount uint64
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch ranked swap routes for a pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Quote(cmd.Context(), app.QuoteOptions{
			InputMint:  quoteInput,
			OutputMint: quoteOutput,
			Amount:     quoteAmount,
		})
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteInput, "input", "", "Input token mint")
	quoteCmd.Flags().StringVar(&quoteOutput, "output", "", "Output token mint")
	quoteCmd.Flags().Uint64Var(&quoteAmount, "amount", 0, "Input amount in base units")
}
