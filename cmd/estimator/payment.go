package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimator/internal/finance"
)

var (
	paymentAPR    float64
	paymentMonths int
)

var paymentCmd = &cobra.Command{
	Use:   "payment [principal]",
	Short: "Calculate a rounded monthly payment",
	Long: `Calculates the monthly payment for a financed amount, rounded to
the nearest whole dollar.

Example:
  estimator payment 10000 --apr 6.99 --months 60

With --api the calculation is delegated to a running server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var principal float64
		if _, err := fmt.Sscanf(args[0], "%g", &principal); err != nil || principal < 0 {
			return fmt.Errorf("invalid principal %q", args[0])
		}
		if paymentMonths <= 0 {
			return fmt.Errorf("months must be positive")
		}
		if paymentAPR < 0 {
			return fmt.Errorf("apr must not be negative")
		}

		monthly := finance.MonthlyPayment(principal, paymentAPR, paymentMonths)

		if apiURL != "" {
			p, err := apiClient().MonthlyPayment(cmd.Context(), principal, paymentAPR, paymentMonths)
			if err != nil {
				return err
			}
			monthly = p.MonthlyPayment
		}

		fmt.Fprintf(cmd.OutOrStdout(), "$%d/mo for %d months at %.2f%% APR\n", monthly, paymentMonths, paymentAPR)
		return nil
	},
}

func init() {
	paymentCmd.Flags().Float64Var(&paymentAPR, "apr", 0, "annual percentage rate, e.g. 6.99")
	paymentCmd.Flags().IntVar(&paymentMonths, "months", 60, "term in months")
	addAPIFlags(paymentCmd)
}
