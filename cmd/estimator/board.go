package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimator/pkg/client"
)

var (
	apiURL     string
	apiToken   string
	apiTimeout time.Duration
)

func addAPIFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&apiURL, "api", os.Getenv("ESTIMATOR_API_URL"), "estimator API base URL")
	cmd.Flags().StringVar(&apiToken, "token", os.Getenv("ESTIMATOR_TOKEN"), "access token for the API")
	cmd.Flags().DurationVar(&apiTimeout, "timeout", 30*time.Second, "API request timeout")
}

func apiClient() *client.Client {
	return client.NewClient(apiURL, apiToken, client.WithTimeout(apiTimeout))
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the sales board of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiURL == "" {
			return fmt.Errorf("--api or ESTIMATOR_API_URL is required")
		}

		b, err := apiClient().Board(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COLUMN\tPOS\tTITLE\tOPTIONS")
		for _, col := range b.Columns {
			for _, o := range col.Opportunities {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", col.ID, o.Position, o.Title, len(o.Options))
			}
		}
		return w.Flush()
	},
}

func init() {
	addAPIFlags(boardCmd)
}
