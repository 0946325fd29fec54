package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagedeck/usagedeck/internal/proxy"
)

// accountsCmd lists the credential records known to the management proxy
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List credential records from the management proxy",
	Long: `List all stored credential records the management proxy reports,
with their provider classification and state.

Example:
  usagedeck accounts --config config.yaml`,
	RunE: runAccounts,
}

func init() {
	RootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadForOneShot()
	if err != nil {
		return err
	}

	client := proxy.NewClient(cfg.Proxy.Endpoint, cfg.Proxy.ManagementKey, cfg.Proxy.CallTimeout, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(accounts)
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	fmt.Printf("%-40s %-12s %-10s %s\n", "ACCOUNT", "PROVIDER", "DISABLED", "STATUS")
	for _, acc := range accounts {
		fmt.Printf("%-40s %-12s %-10v %s\n",
			acc.Identity(), string(acc.Kind()), acc.Disabled, acc.Status)
	}
	return nil
}
