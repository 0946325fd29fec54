package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagedeck/usagedeck/internal/aggregator"
	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/models"
	"github.com/usagedeck/usagedeck/internal/proxy"
)

// usageCmd runs one aggregation cycle and prints the report
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Run one aggregation cycle and print the usage report",
	Long: `Run a single aggregation cycle against the management proxy and
print the normalized usage report, without starting the server or
recording snapshots.

Example:
  usagedeck usage --config config.yaml --json`,
	RunE: runUsage,
}

func init() {
	RootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadForOneShot()
	if err != nil {
		return err
	}

	client := proxy.NewClient(cfg.Proxy.Endpoint, cfg.Proxy.ManagementKey, cfg.Proxy.CallTimeout, logger)
	svc := aggregator.NewService(client, nil, nil, logger, nil, aggregator.Options{
		HiddenAccounts: cfg.Aggregator.HiddenAccounts,
		CallTimeout:    cfg.Proxy.CallTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	report, err := svc.Aggregate(ctx)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	printReport(report)
	return nil
}

func printReport(report *models.UsageReport) {
	fmt.Printf("Collected at %s\n\n", report.CollectedAt.Format(time.RFC3339))

	if len(report.Accounts) > 0 {
		fmt.Println("Claude accounts:")
		for _, acc := range report.Accounts {
			fmt.Printf("  %-40s %-8s 5h=%5.1f%%  7d=%5.1f%%  7d-sonnet=%5.1f%%\n",
				identityOf(acc.Email, acc.Name), acc.Status,
				acc.FiveHour.Utilization, acc.SevenDay.Utilization, acc.SevenDaySonnet.Utilization)
		}
		fmt.Println()
	}

	if len(report.Codex) > 0 {
		fmt.Println("Codex accounts:")
		for _, acc := range report.Codex {
			fmt.Printf("  %-40s %-8s primary=%5.1f%%  plan=%s\n",
				identityOf(acc.Email, acc.Name), acc.Status,
				acc.RateLimit.Primary.UsedPercent, acc.PlanType)
		}
		fmt.Println()
	}

	if len(report.Gemini) > 0 {
		fmt.Println("Gemini accounts:")
		for _, acc := range report.Gemini {
			if acc.Quota != nil {
				fmt.Printf("  %-40s %-8s used=%5.1f%%  model=%s\n",
					identityOf(acc.Email, acc.Name), acc.Status, acc.Quota.Used, acc.Quota.ModelID)
			} else {
				fmt.Printf("  %-40s %-8s (no quota data)\n", identityOf(acc.Email, acc.Name), acc.Status)
			}
		}
	}
}

func identityOf(email, name string) string {
	if email != "" {
		return email
	}
	if name != "" {
		return name
	}
	return "(unnamed)"
}

func loadForOneShot() (*config.Config, *logging.Logger, error) {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.LevelWarn
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(level), logging.WithOutput(os.Stderr))

	return cfg, logger, nil
}
