package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/pipeline"
	"github.com/jgoulah/gasforecast/internal/portal"
)

var fetchMonthly bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch usage data from the Atmos Energy portal",
	Long: `Runs one update cycle: downloads the current billing period's usage file,
parses it into daily samples, merges them into the local database, and retrains the
heating model when enough new data has accumulated.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchMonthly, "monthly", false, "Fetch the monthly usage file instead of daily")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("no credentials configured. Add username/password to %s or run 'gasforecast login'", getConfigPath())
	}

	// Open database
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	client := portal.NewClient(cfg.Username, cfg.Password,
		portal.WithMinInterval(cfg.GetMinFetchInterval()))
	if len(cfg.Cookies) > 0 {
		if err := client.SeedCookies(cfg.Cookies); err != nil {
			fmt.Printf("Warning: could not seed saved cookies: %v\n", err)
		}
	}

	pipe := pipeline.New(client, store, cfg.GetHistoryDays())

	opts := pipeline.Options{
		DailyUsage:          cfg.GetDailyUsage() && !fetchMonthly,
		Rates:               ratesFromConfig(cfg),
		BalanceTempOverride: cfg.BalanceTempOverride,
	}

	result, err := pipe.RunUpdateCycle(context.Background(), opts)
	if err != nil {
		var authErr *portal.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("authentication failed (check username/password in config): %w", err)
		}
		return fmt.Errorf("update cycle failed: %w", err)
	}

	fmt.Printf("✓ Parsed %d samples, %d new (window now %d days)\n",
		result.SamplesParsed, result.SamplesAdded, result.WindowSize)
	if result.Anomalies > 0 {
		fmt.Printf("  - %d negative readings clamped to 0\n", result.Anomalies)
	}
	fmt.Printf("  - Period usage to date: %.2f CCF (est. cost $%.2f)\n",
		result.PeriodUsageCCF, result.PeriodCost)
	if !result.LatestSample.IsZero() {
		fmt.Printf("  - Latest sample: %s\n", result.LatestSample.Format("2006-01-02"))
	}

	if result.Retrained {
		m := result.Model
		fmt.Printf("✓ Model retrained: base load %.2f CCF/day, heating coeff %.3f CCF/HDD, balance temp %.0f°F (R²=%.3f)\n",
			m.BaseLoad, m.HeatingCoeff, m.BalanceTempF, m.RSquared)
	} else if result.TrainSkipReason != "" {
		fmt.Printf("  Model unchanged: %s\n", result.TrainSkipReason)
	}

	return nil
}
