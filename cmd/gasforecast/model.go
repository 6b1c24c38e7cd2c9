package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/forecast"
	"github.com/jgoulah/gasforecast/internal/thermal"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show the current heating model and training diagnostics",
	RunE:  runModel,
}

func init() {
	rootCmd.AddCommand(modelCmd)
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	m := thermal.DefaultModel()
	newSinceTrain := 0
	if loaded, pending, found, err := store.LoadModel(); err != nil {
		return fmt.Errorf("loading model: %w", err)
	} else if found {
		m = loaded
		newSinceTrain = pending
	}

	count, err := store.Count()
	if err != nil {
		return fmt.Errorf("counting history: %w", err)
	}
	window, err := store.Window(cfg.GetHistoryDays())
	if err != nil {
		return fmt.Errorf("loading window: %w", err)
	}
	latest, err := store.LatestDate()
	if err != nil {
		return fmt.Errorf("querying latest sample: %w", err)
	}

	fmt.Println("Heating model:")
	fmt.Printf("  Base load:           %.2f CCF/day\n", m.BaseLoad)
	fmt.Printf("  Heating coefficient: %.3f CCF per degree day\n", m.HeatingCoeff)
	fmt.Printf("  Balance temperature: %.0f°F\n", m.BalanceTempF)
	fmt.Printf("  R²:                  %.3f\n", m.RSquared)
	if m.IsDefault {
		fmt.Println("  Status:              regional defaults (not yet trained)")
	} else {
		fmt.Printf("  Status:              trained %s on %d samples\n", humanize.Time(m.TrainedAt), m.SampleCount)
	}

	fmt.Println("History:")
	fmt.Printf("  Stored samples:      %s (%d in the %d-day window)\n",
		humanize.Comma(int64(count)), len(window), cfg.GetHistoryDays())
	if !latest.IsZero() {
		fmt.Printf("  Latest sample:       %s\n", latest.Format("2006-01-02"))
	}
	fmt.Printf("  New since training:  %d (full retrain at %d)\n", newSinceTrain, thermal.MinSamples)

	fmt.Println("Billing:")
	fmt.Printf("  Cost formula:        %s\n", forecast.CostFormula(ratesFromConfig(cfg)))

	return nil
}
