package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/config"
	"github.com/jgoulah/gasforecast/internal/forecast"
	"github.com/jgoulah/gasforecast/internal/history"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "gasforecast",
	Short: "Scrape gas usage from the Atmos Energy portal and forecast usage and cost",
	Long: `GasForecast is a CLI tool that collects daily gas usage and weather history
from the Atmos Energy account portal, stores it in a local SQLite database, trains a
per-home heating model (base load + heating coefficient x degree days), and projects
upcoming usage and cost from a weather forecast.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openStore opens the history database
func openStore() (*history.Store, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return history.New(path)
}

// ratesFromConfig builds forecast rates from config
func ratesFromConfig(cfg *config.Config) forecast.Rates {
	return forecast.Rates{
		UsageRate:  cfg.UsageRate,
		FixedCost:  cfg.FixedCost,
		TaxPercent: cfg.TaxPercent,
	}
}
