package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/forecast"
	"github.com/jgoulah/gasforecast/internal/thermal"
	"github.com/jgoulah/gasforecast/pkg/models"
)

var (
	weatherFile    string
	requireTrained bool
)

var forecastCmd = &cobra.Command{
	Use:   "forecast [high/low]...",
	Short: "Project usage and cost from a weather forecast",
	Long: `Applies the trained heating model to a weather forecast and prints projected
daily usage plus total usage and cost over the horizon (up to 7 days).

Forecast days are given either as high/low pairs on the command line:

  gasforecast forecast 42/28 45/30 50/38

or as a JSON file of [{"high_f": 42, "low_f": 28}, ...] via --weather.`,
	RunE: runForecast,
}

func init() {
	forecastCmd.Flags().StringVar(&weatherFile, "weather", "", "JSON file with forecast days")
	forecastCmd.Flags().BoolVar(&requireTrained, "require-trained", false, "Fail instead of using the untrained default model")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	days, err := parseWeatherDays(args)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	model := thermal.DefaultModel()
	if m, _, found, err := store.LoadModel(); err == nil && found {
		model = m
	}

	proj, err := forecast.Project(model, days, ratesFromConfig(cfg), requireTrained)
	if err != nil {
		return err
	}

	if proj.LowConfidence {
		fmt.Println("Note: model is untrained, projections use regional defaults (low confidence)")
	}

	fmt.Println("----------------------------------------------------")
	fmt.Printf("%-6s  %6s  %6s  %6s  %10s\n", "Day", "High", "Low", "HDD", "CCF")
	fmt.Println("----------------------------------------------------")
	for i, day := range proj.Days {
		fmt.Printf("%-6d  %6.1f  %6.1f  %6.1f  %10.2f\n",
			i+1, day.Weather.HighF, day.Weather.LowF, day.HDD, day.UsageCCF)
	}
	fmt.Println("----------------------------------------------------")
	fmt.Printf("Total: %.2f CCF over %d days, estimated $%.2f\n",
		proj.TotalUsageCCF, len(proj.Days), proj.PredictedCost)

	return nil
}

// parseWeatherDays reads forecast days from args ("42/28" pairs) or the
// --weather JSON file.
func parseWeatherDays(args []string) ([]models.WeatherDay, error) {
	if weatherFile != "" {
		data, err := os.ReadFile(weatherFile)
		if err != nil {
			return nil, fmt.Errorf("reading weather file: %w", err)
		}
		var days []models.WeatherDay
		if err := json.Unmarshal(data, &days); err != nil {
			return nil, fmt.Errorf("parsing weather file: %w", err)
		}
		return days, nil
	}

	var days []models.WeatherDay
	for _, arg := range args {
		parts := strings.SplitN(arg, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid forecast day %q (expected high/low, e.g. 42/28)", arg)
		}
		high, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid high temperature in %q: %w", arg, err)
		}
		low, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid low temperature in %q: %w", arg, err)
		}
		days = append(days, models.WeatherDay{HighF: high, LowF: low})
	}
	return days, nil
}
