package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listWindow int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage samples",
	Long:  `Displays stored daily gas usage and temperature samples from the database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listWindow, "days", 0, "Only show the most recent N days")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// Open database
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	samples, err := store.All()
	if err != nil {
		return fmt.Errorf("listing samples: %w", err)
	}
	if listWindow > 0 {
		samples, err = store.Window(listWindow)
		if err != nil {
			return fmt.Errorf("listing window: %w", err)
		}
	}

	if len(samples) == 0 {
		fmt.Println("No usage data found")
		return nil
	}

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-12s  %10s  %8s  %8s  %8s\n", "Date", "CCF", "Avg °F", "Min °F", "Max °F")
	fmt.Println("------------------------------------------------------------")

	var total float64
	for _, sample := range samples {
		marker := ""
		if sample.Anomaly {
			marker = "  (clamped)"
		}
		fmt.Printf("%-12s  %10.2f  %8.1f  %8.1f  %8.1f%s\n",
			sample.Date.Format("2006-01-02"), sample.UsageCCF,
			sample.AvgTempF, sample.MinTempF, sample.MaxTempF, marker)
		total += sample.UsageCCF
	}

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Total: %.2f CCF (%s records)\n", total, humanize.Comma(int64(len(samples))))

	return nil
}
