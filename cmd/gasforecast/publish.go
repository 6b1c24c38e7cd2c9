package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/publisher"
	"github.com/jgoulah/gasforecast/internal/thermal"
)

var publishAll bool

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored readings and the model to MQTT / Home Assistant",
	Long: `Publishes the most recent daily usage sample and the current heating model
parameters to the configured MQTT broker and/or Home Assistant instance.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Publish every stored sample, not just the latest")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.MQTT.Enabled && !cfg.HomeAssistant.Enabled {
		return fmt.Errorf("neither MQTT nor Home Assistant publishing is enabled in config")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	samples, err := store.All()
	if err != nil {
		return fmt.Errorf("loading samples: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no usage data to publish, run 'gasforecast fetch' first")
	}
	if !publishAll {
		samples = samples[len(samples)-1:]
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	published := 0
	for _, sample := range samples {
		if cfg.MQTT.Enabled {
			if err := pub.PublishSample(sample); err != nil {
				return fmt.Errorf("publishing sample %s: %w", sample.Date.Format("2006-01-02"), err)
			}
		}
		if cfg.HomeAssistant.Enabled {
			if err := pub.PublishHA(sample); err != nil {
				return fmt.Errorf("publishing sample %s to Home Assistant: %w", sample.Date.Format("2006-01-02"), err)
			}
		}
		published++
	}
	fmt.Printf("✓ Published %d samples\n", published)

	if cfg.MQTT.Enabled {
		m := thermal.DefaultModel()
		if loaded, _, found, err := store.LoadModel(); err == nil && found {
			m = loaded
		}
		if err := pub.PublishModel(m); err != nil {
			return fmt.Errorf("publishing model: %w", err)
		}
		fmt.Println("✓ Published model parameters")
	}

	return nil
}
