package thermal

import (
	"time"

	"github.com/jgoulah/gasforecast/pkg/models"
)

// Regional defaults used until enough history accumulates to train a
// personalized model.
const (
	DefaultBaseLoad     = 1.2
	DefaultHeatingCoeff = 0.09
	DefaultBalanceTempF = 65.0
)

// Bounds of plausible balance temperatures. A fit outside this band means a
// data or measurement anomaly, not a genuine home characteristic.
const (
	MinBalanceTempF = 50
	MaxBalanceTempF = 80
)

// MinSamples is the fewest history samples a fit will be attempted on.
const MinSamples = 10

// DefaultModel returns the untrained regional-default model.
func DefaultModel() models.HeatingModel {
	return models.HeatingModel{
		BaseLoad:     DefaultBaseLoad,
		HeatingCoeff: DefaultHeatingCoeff,
		BalanceTempF: DefaultBalanceTempF,
		TrainedAt:    time.Time{},
		IsDefault:    true,
	}
}
