package models

import "time"

// HeatingModel describes how a home's daily gas usage responds to outdoor
// temperature: usage = BaseLoad + HeatingCoeff * HDD(BalanceTempF).
// Models are replaced wholesale on retrain, never mutated in place.
type HeatingModel struct {
	BaseLoad     float64   `json:"base_load"`
	HeatingCoeff float64   `json:"heating_coefficient"`
	BalanceTempF float64   `json:"balance_temperature_f"`
	RSquared     float64   `json:"r_squared"`
	TrainedAt    time.Time `json:"trained_at"`
	SampleCount  int       `json:"sample_count"`
	IsDefault    bool      `json:"is_default"`
}

// HDD returns the heating degree days for an average daily temperature.
func (m HeatingModel) HDD(avgTempF float64) float64 {
	if m.BalanceTempF <= avgTempF {
		return 0
	}
	return m.BalanceTempF - avgTempF
}

// PredictDaily returns the expected usage in CCF for a day at the given
// average temperature, floored at zero.
func (m HeatingModel) PredictDaily(avgTempF float64) float64 {
	usage := m.BaseLoad + m.HeatingCoeff*m.HDD(avgTempF)
	if usage < 0 {
		return 0
	}
	return usage
}
