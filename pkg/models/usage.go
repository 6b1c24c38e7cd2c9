package models

import "time"

// UsageSample represents a single day's gas usage with the weather observed
// that day. The date is the unique key; a later download that reports a
// corrected value for the same date supersedes the stored sample.
type UsageSample struct {
	Date     time.Time `json:"date"`
	UsageCCF float64   `json:"usage_ccf"`
	AvgTempF float64   `json:"avg_temp_f"`
	MinTempF float64   `json:"min_temp_f"`
	MaxTempF float64   `json:"max_temp_f"`
	Anomaly  bool      `json:"anomaly,omitempty"` // raw reading was negative and got clamped to 0
}

// WeatherDay is one day of an externally supplied weather forecast.
type WeatherDay struct {
	HighF float64 `json:"high_f"`
	LowF  float64 `json:"low_f"`
}

// AvgF returns the average daily temperature used for HDD computation.
func (d WeatherDay) AvgF() float64 {
	return (d.HighF + d.LowF) / 2
}
