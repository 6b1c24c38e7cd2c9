package forecast

import (
	"fmt"

	"github.com/jgoulah/gasforecast/pkg/models"
)

// MaxHorizonDays caps the projection horizon. The periodic fixed charge is
// excluded from the horizon cost because it applies once per billing cycle,
// not per week.
const MaxHorizonDays = 7

// UnavailableError is the reported, non-fatal condition for a forecast that
// cannot be produced: no forecast data, or the caller required a trained
// model while the model is still the regional default.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return "forecast unavailable: " + e.Reason
}

// Rates holds the billing parameters used to price projected usage.
type Rates struct {
	UsageRate  float64 // cost per CCF
	FixedCost  float64 // per billing cycle
	TaxPercent float64
}

// DailyProjection is one projected day.
type DailyProjection struct {
	Weather  models.WeatherDay
	AvgTempF float64
	HDD      float64
	UsageCCF float64
}

// Projection is the usage and cost projection over the forecast horizon.
type Projection struct {
	Days          []DailyProjection
	TotalUsageCCF float64
	PredictedCost float64
	LowConfidence bool // model was still the untrained default
}

// Project applies a heating model to a weather forecast. At most the first
// MaxHorizonDays entries are used. When requireTrained is set, a model still
// in its default state yields an UnavailableError; otherwise default-model
// projections are returned flagged LowConfidence.
func Project(model models.HeatingModel, days []models.WeatherDay, rates Rates, requireTrained bool) (*Projection, error) {
	if len(days) == 0 {
		return nil, &UnavailableError{Reason: "no forecast data supplied"}
	}
	if requireTrained && model.IsDefault {
		return nil, &UnavailableError{Reason: "heating model has not been trained yet"}
	}

	if len(days) > MaxHorizonDays {
		days = days[:MaxHorizonDays]
	}

	proj := &Projection{
		Days:          make([]DailyProjection, 0, len(days)),
		LowConfidence: model.IsDefault,
	}
	for _, day := range days {
		avg := day.AvgF()
		daily := DailyProjection{
			Weather:  day,
			AvgTempF: avg,
			HDD:      model.HDD(avg),
			UsageCCF: model.PredictDaily(avg),
		}
		proj.Days = append(proj.Days, daily)
		proj.TotalUsageCCF += daily.UsageCCF
	}

	proj.PredictedCost = proj.TotalUsageCCF * rates.UsageRate * (1 + rates.TaxPercent/100)
	return proj, nil
}

// CurrentPeriodCost estimates the bill for the billing period to date,
// including the fixed charge: (fixed + usage*rate) * (1 + tax/100).
func CurrentPeriodCost(usageToDateCCF float64, rates Rates) float64 {
	base := rates.FixedCost + usageToDateCCF*rates.UsageRate
	return base * (1 + rates.TaxPercent/100)
}

// CostFormula renders the current-period cost formula with the configured
// rates filled in, for diagnostics output.
func CostFormula(rates Rates) string {
	return fmt.Sprintf("(%.2f + (usage * %.2f)) * %.4f",
		rates.FixedCost, rates.UsageRate, 1+rates.TaxPercent/100)
}
