package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/gasforecast/pkg/models"
)

func trainedModel() models.HeatingModel {
	return models.HeatingModel{
		BaseLoad:     1.5,
		HeatingCoeff: 0.1,
		BalanceTempF: 65,
		RSquared:     0.95,
		IsDefault:    false,
	}
}

func TestProjectAtBalanceTemperature(t *testing.T) {
	// Every day averages exactly the balance temperature: HDD is zero, so
	// predicted usage is base load times the horizon.
	days := []models.WeatherDay{
		{HighF: 70, LowF: 60},
		{HighF: 70, LowF: 60},
		{HighF: 70, LowF: 60},
	}

	proj, err := Project(trainedModel(), days, Rates{UsageRate: 1}, false)

	require.NoError(t, err)
	assert.InDelta(t, 1.5*3, proj.TotalUsageCCF, 1e-9)
	for _, day := range proj.Days {
		assert.Equal(t, 0.0, day.HDD)
	}
}

func TestProjectColdDays(t *testing.T) {
	days := []models.WeatherDay{{HighF: 40, LowF: 30}} // avg 35, HDD 30

	proj, err := Project(trainedModel(), days, Rates{UsageRate: 2.4, TaxPercent: 8}, false)

	require.NoError(t, err)
	expectedUsage := 1.5 + 0.1*30
	assert.InDelta(t, expectedUsage, proj.TotalUsageCCF, 1e-9)
	assert.InDelta(t, expectedUsage*2.4*1.08, proj.PredictedCost, 1e-9)
}

func TestProjectCapsHorizonAtSevenDays(t *testing.T) {
	days := make([]models.WeatherDay, 10)
	for i := range days {
		days[i] = models.WeatherDay{HighF: 70, LowF: 60}
	}

	proj, err := Project(trainedModel(), days, Rates{}, false)

	require.NoError(t, err)
	assert.Len(t, proj.Days, MaxHorizonDays)
	assert.InDelta(t, 1.5*7, proj.TotalUsageCCF, 1e-9)
}

func TestProjectNoForecastData(t *testing.T) {
	_, err := Project(trainedModel(), nil, Rates{}, false)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestProjectDefaultModelRequiresTrained(t *testing.T) {
	model := trainedModel()
	model.IsDefault = true
	days := []models.WeatherDay{{HighF: 50, LowF: 40}}

	_, err := Project(model, days, Rates{}, true)
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)

	// Without the requirement the projection is returned, flagged.
	proj, err := Project(model, days, Rates{}, false)
	require.NoError(t, err)
	assert.True(t, proj.LowConfidence)
}

func TestProjectFloorsNegativeUsage(t *testing.T) {
	model := models.HeatingModel{BaseLoad: 0, HeatingCoeff: 0, BalanceTempF: 65}
	days := []models.WeatherDay{{HighF: 90, LowF: 80}}

	proj, err := Project(model, days, Rates{}, false)

	require.NoError(t, err)
	assert.Equal(t, 0.0, proj.TotalUsageCCF)
}

func TestCurrentPeriodCost(t *testing.T) {
	// (25.03 + 14 * 2.40) * 1.08
	cost := CurrentPeriodCost(14, Rates{UsageRate: 2.40, FixedCost: 25.03, TaxPercent: 8})
	assert.InDelta(t, (25.03+14*2.40)*1.08, cost, 1e-9)
}

func TestCostFormula(t *testing.T) {
	formula := CostFormula(Rates{UsageRate: 2.40, FixedCost: 25.03, TaxPercent: 8})
	assert.Equal(t, "(25.03 + (usage * 2.40)) * 1.0800", formula)
}
