package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/gasforecast/internal/forecast"
	"github.com/jgoulah/gasforecast/internal/history"
	"github.com/jgoulah/gasforecast/internal/portal"
	"github.com/jgoulah/gasforecast/internal/thermal"
	"github.com/jgoulah/gasforecast/internal/usage"
	"github.com/jgoulah/gasforecast/pkg/models"
)

// fakeFetcher stands in for the portal client.
type fakeFetcher struct {
	payload  []byte
	err      error
	calls    int
	resource portal.Resource
}

func (f *fakeFetcher) Fetch(ctx context.Context, resource portal.Resource) ([]byte, error) {
	f.calls++
	f.resource = resource
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type payloadRow struct {
	date time.Time
	ccf  float64
	temp float64
}

// htmlPayload renders rows the way the portal serves usage data when it wraps
// the download in markup.
func htmlPayload(rows []payloadRow) []byte {
	var sb strings.Builder
	sb.WriteString("<html><body><table><tr><th>Date</th><th>Consumption</th><th>Avg Temp</th></tr>")
	for _, r := range rows {
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%.6f</td><td>%.1f</td></tr>",
			r.date.Format("01/02/2006"), r.ccf, r.temp)
	}
	sb.WriteString("</table></body></html>")
	return []byte(sb.String())
}

// seasonRows generates recent daily samples from a known heating response:
// base 1.2 CCF/day, 0.1 CCF per heating degree day below 65F.
func seasonRows(n int) []payloadRow {
	rows := make([]payloadRow, 0, n)
	for i := 0; i < n; i++ {
		temp := 25.0 + float64(i)*1.5
		ccf := 1.2
		if temp < 65 {
			ccf += 0.1 * (65 - temp)
		}
		rows = append(rows, payloadRow{date: time.Now().AddDate(0, 0, i-n), ccf: ccf, temp: temp})
	}
	return rows
}

func newTestPipeline(t *testing.T, fetcher Fetcher) (*Pipeline, *history.Store) {
	t.Helper()
	store, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(fetcher, store, 90), store
}

func TestUpdateCycleMergesAndTrains(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(40))}
	p, _ := newTestPipeline(t, fetcher)

	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	require.NoError(t, err)
	assert.Equal(t, portal.ResourceDailyUsage, fetcher.resource)
	assert.Equal(t, 40, result.SamplesParsed)
	assert.Equal(t, 40, result.SamplesAdded)
	assert.Equal(t, 40, result.WindowSize)
	assert.True(t, result.Retrained)
	assert.Empty(t, result.TrainSkipReason)

	model := p.Model()
	assert.False(t, model.IsDefault)
	assert.InDelta(t, 65.0, model.BalanceTempF, 1.0)
	assert.InDelta(t, 1.2, model.BaseLoad, 0.1)
	assert.InDelta(t, 0.1, model.HeatingCoeff, 0.02)
	assert.False(t, p.LastIngestion().IsZero())
}

func TestUpdateCycleQuickUpdateKeepsBalanceTemp(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(40))}
	p, _ := newTestPipeline(t, fetcher)

	_, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})
	require.NoError(t, err)
	trained := p.Model()

	// Same file again: zero new dates, so the counter stays below the full
	// training threshold and only the regression coefficients refresh.
	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	require.NoError(t, err)
	assert.Equal(t, 0, result.SamplesAdded)
	assert.True(t, result.Retrained)
	assert.Equal(t, trained.BalanceTempF, p.Model().BalanceTempF)
}

func TestUpdateCycleBelowThresholdDoesNotFullTrain(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(thermal.MinSamples - 1))}
	p, _ := newTestPipeline(t, fetcher)

	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	require.NoError(t, err)
	assert.Equal(t, thermal.MinSamples-1, result.SamplesAdded)
	// Quick update also needs the minimum sample count, so the default
	// model survives and the reason says why.
	assert.False(t, result.Retrained)
	assert.NotEmpty(t, result.TrainSkipReason)
	assert.True(t, p.Model().IsDefault)
}

func TestUpdateCycleFetchFailureLeavesStateIntact(t *testing.T) {
	fetcher := &fakeFetcher{err: &portal.AuthError{StatusCode: 401, Message: "credentials rejected"}}
	p, store := newTestPipeline(t, fetcher)
	before := p.Model()

	_, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	var authErr *portal.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, before, p.Model())

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateCycleParseFailureSurfaces(t *testing.T) {
	fetcher := &fakeFetcher{payload: []byte(`<html><body><h1>Usage History</h1></body></html>`)}
	p, _ := newTestPipeline(t, fetcher)

	_, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	var parseErr *usage.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestUpdateCycleNegativeReadingClampedAndPersisted(t *testing.T) {
	rows := seasonRows(12)
	rows[0].ccf = -5.0
	fetcher := &fakeFetcher{payload: htmlPayload(rows)}
	p, store := newTestPipeline(t, fetcher)

	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Anomalies)

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, 0.0, all[0].UsageCCF)
	assert.True(t, all[0].Anomaly)
}

func TestUpdateCycleBalanceTempOverride(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(40))}
	p, _ := newTestPipeline(t, fetcher)

	result, err := p.RunUpdateCycle(context.Background(), Options{
		DailyUsage:          true,
		BalanceTempOverride: 60,
	})

	require.NoError(t, err)
	assert.True(t, result.Retrained)
	assert.Equal(t, 60.0, p.Model().BalanceTempF)
}

func TestUpdateCyclePeriodTotals(t *testing.T) {
	rows := []payloadRow{
		{date: time.Now().AddDate(0, 0, -2), ccf: 3.0, temp: 40},
		{date: time.Now().AddDate(0, 0, -1), ccf: 2.0, temp: 45},
	}
	fetcher := &fakeFetcher{payload: htmlPayload(rows)}
	p, _ := newTestPipeline(t, fetcher)

	rates := forecast.Rates{UsageRate: 2.0, FixedCost: 10.0, TaxPercent: 10.0}
	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true, Rates: rates})

	require.NoError(t, err)
	assert.InDelta(t, 5.0, result.PeriodUsageCCF, 1e-9)
	// (10 + 5*2) * 1.10
	assert.InDelta(t, 22.0, result.PeriodCost, 1e-9)
	assert.False(t, result.HighUsageWarning)
	assert.Equal(t, time.Now().AddDate(0, 0, -1).Format("2006-01-02"), result.LatestSample.Format("2006-01-02"))
}

func TestUpdateCycleHighUsageWarning(t *testing.T) {
	rows := []payloadRow{{date: time.Now().AddDate(0, 0, -1), ccf: 10050, temp: 40}}
	fetcher := &fakeFetcher{payload: htmlPayload(rows)}
	p, _ := newTestPipeline(t, fetcher)

	result, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})

	require.NoError(t, err)
	assert.True(t, result.HighUsageWarning)
}

func TestUpdateCycleMonthlyResource(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(12))}
	p, _ := newTestPipeline(t, fetcher)

	_, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: false})

	require.NoError(t, err)
	assert.Equal(t, portal.ResourceMonthlyUsage, fetcher.resource)
}

func TestPipelineResumesPersistedModel(t *testing.T) {
	store, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	saved := models.HeatingModel{
		BaseLoad:     1.05,
		HeatingCoeff: 0.088,
		BalanceTempF: 63,
		RSquared:     0.9,
		TrainedAt:    time.Now().Add(-24 * time.Hour),
		SampleCount:  60,
	}
	require.NoError(t, store.SaveModel(saved, 4))

	p := New(&fakeFetcher{}, store, 90)

	model := p.Model()
	assert.Equal(t, saved.BaseLoad, model.BaseLoad)
	assert.Equal(t, saved.BalanceTempF, model.BalanceTempF)
	assert.False(t, model.IsDefault)
}

func TestForecastUsesCurrentModel(t *testing.T) {
	fetcher := &fakeFetcher{payload: htmlPayload(seasonRows(40))}
	p, _ := newTestPipeline(t, fetcher)

	_, err := p.RunUpdateCycle(context.Background(), Options{DailyUsage: true})
	require.NoError(t, err)

	days := []models.WeatherDay{{HighF: 50, LowF: 30}, {HighF: 60, LowF: 40}}
	proj, err := p.Forecast(days, forecast.Rates{UsageRate: 1.0}, true)

	require.NoError(t, err)
	require.Len(t, proj.Days, 2)
	assert.Greater(t, proj.TotalUsageCCF, 0.0)
	assert.False(t, proj.LowConfidence)
}
