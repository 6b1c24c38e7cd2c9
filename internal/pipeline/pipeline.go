package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jgoulah/gasforecast/internal/forecast"
	"github.com/jgoulah/gasforecast/internal/history"
	"github.com/jgoulah/gasforecast/internal/portal"
	"github.com/jgoulah/gasforecast/internal/thermal"
	"github.com/jgoulah/gasforecast/internal/usage"
	"github.com/jgoulah/gasforecast/pkg/models"
)

// Readings above this are logged as suspicious but never rejected; there is
// no validation ceiling on usage magnitude, only negative values are treated
// as anomalies.
const highUsageWarnCCF = 10000

// Fetcher is the slice of the portal client the pipeline needs.
type Fetcher interface {
	Fetch(ctx context.Context, resource portal.Resource) ([]byte, error)
}

// Options control a single update cycle.
type Options struct {
	DailyUsage          bool // fetch the daily file; otherwise the monthly file
	Rates               forecast.Rates
	BalanceTempOverride float64 // when > 0, pin the balance temperature and skip the grid search
}

// Result reports what an update cycle did.
type Result struct {
	SamplesParsed    int
	SamplesAdded     int
	WindowSize       int
	Anomalies        int
	HighUsageWarning bool

	PeriodUsageCCF float64 // usage to date in the current billing period
	PeriodCost     float64
	LatestSample   time.Time

	Model           models.HeatingModel
	Retrained       bool
	TrainSkipReason string // why the previous model was kept, empty when retrained
}

// Pipeline wires the portal client, parser, history store, and trainer into
// the fetch -> parse -> merge -> train cycle. Cycles are serialized; the
// model is replaced atomically so readers never observe a partial update.
type Pipeline struct {
	fetcher     Fetcher
	store       *history.Store
	historyDays int

	cycleMu sync.Mutex // serializes update cycles

	mu            sync.RWMutex // guards the fields below
	model         models.HeatingModel
	newSinceTrain int
	lastIngestion time.Time
}

// New creates a pipeline, resuming from the persisted model when one exists
// and from the regional-default model otherwise.
func New(fetcher Fetcher, store *history.Store, historyDays int) *Pipeline {
	if historyDays <= 0 {
		historyDays = 90
	}
	p := &Pipeline{
		fetcher:     fetcher,
		store:       store,
		historyDays: historyDays,
		model:       thermal.DefaultModel(),
	}

	if m, newSinceTrain, found, err := store.LoadModel(); err == nil && found {
		p.model = m
		p.newSinceTrain = newSinceTrain
	}
	return p
}

// Model returns the current heating model for diagnostics and forecasting.
func (p *Pipeline) Model() models.HeatingModel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// LastIngestion returns when samples were last successfully merged.
func (p *Pipeline) LastIngestion() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastIngestion
}

// RunUpdateCycle fetches the usage file, merges parsed samples into history,
// and retrains the model when enough data accumulated. A failure at any point
// leaves the previously known samples and model in place; the error reports
// the failure kind (portal.AuthError, portal.APIError, usage.ParseError).
func (p *Pipeline) RunUpdateCycle(ctx context.Context, opts Options) (*Result, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	resource := portal.ResourceDailyUsage
	if !opts.DailyUsage {
		resource = portal.ResourceMonthlyUsage
	}

	payload, err := p.fetcher.Fetch(ctx, resource)
	if err != nil {
		return nil, err
	}

	samples, err := usage.Parse(payload)
	if err != nil {
		return nil, err
	}

	result := &Result{SamplesParsed: len(samples)}
	for _, s := range samples {
		result.PeriodUsageCCF += s.UsageCCF
		if s.Anomaly {
			result.Anomalies++
		}
		if s.Date.After(result.LatestSample) {
			result.LatestSample = s.Date
		}
	}
	if result.PeriodUsageCCF > highUsageWarnCCF {
		fmt.Printf("Warning: unusually high gas usage in period: %.1f CCF\n", result.PeriodUsageCCF)
		result.HighUsageWarning = true
	}
	result.PeriodCost = forecast.CurrentPeriodCost(result.PeriodUsageCCF, opts.Rates)

	added, err := p.store.Merge(samples)
	if err != nil {
		return nil, fmt.Errorf("merging samples into history: %w", err)
	}
	result.SamplesAdded = added

	p.mu.Lock()
	p.newSinceTrain += added
	p.lastIngestion = time.Now()
	p.mu.Unlock()

	window, err := p.store.Window(p.historyDays)
	if err != nil {
		return nil, fmt.Errorf("loading history window: %w", err)
	}
	result.WindowSize = len(window)

	p.train(window, opts, result)

	p.mu.RLock()
	model, newSinceTrain := p.model, p.newSinceTrain
	p.mu.RUnlock()
	if err := p.store.SaveModel(model, newSinceTrain); err != nil {
		fmt.Printf("Warning: could not persist model state: %v\n", err)
	}

	result.Model = model
	return result, nil
}

// train refits the model from a point-in-time window snapshot. Training is
// best effort: any decline keeps the previous model and records the reason.
func (p *Pipeline) train(window []models.UsageSample, opts Options, result *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.model

	// A pinned balance temperature turns every refresh into a quick update
	// at that temperature.
	if opts.BalanceTempOverride > 0 {
		pinned := prev
		pinned.BalanceTempF = opts.BalanceTempOverride
		next, reason := thermal.QuickUpdate(pinned, window)
		if reason != "" {
			result.TrainSkipReason = reason
			return
		}
		p.model = next
		result.Retrained = true
		return
	}

	if p.newSinceTrain >= thermal.MinSamples {
		next, reason := thermal.Train(prev, window)
		if reason != "" {
			fmt.Printf("Training skipped: %s\n", reason)
			result.TrainSkipReason = reason
			return
		}
		p.model = next
		p.newSinceTrain = 0
		result.Retrained = true
		return
	}

	next, reason := thermal.QuickUpdate(prev, window)
	if reason != "" {
		result.TrainSkipReason = reason
		return
	}
	p.model = next
	result.Retrained = true
}

// Forecast projects usage and cost over the horizon using the current model.
func (p *Pipeline) Forecast(days []models.WeatherDay, rates forecast.Rates, requireTrained bool) (*forecast.Projection, error) {
	return forecast.Project(p.Model(), days, rates, requireTrained)
}
