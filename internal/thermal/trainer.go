package thermal

import (
	"fmt"
	"time"

	"github.com/jgoulah/gasforecast/pkg/models"
)

// Train runs the full grid search: for every integer candidate balance
// temperature in [MinBalanceTempF, MaxBalanceTempF] it fits ordinary least
// squares of usage on heating degree days and keeps the candidate with the
// highest R², ties going to the lower temperature.
//
// Training never fails the caller. When the window is too small or every fit
// degenerates, the previous model is returned unchanged alongside a non-empty
// reason; a new model is returned with an empty reason.
func Train(prev models.HeatingModel, samples []models.UsageSample) (models.HeatingModel, string) {
	if len(samples) < MinSamples {
		return prev, fmt.Sprintf("insufficient history: %d samples, need %d", len(samples), MinSamples)
	}

	var best fit
	bestR2 := -1.0
	found := false
	for b := MinBalanceTempF; b <= MaxBalanceTempF; b++ {
		f, ok := fitOLS(samples, float64(b))
		if !ok {
			continue
		}
		// Strictly-better comparison with a small tolerance so rounding
		// noise cannot steal a tie from the lower candidate.
		if f.r2 > bestR2+1e-9 {
			best = f
			bestR2 = f.r2
			found = true
		}
	}
	if !found {
		return prev, "no candidate balance temperature produced a usable fit"
	}

	return acceptFit(prev, best, len(samples))
}

// QuickUpdate refreshes base load, heating coefficient, and R² against
// current history without re-searching the balance temperature. Bounded-cost
// refresh for cycles that accumulated only a few new samples.
func QuickUpdate(prev models.HeatingModel, samples []models.UsageSample) (models.HeatingModel, string) {
	if len(samples) < MinSamples {
		return prev, fmt.Sprintf("insufficient history: %d samples, need %d", len(samples), MinSamples)
	}

	f, ok := fitOLS(samples, prev.BalanceTempF)
	if !ok {
		return prev, "least-squares fit degenerated, keeping previous model"
	}

	return acceptFit(prev, f, len(samples))
}

// acceptFit validates a candidate fit and builds the replacement model.
// Replacement is wholesale: the previous model is never partially mutated.
func acceptFit(prev models.HeatingModel, f fit, sampleCount int) (models.HeatingModel, string) {
	if f.balanceTemp < MinBalanceTempF || f.balanceTemp > MaxBalanceTempF {
		return prev, fmt.Sprintf("fitted balance temperature %.1f outside [%d, %d], keeping previous model",
			f.balanceTemp, MinBalanceTempF, MaxBalanceTempF)
	}

	base := f.base
	if base < 0 {
		base = 0
	}

	return models.HeatingModel{
		BaseLoad:     base,
		HeatingCoeff: f.coeff,
		BalanceTempF: f.balanceTemp,
		RSquared:     f.r2,
		TrainedAt:    time.Now(),
		SampleCount:  sampleCount,
		IsDefault:    false,
	}, ""
}

type fit struct {
	balanceTemp float64
	base        float64
	coeff       float64
	r2          float64
}

// fitOLS fits usage = base + coeff * max(0, balanceTemp - avgTemp) by
// ordinary least squares. When the HDD column has no variance (it never gets
// cold enough to test heating) the regression degenerates to a flat average:
// coefficient forced to 0 and R² reported as 0 instead of dividing by zero
// variance. A negative slope is treated the same way, since gas usage rising
// with temperature is noise, not heating.
func fitOLS(samples []models.UsageSample, balanceTemp float64) (fit, bool) {
	n := float64(len(samples))
	if n == 0 {
		return fit{}, false
	}

	var sumX, sumY float64
	hdd := make([]float64, len(samples))
	for i, s := range samples {
		h := balanceTemp - s.AvgTempF
		if h < 0 {
			h = 0
		}
		hdd[i] = h
		sumX += h
		sumY += s.UsageCCF
	}
	meanX := sumX / n
	meanY := sumY / n

	var sxx, sxy float64
	for i, s := range samples {
		dx := hdd[i] - meanX
		sxx += dx * dx
		sxy += dx * (s.UsageCCF - meanY)
	}

	if sxx == 0 {
		return flatFit(balanceTemp, meanY), true
	}

	coeff := sxy / sxx
	if coeff < 0 {
		return flatFit(balanceTemp, meanY), true
	}
	base := meanY - coeff*meanX

	var ssRes, ssTot float64
	for i, s := range samples {
		pred := base + coeff*hdd[i]
		dy := s.UsageCCF - pred
		ssRes += dy * dy
		dt := s.UsageCCF - meanY
		ssTot += dt * dt
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		}
	}

	return fit{balanceTemp: balanceTemp, base: base, coeff: coeff, r2: r2}, true
}

// flatFit is the degenerate no-heating-signal fit: usage is its own mean.
func flatFit(balanceTemp, meanUsage float64) fit {
	if meanUsage < 0 {
		meanUsage = 0
	}
	return fit{balanceTemp: balanceTemp, base: meanUsage, coeff: 0, r2: 0}
}
