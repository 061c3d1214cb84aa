package forecast

import (
	"errors"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
)

// Baseline summarizes the growth state of a (region, market) pair at a base
// month, used as the anchor for recursive projections.
type Baseline struct {
	CurrentTotal     float64
	PrevTotal        float64
	ActiveFacilities int
	BaselineGrowth   float64
	TrendGrowth      float64
}

// Snapshot renders the baseline as the payload feature snapshot.
func (b Baseline) Snapshot() map[string]float64 {
	return map[string]float64{
		"current_total":        b.CurrentTotal,
		"prev_total":           b.PrevTotal,
		"active_facilities":    float64(b.ActiveFacilities),
		"baseline_growth_rate": b.BaselineGrowth,
		"trend_growth_rate":    b.TrendGrowth,
	}
}

// EstimateBaseline computes month-over-month and 3-month trailing growth for
// a market/region pair. A missing prior partition is a valid state, not a
// failure: baseline growth defaults to 0 and the trailing walk stops quietly.
func EstimateBaseline(loader *ingest.Loader, region string, year, month int, market string) (Baseline, error) {
	currentTotal, activeCount, err := marketTotal(loader, region, year, month, market)
	if err != nil {
		return Baseline{}, err
	}

	py, pm := model.PrevMonth(year, month)
	prevTotal, prevKnown, err := optionalTotal(loader, region, py, pm, market)
	if err != nil {
		return Baseline{}, err
	}

	var recent []float64
	y, m := year, month
	current := currentTotal
	for i := 0; i < 3; i++ {
		py, pm := model.PrevMonth(y, m)
		prev, known, err := optionalTotal(loader, region, py, pm, market)
		if err != nil {
			return Baseline{}, err
		}
		if !known {
			break
		}
		recent = append(recent, calculator.SafeGrowth(current, prev))
		y, m = py, pm
		current = prev
	}

	baselineGrowth := 0.0
	if prevKnown {
		baselineGrowth = calculator.SafeGrowth(currentTotal, prevTotal)
	}
	trendGrowth := baselineGrowth
	if len(recent) > 0 {
		sum := 0.0
		for _, g := range recent {
			sum += g
		}
		trendGrowth = sum / float64(len(recent))
	}

	return Baseline{
		CurrentTotal:     currentTotal,
		PrevTotal:        prevTotal,
		ActiveFacilities: activeCount,
		BaselineGrowth:   baselineGrowth,
		TrendGrowth:      trendGrowth,
	}, nil
}

// marketTotal sums one market's values across a region's facilities for one
// exact (year, month) partition.
func marketTotal(loader *ingest.Loader, region string, year, month int, market string) (float64, int, error) {
	y := year
	_, rows, err := loader.LoadMonth(month, &y)
	if err != nil {
		return 0, 0, err
	}
	total := 0.0
	active := 0
	for i := range rows {
		row := &rows[i]
		keywords := ingest.PrefectureKeywords[region]
		if len(keywords) > 0 && !ingest.InRegion(row.Address, row.Ward, keywords) {
			continue
		}
		v := row.MarketValue(market)
		total += v
		if v > 0 {
			active++
		}
	}
	return total, active, nil
}

// optionalTotal is marketTotal with a missing partition reported as absent
// rather than as an error.
func optionalTotal(loader *ingest.Loader, region string, year, month int, market string) (float64, bool, error) {
	total, _, err := marketTotal(loader, region, year, month, market)
	if err != nil {
		if errors.Is(err, ingest.ErrPartitionNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return total, true, nil
}
