package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
)

// ErrRegionNoData indicates a region matched zero rows across all known
// partitions. Distinct from a valid month whose totals happen to be zero.
var ErrRegionNoData = errors.New("metrics: region has no data")

// SeriesPoint is one month of concentration statistics for a chosen market
// within a region, alongside the cross-market composition of that month.
type SeriesPoint struct {
	Year                      int      `json:"year"`
	Month                     int      `json:"month"`
	MonthDate                 string   `json:"month_date"`
	MarketTotal               float64  `json:"market_total"`
	FacilityCountTotal        int      `json:"facility_count_total"`
	FacilityCountActive       int      `json:"facility_count_active"`
	FacilityHHI               *float64 `json:"facility_hhi"`
	FacilityEntropy           *float64 `json:"facility_entropy"`
	FacilityEntropyNormActive *float64 `json:"facility_entropy_norm_active"`
	FacilityTop1Share         *float64 `json:"facility_top1_share"`
	FacilityTop10Share        *float64 `json:"facility_top10_share"`
	ForeignHHI                *float64 `json:"foreign_hhi"`
	ForeignEntropy            *float64 `json:"foreign_entropy"`
	ForeignEntropyNorm        *float64 `json:"foreign_entropy_norm"`
	AllHHI                    *float64 `json:"all_hhi"`
	AllEntropy                *float64 `json:"all_entropy"`
	AllEntropyNorm            *float64 `json:"all_entropy_norm"`
}

// CurrentSnapshot extends a series point with the identity of the dominant
// markets for the selected month.
type CurrentSnapshot struct {
	SeriesPoint
	SelectedMarket    string   `json:"selected_market"`
	ForeignTop1Market string   `json:"foreign_top1_market"`
	ForeignTop1Share  *float64 `json:"foreign_top1_share"`
	AllTop1Market     string   `json:"all_top1_market"`
	AllTop1Share      *float64 `json:"all_top1_share"`
}

// DependencyMetrics is the full time series plus the current snapshot.
type DependencyMetrics struct {
	CurrentYear int             `json:"current_year"`
	Current     CurrentSnapshot `json:"current"`
	Series      []SeriesPoint   `json:"series"`
}

// monthly is the per-(region, month) computation unit, built once per region
// and reused for every market the caller asks about.
type monthly struct {
	key         model.MonthKey
	composition model.CompositionSnapshot
	markets     map[string]model.ConcentrationSnapshot
}

// Builder derives concentration metrics from ingested rows. The per-region
// monthly series is memoized; snapshots are recomputed per request from it.
type Builder struct {
	loader *ingest.Loader
	log    zerolog.Logger

	mu     sync.RWMutex
	series map[string][]monthly
}

// NewBuilder creates a metrics Builder over a partition loader.
func NewBuilder(loader *ingest.Loader, log zerolog.Logger) *Builder {
	return &Builder{
		loader: loader,
		log:    log.With().Str("component", "metrics").Logger(),
		series: make(map[string][]monthly),
	}
}

// BuildDependencyMetrics returns the ordered monthly series for (region,
// market) and the current snapshot: exact year+month match when year is
// given, else the latest year holding the month, else the last known month.
func (b *Builder) BuildDependencyMetrics(region string, month int, market string, year *int) (*DependencyMetrics, error) {
	months, err := b.regionMonthly(region)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("%w: region=%s", ErrRegionNoData, region)
	}

	selected := pickCurrent(months, month, year)

	series := make([]SeriesPoint, 0, len(months))
	for i := range months {
		series = append(series, seriesPoint(&months[i], market))
	}

	current := CurrentSnapshot{
		SeriesPoint:       seriesPoint(selected, market),
		SelectedMarket:    market,
		ForeignTop1Market: selected.composition.ForeignTop1Market,
		ForeignTop1Share:  selected.composition.ForeignTop1Share,
		AllTop1Market:     selected.composition.AllTop1Market,
		AllTop1Share:      selected.composition.AllTop1Share,
	}

	return &DependencyMetrics{
		CurrentYear: selected.key.Year,
		Current:     current,
		Series:      series,
	}, nil
}

// BuildDependencyPoints computes per-facility normalized dependency scores
// for one (region, month): market value over the relevant denominator basket,
// clipped to [0,1]. Capped to the maxPoints highest scores.
func (b *Builder) BuildDependencyPoints(region string, month int, year *int, maxPoints int) (int, []model.DependencyPoint, error) {
	resolvedYear, rows, err := b.loader.LoadMonth(month, year)
	if err != nil {
		return 0, nil, err
	}
	target := ingest.FilterRegion(rows, region)

	var points []model.DependencyPoint
	for i := range target {
		row := &target[i]
		denomForeign := row.OverseasTotal
		denomAll := row.OverseasTotal + row.DomesticTotal

		for _, market := range model.AllMarkets {
			value := row.MarketValue(market)
			if value <= 0 {
				continue
			}
			denom := denomForeign
			if market == model.MarketJapan {
				denom = denomAll
			}
			if denom <= 0 {
				continue
			}
			score := math.Min(1, math.Max(0, value/denom))
			if score <= 0 {
				continue
			}
			points = append(points, model.DependencyPoint{
				Lat:             row.Lat,
				Lng:             row.Lng,
				DependencyScore: score,
				Market:          market,
			})
		}
	}

	if maxPoints > 0 && len(points) > maxPoints {
		sort.Slice(points, func(i, j int) bool {
			return points[i].DependencyScore > points[j].DependencyScore
		})
		points = points[:maxPoints]
	}
	return resolvedYear, points, nil
}

// regionMonthly builds (or returns the memoized) per-month computation units
// for a region across every known partition.
func (b *Builder) regionMonthly(region string) ([]monthly, error) {
	b.mu.RLock()
	months, ok := b.series[region]
	b.mu.RUnlock()
	if ok {
		return months, nil
	}

	keys, err := b.loader.Keys()
	if err != nil {
		return nil, err
	}

	months = make([]monthly, 0, len(keys))
	for _, key := range keys {
		rows, err := b.loader.Load(key)
		if err != nil {
			// one broken partition must not abort the remaining months
			b.log.Warn().Err(err).Int("year", key.Year).Int("month", key.Month).Msg("skipping partition")
			continue
		}
		filtered := ingest.FilterRegion(rows, region)
		if len(filtered) == 0 {
			continue
		}
		months = append(months, buildMonthly(key, filtered))
	}

	b.mu.Lock()
	if cached, ok := b.series[region]; ok {
		months = cached
	} else {
		b.series[region] = months
	}
	b.mu.Unlock()
	return months, nil
}

func buildMonthly(key model.MonthKey, rows []model.MonthlyRow) monthly {
	totals := make(map[string]float64, len(model.AllMarkets))
	markets := make(map[string]model.ConcentrationSnapshot, len(model.AllMarkets))
	for _, market := range model.AllMarkets {
		values := make([]float64, len(rows))
		sum := 0.0
		for i := range rows {
			values[i] = rows[i].MarketValue(market)
			sum += values[i]
		}
		totals[market] = sum
		markets[market] = facilitySnapshot(values, len(rows))
	}

	foreignValues := make([]float64, len(model.ForeignMarkets))
	for i, market := range model.ForeignMarkets {
		foreignValues[i] = totals[market]
	}
	allValues := append(append([]float64{}, foreignValues...), totals[model.MarketJapan])

	return monthly{
		key:         key,
		composition: composition(foreignValues, allValues),
		markets:     markets,
	}
}

// facilitySnapshot applies the concentration primitives to one market's
// values across all facilities in the region for one month.
func facilitySnapshot(values []float64, totalCount int) model.ConcentrationSnapshot {
	stats := calculator.Concentration(values)
	snap := model.ConcentrationSnapshot{
		Total:       stats.Total,
		TotalCount:  totalCount,
		ActiveCount: stats.ActiveCount,
	}
	if !stats.Valid {
		return snap
	}
	snap.HHI = ptr(stats.HHI)
	snap.Entropy = ptr(stats.Entropy)
	snap.EntropyNorm = ptr(stats.EntropyNorm)
	snap.Top1Share = ptr(stats.Top1Share)
	snap.Top10Share = ptr(stats.Top10Share)
	return snap
}

// composition applies the same primitives across the fixed market baskets.
// Basket entropy is normalized by the basket size, not the active count,
// so a missing market reads as concentration rather than shrinking the scale.
func composition(foreignValues, allValues []float64) model.CompositionSnapshot {
	var comp model.CompositionSnapshot

	if foreign := calculator.Concentration(foreignValues); foreign.Valid {
		comp.ForeignHHI = ptr(foreign.HHI)
		comp.ForeignEntropy = ptr(foreign.Entropy)
		if norm, ok := calculator.NormalizedEntropy(foreign.Entropy, len(foreignValues)); ok {
			comp.ForeignEntropyNorm = ptr(norm)
		}
		comp.ForeignTop1Market = model.ForeignMarkets[foreign.Top1Index]
		comp.ForeignTop1Share = ptr(foreign.Top1Share)
	}

	if all := calculator.Concentration(allValues); all.Valid {
		comp.AllHHI = ptr(all.HHI)
		comp.AllEntropy = ptr(all.Entropy)
		if norm, ok := calculator.NormalizedEntropy(all.Entropy, len(allValues)); ok {
			comp.AllEntropyNorm = ptr(norm)
		}
		comp.AllTop1Market = model.AllMarkets[all.Top1Index]
		comp.AllTop1Share = ptr(all.Top1Share)
	}
	return comp
}

func pickCurrent(months []monthly, month int, year *int) *monthly {
	if year != nil {
		for i := range months {
			if months[i].key.Year == *year && months[i].key.Month == month {
				return &months[i]
			}
		}
	} else {
		for i := len(months) - 1; i >= 0; i-- {
			if months[i].key.Month == month {
				return &months[i]
			}
		}
	}
	return &months[len(months)-1]
}

func seriesPoint(m *monthly, market string) SeriesPoint {
	snap := m.markets[market]
	return SeriesPoint{
		Year:                      m.key.Year,
		Month:                     m.key.Month,
		MonthDate:                 m.key.MonthDate(),
		MarketTotal:               snap.Total,
		FacilityCountTotal:        snap.TotalCount,
		FacilityCountActive:       snap.ActiveCount,
		FacilityHHI:               snap.HHI,
		FacilityEntropy:           snap.Entropy,
		FacilityEntropyNormActive: snap.EntropyNorm,
		FacilityTop1Share:         snap.Top1Share,
		FacilityTop10Share:        snap.Top10Share,
		ForeignHHI:                m.composition.ForeignHHI,
		ForeignEntropy:            m.composition.ForeignEntropy,
		ForeignEntropyNorm:        m.composition.ForeignEntropyNorm,
		AllHHI:                    m.composition.AllHHI,
		AllEntropy:                m.composition.AllEntropy,
		AllEntropyNorm:            m.composition.AllEntropyNorm,
	}
}

func ptr(v float64) *float64 { return &v }
