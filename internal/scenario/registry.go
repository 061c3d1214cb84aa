package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"LodgingPulse/internal/calculator"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
)

// ErrScenarioFileMissing indicates no scenario reference table exists at any
// configured or default location.
var ErrScenarioFileMissing = errors.New("scenario: reference table not found")

// shockColumns maps market identifiers to their shock-rate columns in the
// reference table.
var shockColumns = map[string]string{
	model.MarketChina:         "shock_china",
	model.MarketKorea:         "shock_korea",
	model.MarketNorthAmerica:  "shock_north_america",
	model.MarketSoutheastAsia: "shock_southeast_asia",
	model.MarketEurope:        "shock_europe",
	model.MarketJapan:         "shock_domestic_total",
}

// Shock is one named external shock: an active month range (wrap-around
// allowed) and a per-market shock rate. Immutable once loaded.
type Shock struct {
	EventID    string
	EventName  string
	StartMonth int
	EndMonth   int
	Values     map[string]float64
	Note       string
}

// For returns the shock rate applied to a market in a month: 0 outside the
// active range and for unknown markets.
func (s *Shock) For(market string, month int) float64 {
	if !calculator.MonthInRange(month, s.StartMonth, s.EndMonth) {
		return 0
	}
	return s.Values[market]
}

// Registry loads and memoizes the shock reference table for the process
// lifetime. Refresh replaces the whole map atomically.
type Registry struct {
	paths []string
	log   zerolog.Logger

	mu     sync.RWMutex
	shocks map[string]*Shock
}

// NewRegistry creates a Registry over candidate table locations, probed in
// order. Empty path entries are skipped.
func NewRegistry(paths []string, log zerolog.Logger) *Registry {
	return &Registry{
		paths: paths,
		log:   log.With().Str("component", "scenario").Logger(),
	}
}

// Load returns the memoized shock map, reading the reference table on first
// use. The returned map is shared; callers must not mutate it.
func (r *Registry) Load() (map[string]*Shock, error) {
	r.mu.RLock()
	shocks := r.shocks
	r.mu.RUnlock()
	if shocks != nil {
		return shocks, nil
	}
	return r.Refresh()
}

// Refresh re-reads the reference table and atomically replaces the memoized
// map. Concurrent readers keep the previous map until the swap.
func (r *Registry) Refresh() (map[string]*Shock, error) {
	shocks, err := r.read()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.shocks = shocks
	r.mu.Unlock()
	r.log.Info().Int("scenarios", len(shocks)).Msg("scenario table loaded")
	return shocks, nil
}

// ListAvailable summarizes the loaded scenarios, ordered by event id.
func (r *Registry) ListAvailable() ([]model.ScenarioSummary, error) {
	shocks, err := r.Load()
	if err != nil {
		return nil, err
	}
	out := make([]model.ScenarioSummary, 0, len(shocks))
	for _, s := range shocks {
		out = append(out, model.ScenarioSummary{
			EventID:   s.EventID,
			EventName: s.EventName,
			Note:      s.Note,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

func (r *Registry) read() (map[string]*Shock, error) {
	path := ""
	for _, candidate := range r.paths {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, fmt.Errorf("%w: tried %s", ErrScenarioFileMissing, strings.Join(r.paths, ", "))
	}

	header, records, err := ingest.ReadTable(path)
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	shocks := make(map[string]*Shock)
	for _, rec := range records {
		eventID := strings.TrimSpace(get(rec, "event_id"))
		if eventID == "" {
			continue
		}
		values := make(map[string]float64, len(shockColumns))
		for market, column := range shockColumns {
			values[market] = ingest.ParseNumber(get(rec, column))
		}
		name := strings.TrimSpace(get(rec, "event_name_ja"))
		if name == "" {
			name = eventID
		}
		shocks[eventID] = &Shock{
			EventID:    eventID,
			EventName:  name,
			StartMonth: clampMonth(int(ingest.ParseNumber(get(rec, "start_month"))), 1),
			EndMonth:   clampMonth(int(ingest.ParseNumber(get(rec, "end_month"))), 12),
			Values:     values,
			Note:       strings.TrimSpace(get(rec, "note")),
		}
	}
	return shocks, nil
}

func clampMonth(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < 1 {
		return 1
	}
	if v > 12 {
		return 12
	}
	return v
}
