package forecast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/model"
)

// exogColumns are the macro covariates consumed by the model strategy.
var exogColumns = []string{"chinese_total", "visitors_overseas_total", "usd_jpy", "cny_jpy"}

// PanelRow is one facility-month observation from the historical feature
// table. Target carries the trained regressor's target column for the
// market family the panel belongs to.
type PanelRow struct {
	FacilityID  string
	Year        int
	Month       int
	Address     string
	Ward        string
	LicenseType string
	RoomScale   string
	Lat         float64
	Lng         float64
	Target      float64
}

// Key returns the row's month key.
func (r *PanelRow) Key() model.MonthKey {
	return model.MonthKey{Year: r.Year, Month: r.Month}
}

// ExogRow is one month of exogenous macro covariates.
type ExogRow struct {
	Year   int
	Month  int
	Values map[string]float64
}

// LoadPanel reads a facility-level panel table, keeping rows that carry a
// facility id, a resolvable date, and a parseable target value.
func LoadPanel(path, targetColumn string) ([]PanelRow, error) {
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

	rows := make([]PanelRow, 0, len(records))
	for _, rec := range records {
		id := strings.TrimSpace(get(rec, "facility_id"))
		if id == "" {
			continue
		}
		year, month, ok := resolveDate(get(rec, "date"), get(rec, "year"), get(rec, "month"))
		if !ok {
			continue
		}
		targetRaw := strings.TrimSpace(get(rec, targetColumn))
		if targetRaw == "" {
			continue
		}
		target, err := strconv.ParseFloat(strings.ReplaceAll(targetRaw, ",", ""), 64)
		if err != nil {
			continue
		}
		rows = append(rows, PanelRow{
			FacilityID:  id,
			Year:        year,
			Month:       month,
			Address:     strings.TrimSpace(get(rec, "address")),
			Ward:        strings.TrimSpace(get(rec, "ward")),
			LicenseType: strings.TrimSpace(get(rec, "hotel_license_type")),
			RoomScale:   strings.TrimSpace(get(rec, "room_scale")),
			Lat:         ingest.ParseNumber(get(rec, "latitude")),
			Lng:         ingest.ParseNumber(get(rec, "longitude")),
			Target:      target,
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("forecast: no usable panel rows in %s", path)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FacilityID != rows[j].FacilityID {
			return rows[i].FacilityID < rows[j].FacilityID
		}
		return rows[i].Key().Before(rows[j].Key())
	})
	return rows, nil
}

// LoadExog reads the monthly macro covariate table, ordered by month.
func LoadExog(path string) ([]ExogRow, error) {
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
	if _, ok := col["date"]; !ok {
		return nil, fmt.Errorf("forecast: date column missing in %s", path)
	}

	rows := make([]ExogRow, 0, len(records))
	for _, rec := range records {
		year, month, ok := resolveDate(get(rec, "date"), "", "")
		if !ok {
			continue
		}
		values := make(map[string]float64, len(exogColumns))
		for _, name := range exogColumns {
			if _, present := col[name]; present {
				values[name] = ingest.ParseNumber(get(rec, name))
			}
		}
		rows = append(rows, ExogRow{Year: year, Month: month, Values: values})
	}
	sort.Slice(rows, func(i, j int) bool {
		a := model.MonthKey{Year: rows[i].Year, Month: rows[i].Month}
		b := model.MonthKey{Year: rows[j].Year, Month: rows[j].Month}
		return a.Before(b)
	})
	return rows, nil
}

// selectExog picks the covariates for a forecast month: exact match, else the
// latest earlier month, else the last known row. Returns a copy so per-step
// shock adjustments never leak into the shared table.
func selectExog(rows []ExogRow, year, month int) map[string]float64 {
	if len(rows) == 0 {
		return map[string]float64{}
	}
	target := model.MonthKey{Year: year, Month: month}
	picked := -1
	for i := range rows {
		key := model.MonthKey{Year: rows[i].Year, Month: rows[i].Month}
		if key == target {
			picked = i
			break
		}
		if key.Before(target) {
			picked = i
		}
	}
	if picked < 0 {
		picked = len(rows) - 1
	}
	out := make(map[string]float64, len(rows[picked].Values))
	for k, v := range rows[picked].Values {
		out[k] = v
	}
	return out
}

// resolveDate parses a date cell, falling back to separate year/month cells.
func resolveDate(date, yearRaw, monthRaw string) (int, int, bool) {
	date = strings.TrimSpace(date)
	if date != "" {
		for _, layout := range []string{"2006-01-02", "2006/01/02", "2006-01", "2006/01"} {
			if t, err := time.Parse(layout, date); err == nil {
				return t.Year(), int(t.Month()), true
			}
		}
	}
	year := int(ingest.ParseNumber(yearRaw))
	month := int(ingest.ParseNumber(monthRaw))
	if year > 0 && month >= 1 && month <= 12 {
		return year, month, true
	}
	return 0, 0, false
}
