package model

import "fmt"

// Market identifiers for the fixed visitor-origin market set.
const (
	MarketChina         = "china"
	MarketKorea         = "korea"
	MarketNorthAmerica  = "north_america"
	MarketSoutheastAsia = "southeast_asia"
	MarketEurope        = "europe"
	MarketJapan         = "japan"
)

// ForeignMarkets lists the overseas markets in canonical order.
// MarketJapan (domestic) is excluded from the foreign basket.
var ForeignMarkets = []string{
	MarketChina,
	MarketKorea,
	MarketNorthAmerica,
	MarketSoutheastAsia,
	MarketEurope,
}

// AllMarkets is the foreign basket plus the domestic total.
var AllMarkets = append(append([]string{}, ForeignMarkets...), MarketJapan)

// MonthlyRow is one facility observation for one calendar month.
// Rows are immutable once parsed; consumers hold read-only references.
type MonthlyRow struct {
	Lat           float64
	Lng           float64
	Address       string
	Ward          string
	OverseasTotal float64
	DomesticTotal float64
	Markets       map[string]float64
}

// MarketValue returns the visitor count for one market, 0 for unknown markets.
func (r *MonthlyRow) MarketValue(market string) float64 {
	v := r.Markets[market]
	if v < 0 {
		return 0
	}
	return v
}

// MonthKey identifies exactly one ingestible monthly partition.
type MonthKey struct {
	Year  int
	Month int
}

// Before reports whether k orders strictly before other by (year, month).
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// MonthDate renders the key as a first-of-month date string.
func (k MonthKey) MonthDate() string {
	return fmt.Sprintf("%04d-%02d-01", k.Year, k.Month)
}

// PrevMonth returns the calendar month preceding (year, month).
func PrevMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// NextMonth returns the calendar month following (year, month).
func NextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// AddMonths advances (year, month) by step calendar months.
func AddMonths(year, month, step int) (int, int) {
	y, m := year, month
	for i := 0; i < step; i++ {
		y, m = NextMonth(y, m)
	}
	return y, m
}
