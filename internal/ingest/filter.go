package ingest

import (
	"strings"

	"LodgingPulse/internal/model"
)

// PrefectureKeywords maps region identifiers to address keywords. A region
// matches a row when any keyword is contained in the row's address+ward text.
var PrefectureKeywords = map[string][]string{
	"kyoto":    {"京都"},
	"tokyo":    {"東京"},
	"hokkaido": {"北海道"},
	"fukuoka":  {"福岡"},
	"okinawa":  {"沖縄"},
	"osaka":    {"大阪"},
}

// FilterRegion selects the rows located in a region. Unknown regions pass
// all rows through unfiltered.
func FilterRegion(rows []model.MonthlyRow, region string) []model.MonthlyRow {
	keywords, ok := PrefectureKeywords[region]
	if !ok || len(keywords) == 0 {
		return rows
	}
	out := make([]model.MonthlyRow, 0, len(rows))
	for _, row := range rows {
		if InRegion(row.Address, row.Ward, keywords) {
			out = append(out, row)
		}
	}
	return out
}

// InRegion reports whether any keyword occurs in the address+ward text.
func InRegion(address, ward string, keywords []string) bool {
	text := address + ward
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
