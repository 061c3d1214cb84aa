package model

// ConcentrationSnapshot holds normalized concentration statistics for one
// (region, market basket, month). Derived fields are nil pointers when the
// vector total is zero or negative: "no data" is distinct from "zero
// dependency" and must never collapse into 0.
type ConcentrationSnapshot struct {
	Total       float64  `json:"market_total"`
	TotalCount  int      `json:"facility_count_total"`
	ActiveCount int      `json:"facility_count_active"`
	HHI         *float64 `json:"facility_hhi"`
	Entropy     *float64 `json:"facility_entropy"`
	EntropyNorm *float64 `json:"facility_entropy_norm_active"`
	Top1Share   *float64 `json:"facility_top1_share"`
	Top10Share  *float64 `json:"facility_top10_share"`
}

// Degenerate reports whether the snapshot carries no derived statistics.
func (s *ConcentrationSnapshot) Degenerate() bool {
	return s.HHI == nil
}

// CompositionSnapshot holds the cross-market concentration of one region and
// month, for the foreign basket and the foreign+domestic basket.
type CompositionSnapshot struct {
	ForeignHHI         *float64 `json:"foreign_hhi"`
	ForeignEntropy     *float64 `json:"foreign_entropy"`
	ForeignEntropyNorm *float64 `json:"foreign_entropy_norm"`
	ForeignTop1Market  string   `json:"foreign_top1_market"`
	ForeignTop1Share   *float64 `json:"foreign_top1_share"`
	AllHHI             *float64 `json:"all_hhi"`
	AllEntropy         *float64 `json:"all_entropy"`
	AllEntropyNorm     *float64 `json:"all_entropy_norm"`
	AllTop1Market      string   `json:"all_top1_market"`
	AllTop1Share       *float64 `json:"all_top1_share"`
}

// DependencyPoint is one facility's normalized dependency score for mapping.
type DependencyPoint struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	DependencyScore float64 `json:"dependency_score"`
	Market          string  `json:"market"`
}
