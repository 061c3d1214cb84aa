package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"LodgingPulse/internal/model"
)

// ErrPartitionNotFound indicates no monthly source file matches the
// requested (month[, year]) constraint.
var ErrPartitionNotFound = errors.New("ingest: partition not found")

var fileRe = regexp.MustCompile(`KCTA_(\d{4})_(\d{2})_hotel_allocation\.csv$`)

var latAliases = []string{"latitude", "lat", "緯度"}
var lngAliases = []string{"longitude", "lon", "経度"}

// MarketColumns maps market identifiers to their source column headers.
var MarketColumns = map[string]string{
	model.MarketChina:         "中国",
	model.MarketKorea:         "韓国",
	model.MarketNorthAmerica:  "北米小計",
	model.MarketSoutheastAsia: "東南アジア小計",
	model.MarketEurope:        "ヨーロッパ小計",
	model.MarketJapan:         "国内合計",
}

const (
	overseasTotalColumn = "海外合計"
	domesticTotalColumn = "国内合計"
)

// Loader reads monthly partition files and memoizes parsed rows per
// (year, month) for the process lifetime.
type Loader struct {
	dir string
	log zerolog.Logger

	mu    sync.RWMutex
	cache map[model.MonthKey][]model.MonthlyRow
}

// NewLoader creates a Loader over a partition directory.
func NewLoader(dir string, log zerolog.Logger) *Loader {
	return &Loader{
		dir:   dir,
		log:   log.With().Str("component", "ingest").Logger(),
		cache: make(map[model.MonthKey][]model.MonthlyRow),
	}
}

// Keys lists all discoverable partitions ordered by (year, month) ascending.
func (l *Loader) Keys() ([]model.MonthKey, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("scan partition dir %s: %w", l.dir, err)
	}
	var keys []model.MonthKey
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		keys = append(keys, model.MonthKey{Year: year, Month: month})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys, nil
}

// ResolveYear selects the partition year for a month: the exact year when
// given, otherwise the most recent year holding that month.
func (l *Loader) ResolveYear(month int, year *int) (int, error) {
	keys, err := l.Keys()
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, k := range keys {
		if k.Month != month {
			continue
		}
		if year != nil && k.Year == *year {
			return k.Year, nil
		}
		if year == nil && k.Year > resolved {
			resolved = k.Year
		}
	}
	if year == nil && resolved > 0 {
		return resolved, nil
	}
	return 0, fmt.Errorf("%w: month=%d year=%v", ErrPartitionNotFound, month, year)
}

// LoadMonth loads rows for a month, resolving the year when omitted.
func (l *Loader) LoadMonth(month int, year *int) (int, []model.MonthlyRow, error) {
	resolved, err := l.ResolveYear(month, year)
	if err != nil {
		return 0, nil, err
	}
	rows, err := l.Load(model.MonthKey{Year: resolved, Month: month})
	if err != nil {
		return 0, nil, err
	}
	return resolved, rows, nil
}

// Load returns the parsed rows for one partition, reading the source file at
// most once per process. The memoized slice is shared; callers must not
// mutate it.
func (l *Loader) Load(key model.MonthKey) ([]model.MonthlyRow, error) {
	l.mu.RLock()
	rows, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return rows, nil
	}

	// Parse outside the lock; a rare race may parse the same file twice,
	// in which case the first cached result wins.
	rows, err := l.parsePartition(key)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if cached, ok := l.cache[key]; ok {
		rows = cached
	} else {
		l.cache[key] = rows
	}
	l.mu.Unlock()
	return rows, nil
}

func (l *Loader) parsePartition(key model.MonthKey) ([]model.MonthlyRow, error) {
	name := fmt.Sprintf("KCTA_%04d_%02d_hotel_allocation.csv", key.Year, key.Month)
	path := filepath.Join(l.dir, name)
	header, records, err := ReadTable(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
		}
		return nil, err
	}

	latCol := findColumn(header, latAliases)
	lngCol := findColumn(header, lngAliases)
	if latCol < 0 || lngCol < 0 {
		return nil, fmt.Errorf("ingest: coordinate columns missing in %s", name)
	}
	col := columnIndex(header)

	rows := make([]model.MonthlyRow, 0, len(records))
	dropped := 0
	for _, rec := range records {
		lat := ParseNumber(field(rec, latCol))
		lng := ParseNumber(field(rec, lngCol))
		if lat == 0 && lng == 0 {
			// placeholder coordinates mark an invalid facility row
			dropped++
			continue
		}
		markets := make(map[string]float64, len(MarketColumns))
		for market, column := range MarketColumns {
			markets[market] = ParseNumber(field(rec, col.at(column)))
		}
		rows = append(rows, model.MonthlyRow{
			Lat:           lat,
			Lng:           lng,
			Address:       strings.TrimSpace(field(rec, col.at("address"))),
			Ward:          strings.TrimSpace(field(rec, col.at("ward"))),
			OverseasTotal: ParseNumber(field(rec, col.at(overseasTotalColumn))),
			DomesticTotal: ParseNumber(field(rec, col.at(domesticTotalColumn))),
			Markets:       markets,
		})
	}

	l.log.Info().
		Int("year", key.Year).
		Int("month", key.Month).
		Int("rows", len(rows)).
		Int("dropped", dropped).
		Msg("partition loaded")
	return rows, nil
}

// ReadTable reads a delimited text file, attempting a fixed sequence of text
// encodings: UTF-8 (BOM tolerated), Shift_JIS/CP932, EUC-JP. The first
// successful decode wins; the last failure propagates if every attempt fails.
func ReadTable(path string) ([]string, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	decoders := []func([]byte) ([]byte, error){
		decodeUTF8,
		decodeWith(japanese.ShiftJIS.NewDecoder()),
		decodeWith(japanese.EUCJP.NewDecoder()),
	}

	var lastErr error
	for _, decode := range decoders {
		text, derr := decode(raw)
		if derr != nil {
			lastErr = derr
			continue
		}
		header, records, perr := parseCSV(text)
		if perr != nil {
			lastErr = perr
			continue
		}
		return header, records, nil
	}
	return nil, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), lastErr)
}

func decodeUTF8(raw []byte) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(raw) {
		return nil, errors.New("invalid UTF-8")
	}
	return raw, nil
}

func decodeWith(dec transform.Transformer) func([]byte) ([]byte, error) {
	return func(raw []byte) ([]byte, error) {
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func parseCSV(text []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, records, nil
}

// ParseNumber converts a source cell to a float: trims whitespace, strips
// thousands separators, and treats anything unparsable as 0.
func ParseNumber(raw string) float64 {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if text == "" {
		return 0
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return v
}

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range header {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

type columns map[string]int

func columnIndex(header []string) columns {
	idx := make(columns, len(header))
	for i, h := range header {
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	return idx
}

// at returns the position of a named column, -1 when absent.
func (c columns) at(name string) int {
	if i, ok := c[name]; ok {
		return i
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
