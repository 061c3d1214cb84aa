package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"LodgingPulse/internal/model"
)

const fixtureHeader = "latitude,longitude,address,ward,中国,韓国,北米小計,東南アジア小計,ヨーロッパ小計,海外合計,国内合計\n"

func writePartition(t *testing.T, dir string, year, month int, body string) string {
	t.Helper()
	name := filepath.Join(dir, partitionName(year, month))
	require.NoError(t, os.WriteFile(name, []byte(fixtureHeader+body), 0o644))
	return name
}

func partitionName(year, month int) string {
	return fmt.Sprintf("KCTA_%04d_%02d_hotel_allocation.csv", year, month)
}

func testLoader(t *testing.T, dir string) *Loader {
	t.Helper()
	return NewLoader(dir, zerolog.Nop())
}

func TestLoad_ParsesRowsAndDropsZeroCoordinates(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 2024, 6,
		"35.01,135.76,京都市中京区,中京区,\"1,200\",300,50,80,40,1670,900\n"+
			"0,0,京都市下京区,下京区,10,10,10,10,10,50,20\n"+
			"35.02,135.77,京都市東山区,東山区,500,,abc,120,60,680,400\n")

	loader := testLoader(t, dir)
	rows, err := loader.Load(model.MonthKey{Year: 2024, Month: 6})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.InDelta(t, 35.01, first.Lat, 1e-9)
	assert.Equal(t, "京都市中京区", first.Address)
	assert.Equal(t, "中京区", first.Ward)
	assert.InDelta(t, 1200, first.Markets[model.MarketChina], 1e-9)
	assert.InDelta(t, 1670, first.OverseasTotal, 1e-9)
	assert.InDelta(t, 900, first.DomesticTotal, 1e-9)
	assert.InDelta(t, 900, first.Markets[model.MarketJapan], 1e-9)

	// Empty and unparsable cells read as zero.
	second := rows[1]
	assert.Zero(t, second.Markets[model.MarketKorea])
	assert.Zero(t, second.Markets[model.MarketNorthAmerica])
	assert.InDelta(t, 500, second.Markets[model.MarketChina], 1e-9)
}

func TestLoad_MemoizesPartition(t *testing.T) {
	dir := t.TempDir()
	path := writePartition(t, dir, 2024, 6, "35.0,135.7,京都市,中京区,100,0,0,0,0,100,50\n")

	loader := testLoader(t, dir)
	key := model.MonthKey{Year: 2024, Month: 6}
	first, err := loader.Load(key)
	require.NoError(t, err)

	// Removing the file must not affect subsequent loads of the same month.
	require.NoError(t, os.Remove(path))
	second, err := loader.Load(key)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoad_MissingPartition(t *testing.T) {
	loader := testLoader(t, t.TempDir())
	_, err := loader.Load(model.MonthKey{Year: 2024, Month: 1})
	require.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestResolveYear(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 2023, 6, "35.0,135.7,京都市,中京区,1,0,0,0,0,1,1\n")
	writePartition(t, dir, 2024, 6, "35.0,135.7,京都市,中京区,2,0,0,0,0,2,2\n")
	writePartition(t, dir, 2024, 7, "35.0,135.7,京都市,中京区,3,0,0,0,0,3,3\n")

	loader := testLoader(t, dir)

	// Unspecified year resolves to the latest year holding the month.
	year, err := loader.ResolveYear(6, nil)
	require.NoError(t, err)
	assert.Equal(t, 2024, year)

	// Explicit year is honored when present.
	y := 2023
	year, err = loader.ResolveYear(6, &y)
	require.NoError(t, err)
	assert.Equal(t, 2023, year)

	// A month with no partition in any year is an error.
	_, err = loader.ResolveYear(12, nil)
	require.ErrorIs(t, err, ErrPartitionNotFound)

	// An explicit year with no matching partition is an error.
	missing := 2020
	_, err = loader.ResolveYear(6, &missing)
	require.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestKeys_SortedAscending(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, 2024, 2, "")
	writePartition(t, dir, 2023, 11, "")
	writePartition(t, dir, 2024, 1, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	loader := testLoader(t, dir)
	keys, err := loader.Keys()
	require.NoError(t, err)
	assert.Equal(t, []model.MonthKey{
		{Year: 2023, Month: 11},
		{Year: 2024, Month: 1},
		{Year: 2024, Month: 2},
	}, keys)
}

func TestReadTable_ShiftJIS(t *testing.T) {
	dir := t.TempDir()
	utf8Text := "address,中国\n京都市中京区,100\n"
	encoded, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(utf8Text))
	require.NoError(t, err)
	path := filepath.Join(dir, "sjis.csv")
	require.NoError(t, os.WriteFile(path, encoded, 0o644))

	header, records, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"address", "中国"}, header)
	require.Len(t, records, 1)
	assert.Equal(t, "京都市中京区", records[0][0])
}

func TestReadTable_UTF8BOM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bom.csv")
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	header, records, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)
	require.Len(t, records, 1)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1,234.5", 1234.5},
		{"  42 ", 42},
		{"", 0},
		{"n/a", 0},
		{"-3.5", -3.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParseNumber(tt.in), 1e-9, "input %q", tt.in)
	}
}
