package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists request summaries to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecast_requests (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			region          TEXT,
			market          TEXT,
			base_year       INTEGER,
			base_month      INTEGER,
			horizon_months  INTEGER,
			model_version   TEXT,
			baseline_growth REAL,
			scenario_count  INTEGER,
			cache_hit       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_ts ON forecast_requests(timestamp)`,

		`CREATE TABLE IF NOT EXISTS metrics_snapshots (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp            INTEGER NOT NULL,
			region               TEXT,
			market               TEXT,
			year                 INTEGER,
			month                INTEGER,
			market_total         REAL,
			facility_count_total INTEGER,
			active_count         INTEGER,
			hhi                  REAL,
			entropy_norm         REAL,
			top1_share           REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordForecast(rec *ForecastRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cacheHit := 0
	if rec.CacheHit {
		cacheHit = 1
	}
	_, err := r.db.Exec(`INSERT INTO forecast_requests
		(timestamp, region, market, base_year, base_month, horizon_months,
		 model_version, baseline_growth, scenario_count, cache_hit)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), rec.Region, rec.Market, rec.BaseYear, rec.BaseMonth,
		rec.HorizonMonths, rec.ModelVersion, rec.BaselineGrowth, rec.ScenarioCount,
		cacheHit,
	)
	return err
}

func (r *SQLiteRecorder) RecordMetrics(rec *MetricsRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO metrics_snapshots
		(timestamp, region, market, year, month, market_total,
		 facility_count_total, active_count, hhi, entropy_norm, top1_share)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), rec.Region, rec.Market, rec.Year, rec.Month,
		rec.MarketTotal, rec.FacilityCountTotal, rec.ActiveCount,
		nullable(rec.HHI), nullable(rec.EntropyNorm), nullable(rec.Top1Share),
	)
	return err
}

// nullable maps a degenerate (nil) statistic to SQL NULL, never to 0.
func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
