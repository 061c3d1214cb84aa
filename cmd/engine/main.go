package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"LodgingPulse/internal/cache"
	"LodgingPulse/internal/config"
	"LodgingPulse/internal/engine"
	"LodgingPulse/internal/forecast"
	"LodgingPulse/internal/ingest"
	"LodgingPulse/internal/metrics"
	"LodgingPulse/internal/recorder"
	"LodgingPulse/internal/scenario"
	"LodgingPulse/internal/scheduler"
)

func main() {
	var (
		mode      = flag.String("mode", "", "one-shot mode: points | metrics | forecast")
		daemon    = flag.Bool("daemon", false, "run the maintenance scheduler until interrupted")
		region    = flag.String("region", "kyoto", "target region")
		market    = flag.String("market", "china", "target market")
		month     = flag.Int("month", int(time.Now().Month()), "base month (1-12)")
		yearRaw   = flag.String("year", "", "base year; latest available when empty")
		horizon   = flag.Int("horizon", 6, "forecast horizon in months")
		scenarios = flag.String("scenarios", "", "comma-separated scenario ids")
		shock     = flag.Float64("shock", 0, "custom shock rate added to every scenario month")
		maxPoints = flag.Int("max-points", 0, "dependency point cap (0 = default)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(lvl)
	}

	loader := ingest.NewLoader(cfg.Data.PartitionDir, log)
	builder := metrics.NewBuilder(loader, log)
	registry := scenario.NewRegistry([]string{cfg.Data.ScenarioFile}, log)

	heuristic := forecast.NewHeuristic(loader, registry, log)
	var strategy *forecast.ModelStrategy
	if cfg.Data.ModelDir != "" {
		strategy = forecast.NewModelStrategy(cfg.Data.ModelDir, map[string]string{
			"china":    cfg.Data.PanelFiles.China,
			"overseas": cfg.Data.PanelFiles.Overseas,
		}, cfg.Data.ExogFile, registry, log)
	}
	selector := forecast.NewSelector(heuristic, strategy, log)

	fc := cache.New(time.Duration(cfg.Forecast.CacheTTLSeconds)*time.Second, cfg.Forecast.CacheMaxEntries, nil)

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("sqlite recorder unavailable, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	eng := engine.New(loader, builder, registry, selector, fc, rec, log)

	var year *int
	if *yearRaw != "" {
		y, err := strconv.Atoi(*yearRaw)
		if err != nil {
			log.Fatal().Str("year", *yearRaw).Msg("year must be an integer")
		}
		year = &y
	}

	switch *mode {
	case "points":
		pointCap := *maxPoints
		if pointCap <= 0 {
			pointCap = cfg.Forecast.MaxPoints
		}
		resolved, points, err := eng.BuildDependencyPoints(*region, *month, year, pointCap)
		if err != nil {
			log.Fatal().Err(err).Msg("build dependency points")
		}
		emit(map[string]interface{}{"year": resolved, "month": *month, "points": points})
		return
	case "metrics":
		dm, err := eng.BuildDependencyMetrics(*region, *month, *market, year)
		if err != nil {
			log.Fatal().Err(err).Msg("build dependency metrics")
		}
		emit(dm)
		return
	case "forecast":
		if *horizon > cfg.Forecast.HorizonCap {
			log.Fatal().Int("horizon", *horizon).Int("cap", cfg.Forecast.HorizonCap).Msg("horizon exceeds configured cap")
		}
		var ids []string
		if *scenarios != "" {
			ids = strings.Split(*scenarios, ",")
		}
		payload, err := eng.BuildForecastPayload(engine.ForecastRequest{
			Region:      *region,
			Market:      *market,
			BaseYear:    year,
			BaseMonth:   *month,
			Horizon:     *horizon,
			ScenarioIDs: ids,
			CustomShock: *shock,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("build forecast")
		}
		emit(payload)
		return
	case "":
		if !*daemon {
			log.Fatal().Msg("pass -mode points|metrics|forecast or -daemon")
		}
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}

	sched := scheduler.NewScheduler(fc, registry, log)
	if err := sched.RegisterAll(cfg.Schedule.PurgeCron, cfg.Schedule.RefreshCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	log.Info().Msg("LodgingPulse running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received")
}

func emit(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
