// Package main replays the volatility fixtures and fails on any mismatch.
package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/anchors"
	"github.com/leeaandrob/volwatch/internal/volatility"
)

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	_ = godotenv.Load()

	dir := os.Getenv("FIXTURES_DIR")
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if dir == "" {
		dir = "internal/volatility/testdata/scenarios"
	}

	anchorPath := os.Getenv("ANCHOR_EVENTS_PATH")
	if anchorPath == "" {
		anchorPath = "data/anchor_events.json"
	}

	cfg := volatility.DefaultConfig()
	if strings.EqualFold(os.Getenv("STRICT_IMPACT_MATCH"), "false") {
		cfg.StrictImpact = false
	}
	engine := volatility.NewEngine(anchors.Load(anchorPath), cfg)

	scenarios, files, err := volatility.LoadScenarios(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("Failed to load fixtures")
	}

	log.Info().Str("dir", dir).Int("fixtures", len(files)).Msg("Starting regression run")

	var results []volatility.ScenarioResult
	failedScenarios := 0
	for _, name := range files {
		res, err := engine.RunScenario(scenarios[name])
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Scenario could not run")
		}
		res.File = name
		results = append(results, res)

		if res.Failed == 0 {
			log.Info().Str("scenario", res.ID).Int("steps", len(res.Steps)).Msg("PASS")
			continue
		}

		failedScenarios++
		for _, step := range res.Steps {
			if step.Passed() {
				continue
			}
			log.Error().
				Str("scenario", res.ID).
				Int("step", step.Index).
				Str("now", step.Now).
				Strs("diffs", step.Diffs).
				Msg("FAIL")
		}
	}

	if out := os.Getenv("REGRESSION_REPORT"); out != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode report")
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", out).Msg("Failed to write report")
		}
	}

	log.Info().
		Int("scenarios", len(files)).
		Int("failed", failedScenarios).
		Msg("Regression run finished")

	if failedScenarios > 0 {
		os.Exit(1)
	}
}
