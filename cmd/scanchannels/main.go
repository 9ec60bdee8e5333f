package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"scanchannels/internal/logger"
	"scanchannels/pkg/config"
	"scanchannels/pkg/decode"
	"scanchannels/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "scanchannels.yaml", "Path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	mode := flag.String("mode", "all", "Which datasets to process: flat, detailed or all")
	workers := flag.Int("workers", 0, "Number of datasets processed in parallel (default: from config)")
	flatIn := flag.String("flat-input", "", "Directory of single-plane scans (default: from config)")
	flatOut := flag.String("flat-output", "", "Output directory for flat channel images (default: from config)")
	detailedIn := flag.String("detailed-input", "", "Directory tree of Z-stack scans (default: from config)")
	detailedOut := flag.String("detailed-output", "", "Output root for Z-stack slices (default: from config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (default: from config)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Paths.FlatInput, *flatIn)
	override(&cfg.Paths.FlatOutput, *flatOut)
	override(&cfg.Paths.DetailedInput, *detailedIn)
	override(&cfg.Paths.DetailedOutput, *detailedOut)
	override(&cfg.Log.Level, *logLevel)
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}

	log, closer, err := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		File:    cfg.Log.File,
		MaxSize: cfg.Log.MaxSize,
		MaxAge:  cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *mode, log); err != nil {
		log.Error().Err(err).Msg("batch aborted")
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string, log zerolog.Logger) error {
	if mode != "flat" && mode != "detailed" && mode != "all" {
		return fmt.Errorf("invalid mode %q (must be flat, detailed or all)", mode)
	}

	p, err := pipeline.NewFromConfig(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}

	batch := &pipeline.Batch{
		Pipeline:   p,
		Decoders:   decode.NewRegistry(),
		Extensions: cfg.Processing.Extensions,
		Workers:    cfg.Processing.Workers,
		Log:        log,
	}

	failed := 0
	if mode == "flat" || mode == "all" {
		log.Info().Str("input", cfg.Paths.FlatInput).Str("output", cfg.Paths.FlatOutput).Msg("reprocessing single-plane scans")
		summary, err := batch.RunFlat(ctx, cfg.Paths.FlatInput, cfg.Paths.FlatOutput)
		if err != nil {
			return err
		}
		failed += summary.Failed
	}
	if mode == "detailed" || mode == "all" {
		log.Info().Str("input", cfg.Paths.DetailedInput).Str("output", cfg.Paths.DetailedOutput).Msg("reprocessing Z-stack scans")
		summary, err := batch.RunDetailed(ctx, cfg.Paths.DetailedInput, cfg.Paths.DetailedOutput)
		if err != nil {
			return err
		}
		failed += summary.Failed
	}
	if failed > 0 {
		log.Warn().Int("failed", failed).Msg("some scans could not be processed")
	}
	return nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
