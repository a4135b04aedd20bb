package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/archlab/deflect/internal/export"
	"github.com/archlab/deflect/internal/ingest"
	"github.com/archlab/deflect/internal/log"
	"github.com/archlab/deflect/internal/pipeline"
	"github.com/archlab/deflect/internal/render"
	"github.com/archlab/deflect/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("deflect %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Errorf("Pipeline error: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	measurements, err := ingest.ReadLong(cfg.InputFile)
	if err != nil {
		return err
	}
	log.Infof("loaded %d measurements from %s", len(measurements), cfg.InputFile)

	runner := pipeline.New(cfg, log.GetSugaredLogger())
	result, err := runner.Run(context.Background(), measurements)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	out := func(name string) string { return filepath.Join(cfg.OutputDir, name) }
	if err := export.WriteSummary(out("summary.csv"), result.Summary); err != nil {
		return err
	}
	if err := export.WriteAligned(out("aligned.csv"), result.Aligned); err != nil {
		return err
	}
	if err := export.WriteFits(out("fits.csv"), result.Groups, result.PooledFit); err != nil {
		return err
	}
	if err := export.WriteExtrema(out("extrema.csv"), result.Extrema); err != nil {
		return err
	}

	if cfg.Render.Enabled {
		renderer := render.New(cfg, log.GetSugaredLogger())
		if err := renderer.RenderAll(result); err != nil {
			return err
		}
	}

	if n := len(result.Report.Skipped); n > 0 {
		log.Warnf("%d group(s) excluded from the pooled fit; see log for reasons", n)
	}
	return nil
}
