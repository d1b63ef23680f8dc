package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"vqagen/core"
	"vqagen/models"
)

const buildUsage = `Usage:
  vqagen build -dataset <path> -templates <path> -out <path> [flags]

Flags:
  -dataset string     Dataset directory (metadata/ + images/) or records JSON file (required)
  -templates string   Prompt template YAML file (required)
  -out string         Request file to write (required)
  -config string      Optional YAML config file
  -model string       Model name override
  -category string    Force one template category for every record
  -eval               Evaluation mode: fixed template variant per image
  -seed int           Seed for category sampling (0 uses the clock)`

// runBuild writes a request file without touching the API, so a batch can be
// inspected or split before spending quota on it.
func runBuild(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, buildUsage)
	}

	var (
		datasetPath  string
		templatePath string
		outPath      string
		cfgPath      string
		modelName    string
		category     string
		eval         bool
		seed         int64
	)
	fs.StringVar(&datasetPath, "dataset", "", "dataset directory or records file")
	fs.StringVar(&templatePath, "templates", "", "template YAML file")
	fs.StringVar(&outPath, "out", "", "request file")
	fs.StringVar(&cfgPath, "config", "", "config file")
	fs.StringVar(&modelName, "model", "", "model name override")
	fs.StringVar(&category, "category", "", "force a template category")
	fs.BoolVar(&eval, "eval", false, "evaluation mode")
	fs.Int64Var(&seed, "seed", 0, "random seed")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse build flags: %w", err)
	}
	if datasetPath == "" || templatePath == "" || outPath == "" {
		return errors.New("build requires -dataset, -templates and -out")
	}

	cfg, log, closer, err := loadConfigAndLogger(cfgPath, modelName, 0)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	templates, err := core.LoadTemplates(templatePath)
	if err != nil {
		return err
	}
	records, err := core.LoadRecords(datasetPath, log)
	if err != nil {
		return err
	}

	builder, err := core.NewRequestBuilder(templates, core.BuildOptions{
		Model:      cfg.Model,
		Generation: cfg.Generation,
		Eval:       eval,
		Category:   category,
		Seed:       seed,
	})
	if err != nil {
		return err
	}

	var requests []*models.Request
	failures := 0
	for _, rec := range records {
		req, err := builder.Build(rec)
		if err != nil {
			failures++
			log.Warnf("Request build failed for %s: %v", rec.ImageID, err)
			continue
		}
		requests = append(requests, req)
	}
	if len(requests) == 0 {
		return fmt.Errorf("no requests could be built from %d record(s), %d failure(s)", len(records), failures)
	}

	if err := core.WriteRequestFile(outPath, requests, cfg.Model, eval); err != nil {
		return err
	}
	log.Infof("💾 Wrote %d request(s) to %s, %d build failure(s)", len(requests), outPath, failures)
	return nil
}
