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

const generateUsage = `Usage:
  vqagen generate -dataset <path> -templates <path> -out <path> [flags]

Flags:
  -dataset string     Dataset directory (metadata/ + images/) or records JSON file (required)
  -templates string   Prompt template YAML file (required)
  -out string         Result file to write (required)
  -config string      Optional YAML config file
  -concurrency int    Worker count (capped at the number of API keys)
  -model string       Model name override
  -category string    Force one template category for every record
  -eval               Evaluation mode: fixed template variant per image
  -resume             Skip records that already succeeded in the result file
  -seed int           Seed for category sampling and shuffle (0 uses the clock)`

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, generateUsage)
	}

	var (
		datasetPath  string
		templatePath string
		outPath      string
		cfgPath      string
		concurrency  int
		modelName    string
		category     string
		eval         bool
		resume       bool
		seed         int64
	)
	fs.StringVar(&datasetPath, "dataset", "", "dataset directory or records file")
	fs.StringVar(&templatePath, "templates", "", "template YAML file")
	fs.StringVar(&outPath, "out", "", "result file")
	fs.StringVar(&cfgPath, "config", "", "config file")
	fs.IntVar(&concurrency, "concurrency", 0, "worker count")
	fs.StringVar(&modelName, "model", "", "model name override")
	fs.StringVar(&category, "category", "", "force a template category")
	fs.BoolVar(&eval, "eval", false, "evaluation mode")
	fs.BoolVar(&resume, "resume", false, "skip already succeeded records")
	fs.Int64Var(&seed, "seed", 0, "random seed")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse generate flags: %w", err)
	}
	if datasetPath == "" || templatePath == "" || outPath == "" {
		return errors.New("generate requires -dataset, -templates and -out")
	}

	cfg, log, closer, err := loadConfigAndLogger(cfgPath, modelName, concurrency)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := cfg.RequireKeys(); err != nil {
		return err
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

	store := core.NewResultStore(cfg.Model, eval, log)
	done := map[string]bool{}
	if resume {
		done, err = preloadResults(store, outPath, cfg.Model, eval, log)
		if err != nil {
			return err
		}
	}

	// Build failures become failure Results right here, so the output still
	// carries one entry per record.
	var requests []*models.Request
	skipped, buildFailures := 0, 0
	for _, rec := range records {
		if done[rec.ImageID] {
			skipped++
			continue
		}
		req, err := builder.Build(rec)
		if err != nil {
			buildFailures++
			log.Warnf("Request build failed for %s: %v", rec.ImageID, err)
			store.Append(models.BuildFailureResult(rec, cfg.Model, err))
			continue
		}
		requests = append(requests, req)
	}
	log.Infof("🚀 Built %d request(s) from %d record(s), %d skipped, %d build failure(s)",
		len(requests), len(records), skipped, buildFailures)

	runErr := dispatch(ctx, cfg, store, requests, seed, outPath, log)

	if err := store.Flush(outPath); err != nil {
		if runErr == nil {
			return err
		}
		log.Errorf("Final flush failed: %v", err)
	} else {
		log.Infof("💾 Results written to %s", outPath)
	}
	return runErr
}
