package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"vqagen/core"
	"vqagen/core/gemini"
	"vqagen/models"

	"github.com/sirupsen/logrus"
)

const runUsage = `Usage:
  vqagen run -requests <path> -out <path> [flags]

Flags:
  -requests string    Request file written by vqagen build (required)
  -out string         Result file to write (required)
  -config string      Optional YAML config file
  -concurrency int    Worker count (capped at the number of API keys)
  -resume             Skip requests whose image already succeeded in the result file
  -seed int           Seed for the dispatch shuffle (0 uses the clock)`

func runDispatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, runUsage)
	}

	var (
		requestsPath string
		outPath      string
		cfgPath      string
		concurrency  int
		resume       bool
		seed         int64
	)
	fs.StringVar(&requestsPath, "requests", "", "request file")
	fs.StringVar(&outPath, "out", "", "result file")
	fs.StringVar(&cfgPath, "config", "", "config file")
	fs.IntVar(&concurrency, "concurrency", 0, "worker count")
	fs.BoolVar(&resume, "resume", false, "skip already succeeded requests")
	fs.Int64Var(&seed, "seed", 0, "random seed")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse run flags: %w", err)
	}
	if requestsPath == "" || outPath == "" {
		return errors.New("run requires -requests and -out")
	}

	cfg, log, closer, err := loadConfigAndLogger(cfgPath, "", concurrency)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := cfg.RequireKeys(); err != nil {
		return err
	}

	rf, err := core.LoadRequestFile(requestsPath)
	if err != nil {
		return err
	}
	// Requests carry their own model name; the file header stamps the output.
	model := rf.Model
	if model == "" {
		model = cfg.Model
	}

	store := core.NewResultStore(model, rf.Eval, log)
	done := map[string]bool{}
	if resume {
		done, err = preloadResults(store, outPath, model, rf.Eval, log)
		if err != nil {
			return err
		}
	}

	var requests []*models.Request
	skipped := 0
	for _, req := range rf.Requests {
		if done[req.ImageID] {
			skipped++
			continue
		}
		requests = append(requests, req)
	}
	log.Infof("🚀 Loaded %d request(s) from %s, %d skipped", len(requests), requestsPath, skipped)

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

// dispatch wires the key pool, Gemini client and dispatcher together and runs
// the batch, checkpointing to outPath along the way.
func dispatch(ctx context.Context, cfg *core.Config, store *core.ResultStore, requests []*models.Request, seed int64, outPath string, log *logrus.Logger) error {
	if len(requests) == 0 {
		log.Info("Nothing to dispatch")
		return nil
	}

	pool, err := core.NewKeyPool(cfg.Keys, cfg.KeyRPM, log)
	if err != nil {
		return err
	}
	client := gemini.NewClient(cfg.BaseURL)

	dcfg := cfg.DispatchConfig()
	dcfg.Seed = seed

	store.StartCheckpoints(outPath, cfg.CheckpointInterval())
	defer store.StopCheckpoints()

	_, err = core.NewDispatcher(pool, client, store, dcfg, log).Run(ctx, requests, cfg.Concurrency)
	return err
}

// preloadResults seeds the store with the successes of a previous run so the
// current one skips them. Failures are dropped and retried.
func preloadResults(store *core.ResultStore, path, model string, eval bool, log *logrus.Logger) (map[string]bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Infof("No previous results at %s, starting fresh", path)
			return map[string]bool{}, nil
		}
		return nil, err
	}
	prior, err := core.LoadResultFile(path)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if prior.Model != model || prior.Eval != eval {
		log.Warnf("Resuming over a run with model=%s eval=%v, current run is model=%s eval=%v",
			prior.Model, prior.Eval, model, eval)
	}
	kept := 0
	for _, r := range prior.Results {
		if r.Succeeded() {
			store.Append(r)
			kept++
		}
	}
	log.Infof("🔄 Resume: kept %d previous success(es), retrying %d failure(s)",
		kept, len(prior.Results)-kept)
	return store.SucceededImageIDs(), nil
}
