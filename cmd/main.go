package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vqagen/core"

	"github.com/sirupsen/logrus"
)

const version = "0.4.0"

// logFileSizeMB caps the optional run log before ping-pong rotation kicks in.
const logFileSizeMB = 50

const usage = `vqagen builds visual question answering datasets by sending medical images
through the Gemini API.

Usage:
  vqagen <command> [flags]

Commands:
  generate   Build requests from a dataset and dispatch them in one run
  build      Write a request file from a dataset without calling the API
  run        Dispatch a previously built request file
  version    Print the version

Flags:
  -h, --help  Show this help message`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "run interrupted, partial results were flushed")
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:])
	case "build":
		return runBuild(ctx, args[1:])
	case "run":
		return runDispatch(ctx, args[1:])
	case "version":
		fmt.Printf("vqagen %s\n", version)
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

// loadConfigAndLogger is the shared front half of every command: .env, config
// file, flag overrides, validation, logger.
func loadConfigAndLogger(cfgPath, modelOverride string, concurrencyOverride int) (*core.Config, *logrus.Logger, io.Closer, error) {
	core.LoadDotEnv(logrus.New())

	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if modelOverride != "" {
		cfg.Model = modelOverride
	}
	if concurrencyOverride > 0 {
		cfg.Concurrency = concurrencyOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	log, closer, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

// newLogger builds the run logger from config. The returned closer is non-nil
// when a rotating log file is attached.
func newLogger(cfg *core.Config) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.LogFile == "" {
		return log, nil, nil
	}

	rotator, err := core.NewLogRotator(cfg.LogFile, logFileSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %q: %w", cfg.LogFile, err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return log, rotator, nil
}
