package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/tsarena/internal/smoke"
)

// Default configuration constants.
const (
	defaultDefinitions = 5
	defaultRounds      = 50
	defaultWorkers     = 4
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the dashboard")
		definitions = flag.Int("definitions", defaultDefinitions, "Number of definitions to crawl, 0 for all")
		rounds      = flag.Int("rounds", defaultRounds, "Maximum number of round views to check, 0 for all")
		workers     = flag.Int("workers", defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		reportFile  = flag.String("report", "", "Write a JSON report to this file")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Log every checked round")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoke.ShowHelp()
		return
	}

	if err := smoke.SetupLogging(*logFormat, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &smoke.Config{
		BaseURL:     *baseURL,
		Definitions: *definitions,
		Rounds:      *rounds,
		Workers:     *workers,
		Timeout:     *timeout,
		ReportFile:  *reportFile,
		Verbose:     *verbose,
	}

	if _, err := smoke.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Smoke run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
