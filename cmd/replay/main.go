// Command replay feeds hourly observations to a running forecaster so its
// usage history is warm before dashboards start requesting forecasts.
//
// Observations come from a CSV file (-csv) or from a synthetic pattern:
//
//	replay -target=http://localhost:8000 -pattern=business-hours -hours=168
//	replay -target=http://localhost:8000 -csv=readings.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/HatiCode/wattcast/cmd/forecaster/logger"
	"github.com/HatiCode/wattcast/pkg/httpx"
	"github.com/HatiCode/wattcast/pkg/tls"
)

func main() {
	var (
		target    = flag.String("target", envOr("TARGET_URL", "http://localhost:8000"), "Forecaster base URL")
		pattern   = flag.String("pattern", envOr("PATTERN", "business-hours"), "Synthetic pattern")
		hours     = flag.Int("hours", 168, "Hours of synthetic data to send")
		csvPath   = flag.String("csv", "", "CSV file to replay instead of a pattern")
		pace      = flag.Duration("pace", 0, "Delay between requests")
		logFormat = flag.String("log-format", envOr("LOG_FORMAT", "text"), "Log format: text or json")
		logLevel  = flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level")
		tlsCfg    tls.Config
	)
	flag.BoolVar(&tlsCfg.Enabled, "tls-enabled", false, "Use mTLS")
	flag.StringVar(&tlsCfg.CertFile, "tls-cert-file", "", "Client certificate file")
	flag.StringVar(&tlsCfg.KeyFile, "tls-key-file", "", "Client key file")
	flag.StringVar(&tlsCfg.CAFile, "tls-ca-file", "", "CA certificate file")
	flag.Parse()

	log := logger.NewWithWriter(os.Stderr, *logFormat, *logLevel)

	var obs []Observation
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Error("failed to open csv", "error", err)
			os.Exit(1)
		}
		obs, err = ReadCSV(f, time.Local)
		f.Close()
		if err != nil {
			log.Error("failed to parse csv", "path", *csvPath, "error", err)
			os.Exit(1)
		}
	} else {
		p, ok := patterns[*pattern]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown pattern %q, available: %v\n", *pattern, patternNames())
			os.Exit(2)
		}
		start := time.Now().Truncate(time.Hour).Add(-time.Duration(*hours) * time.Hour)
		obs = Generate(p, start, *hours)
		log.Info("generated observations", "pattern", p.Name, "description", p.Description, "count", len(obs))
	}

	httpClient, err := httpx.NewClient(tlsCfg, 10*time.Second)
	if err != nil {
		log.Error("failed to create http client", "error", err)
		os.Exit(1)
	}
	client := NewClient(*target, httpClient, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.WaitReady(ctx, 60, 2*time.Second); err != nil {
		log.Error("forecaster not ready", "error", err)
		os.Exit(1)
	}

	summary, err := client.Replay(ctx, obs, *pace)
	log.Info("replay finished",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"last_prediction", summary.LastPrediction,
	)
	if err != nil || summary.Failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func patternNames() []string {
	names := make([]string, 0, len(patterns))
	for n := range patterns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
