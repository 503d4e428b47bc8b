// Command track runs a single tracking cycle and prints the summary as JSON.
// It is meant for cron-style scheduling against the bolt store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"SignalTrack/internal/di"
	"SignalTrack/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	retrain := flag.Bool("retrain", false, "force a retrain after the cycle")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	tracker, cleanup, err := di.InitializeTracker(cfg)
	if err != nil {
		log.Fatalf("tracker initialization failed: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sum, err := tracker.RunCycle(ctx)
	if err != nil {
		cleanup()
		log.Fatalf("cycle failed: %v", err)
	}
	if *retrain {
		out, err := tracker.Retrain(ctx)
		if err != nil {
			cleanup()
			log.Fatalf("retrain failed: %v", err)
		}
		sum.Retrain = out
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		log.Printf("encode summary: %v", err)
	}
}
