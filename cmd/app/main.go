package main

import (
	"flag"
	"log"
	"os"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/di"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s exchange=%s symbols=%v", cfg.Environment, cfg.Pipeline.Exchange, cfg.Pipeline.Symbols)

	// Missing checkpoint or unreachable ClickHouse is fatal at startup
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
