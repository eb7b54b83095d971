package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	appEngine "github.com/amarcoder01/market-engine/internal/app/engine"
	"github.com/amarcoder01/market-engine/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (env vars are used when empty)")
	envFile := flag.String("env-file", "", "path to .env file to load before reading config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env file: %v", err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appEngine.Run(context.Background(), cfg)
}
