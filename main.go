package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"policyocr/cmd"
	"policyocr/internal/config"
	"policyocr/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Info().Str("version", cmd.Version()).Msg("Starting policyocr")

	cmd.Execute()

	log.Info().Msg("policyocr shutdown")
	os.Exit(0)
}
