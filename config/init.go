package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		NetlifyConfig:  &NetlifyConfig{},
		ForwardEmail:   &ForwardEmailConfig{},
		ImapConfig:     &ImapConfig{},
		GatewayConfig:  &GatewayConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading crmhost config: %v", err)
	}

	return config, nil
}
