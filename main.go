package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/internal/database"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/server"
	"github.com/noyaclicks-jpg/crmhost/services"
)

func main() {
	app := &cli.App{
		Name:  "crmhost",
		Usage: "domain provisioning and mailbox sync service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "start the application server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "run database migrations",
				Action: runMigrate,
			},
			{
				Name:   "sync",
				Usage:  "run one mailbox sync pass over all organizations and exit",
				Action: runSync,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return err
	}
	return srv.Run()
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	if err := repository.Migrate(cfg.DatabaseConfig, db); err != nil {
		return err
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runSync(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return err
	}
	defer svcs.EventPublisher.Close()

	return svcs.SyncService.Run(context.Background())
}
