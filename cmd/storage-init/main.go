package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"schedule-planner/config"
	"schedule-planner/storage"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("driver", cfg.Storage.Driver).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.DriverAzure:
		tables, err := storage.NewTables(cfg.Storage.ConnectionString, storage.TableNames{
			Tasks:    cfg.Storage.TasksTable,
			Users:    cfg.Storage.UsersTable,
			Settings: cfg.Storage.SettingsTable,
			Events:   cfg.Storage.EventsQueue,
		})
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := tables.Provision(ctx); err != nil {
			log.Fatalf("provision: %v", err)
		}
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		if err := db.Ping(ctx); err != nil {
			log.Fatalf("sqlite ping: %v", err)
		}
		_ = db.Close()
	}

	log.Info("storage init complete")
}
