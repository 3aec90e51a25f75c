package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/bschneidr/srvyr/adapters/excel"
	"github.com/bschneidr/srvyr/adapters/postgres"
	"github.com/bschneidr/srvyr/app"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/internal"
	"github.com/bschneidr/srvyr/internal/config"
	"github.com/bschneidr/srvyr/internal/engine"
	"github.com/bschneidr/srvyr/internal/testkit"
	"github.com/bschneidr/srvyr/ports"
	"github.com/bschneidr/srvyr/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	logger := internal.NewDefaultLogger()

	var store ports.RunStore
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("database error: %v", err)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("schema error: %v", err)
		}
		store = postgres.NewRunStore(db)
		logger.Info("run storage: postgres")
	} else {
		store = testkit.NewMemoryRunStore()
		logger.Info("run storage: in-memory (set DATABASE_URL to persist)")
	}

	reader := excel.NewDataReader(logger)
	var table *frame.Table
	if cfg.Data.Path != "" {
		table, err = reader.ReadTable(context.Background(), cfg.Data.Path)
		if err != nil {
			log.Fatalf("data load error: %v", err)
		}
	} else {
		logger.Warn("DATA_FILE not set; upload data via POST /api/data before estimating")
	}

	svc := app.NewEstimationService(engine.New(logger), store, logger)
	server := ui.NewServer(svc, reader, table, logger)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
