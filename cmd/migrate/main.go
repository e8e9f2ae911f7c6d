package main

import (
	"flag"
	"log"

	"sales-reconciler/config"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	switch command {
	case "up":
		err = db.Migrate(logger)
	case "down":
		err = db.MigrateDown(logger, *steps)
	default:
		logger.Fatal("Unknown command, expected up or down", zap.String("command", command))
	}
	if err != nil {
		logger.Fatal("Migration failed", zap.String("command", command), zap.Error(err))
	}
}
