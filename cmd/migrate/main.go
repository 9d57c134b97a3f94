package main

import (
	"database/sql"
	"flag"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"github.com/navid-fn/flowscope/configs"
	"github.com/navid-fn/flowscope/internal/logger"
	"github.com/navid-fn/flowscope/internal/storage"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	down := flag.Bool("down", false, "Roll back the latest migration instead of migrating up")
	flag.Parse()

	cfg, err := configs.AppLoad()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.LogLevel)

	db, err := sql.Open("clickhouse", cfg.ClickHouse.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	goose.SetBaseFS(storage.Migrations)
	goose.SetLogger(log)
	if err := goose.SetDialect("clickhouse"); err != nil {
		log.Fatalf("Goose: failed to set dialect: %v", err)
	}

	if *down {
		log.Info("Rolling back the latest migration...")
		if err := goose.Down(db, "migrations"); err != nil {
			log.Fatalf("Goose rollback failed: %v", err)
		}
		return
	}

	log.Info("Running database migrations...")
	if err := goose.Up(db, "migrations"); err != nil {
		log.Fatalf("Goose migration failed: %v", err)
	}
	log.Info("Migrations completed successfully")
}
