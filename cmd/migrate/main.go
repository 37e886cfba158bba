// cmd/migrate/main.go - apply schema migrations rồi thoát
package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/config"
	infraDB "familytree-backend/internal/infrastructure/database"
	"familytree-backend/pkg/database"
	"familytree-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("[Migrate] Failed to load config")
	}
	logger.Init(cfg.App.Environment)

	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("[Migrate] Failed to load database config")
	}

	dsn := infraDB.NewPostgresDB(dbConfig).DSN()
	if err := database.MigrateUp(dsn, cfg.App.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("[Migrate] Failed")
	}
	log.Info().Msg("[Migrate] ✓ Done")
}
