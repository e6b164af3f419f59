// seed creates the schema and the employees used by tools/load-test.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"ponto.service/internal/config"
	"ponto.service/pkg/database"
	"ponto.service/pkg/logger"
)

func main() {
	employees := flag.Int("employees", 5000, "number of load-test employees to create")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logger.Setup("seed", true, cfg.LogLevel)

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start transaction")
	}
	defer tx.Rollback()

	query := `INSERT INTO employees (id, name, cpf, email) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`
	for i := 0; i < *employees; i++ {
		id := fmt.Sprintf("load-test-emp-%d", i)
		if _, err := tx.ExecContext(ctx, query, id, "Load Test "+fmt.Sprint(i), fmt.Sprintf("%011d", i), id+"@example.com"); err != nil {
			log.Fatal().Err(err).Str("employee_id", id).Msg("Failed to insert employee")
		}
	}
	if err := tx.Commit(); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit")
	}

	log.Info().Int("employees", *employees).Msg("Seed complete")
}
