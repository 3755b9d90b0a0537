package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// seed-students copies the catalog's students into PostgreSQL so quizd can
// authenticate against the database.
func main() {
	var catalogFile string
	flag.StringVar(&catalogFile, "catalog", "", "Catalog JSON file (defaults to CATALOG_FILE or the demo catalog)")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if catalogFile == "" {
		catalogFile = cfg.CatalogFile
	}
	catalog := repository.DefaultCatalog()
	if catalogFile != "" {
		catalog, err = repository.LoadCatalog(catalogFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load catalog")
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	students, err := catalog.HashedStudents(func(p string) (string, error) {
		return service.HashPassword(p, cfg.BcryptCost)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash passwords")
	}

	repo := repository.NewPostgresStudentRepository(pool)
	created, skipped := 0, 0
	for i := range students {
		s := &students[i]
		if err := repo.Create(ctx, s); err != nil {
			if errors.Is(err, repository.ErrDuplicateNISN) {
				skipped++
				continue
			}
			log.Error().Err(err).Str("nisn", s.NISN).Msg("Failed to create student")
			continue
		}
		created++
	}

	log.Info().
		Int("created", created).
		Int("skipped", skipped).
		Int("total", len(students)).
		Msg("Seed completed")
}
