// Command seed loads a YAML fixture of tenants, companies, users,
// memberships and roles for local development.
package main

import (
	"context"
	"flag"

	"portal_context_backend/internal/auth/repository"
	"portal_context_backend/internal/auth/service"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/db"
	"portal_context_backend/platform/logger"
)

func main() {
	fixturePath := flag.String("fixture", "cmd/seed/fixture.yaml", "path to the YAML fixture")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting seed", "fixture", *fixturePath)

	fixture, err := LoadFixture(*fixturePath)
	if err != nil {
		log.Error("invalid fixture", "error", err)
		panic("invalid fixture: " + err.Error())
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	repo := repository.New(pool)
	s := &seeder{
		pool:       pool,
		registrar:  service.New(repo, cfg, nil, log),
		identities: repo,
	}

	res, err := s.seed(ctx, fixture)
	if err != nil {
		log.Error("seed failed", "error", err)
		return
	}
	log.Info("seed complete",
		"tenants", res.tenants,
		"companies", res.companies,
		"users", res.users,
		"memberships", res.memberships,
		"roles", res.roles,
	)
}
