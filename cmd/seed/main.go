// seed inserts a development admin and a regular user for local testing.
// Both accounts use the password "password123". Accounts whose email already exists are skipped.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/config"
	"github.com/xboybx/Authentication-System/internal/db"
	"github.com/xboybx/Authentication-System/internal/db/migrate"
	"github.com/xboybx/Authentication-System/internal/logging"
	"github.com/xboybx/Authentication-System/internal/security"
	userdomain "github.com/xboybx/Authentication-System/internal/user/domain"
	userrepo "github.com/xboybx/Authentication-System/internal/user/repository"
)

const devPassword = "password123"

type seedUser struct {
	name, email, role string
}

var seedUsers = []seedUser{
	{name: "Dev Admin", email: "admin@example.com", role: userdomain.RoleAdmin},
	{name: "Dev User", email: "dev@example.com", role: userdomain.RoleUser},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		log.Fatal("seed refuses to run with APP_ENV=production")
	}
	if err := migrate.Run(cfg.DatabaseDriver, cfg.DatabaseURL, "up"); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	users := userrepo.NewSQLRepository(conn)
	passwordHash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}

	for _, su := range seedUsers {
		existing, err := users.GetByEmail(ctx, su.email)
		if err != nil {
			log.Fatal("seed check", zap.String("email", su.email), zap.Error(err))
		}
		if existing != nil {
			log.Info("seed user exists, skipping", zap.String("email", su.email))
			continue
		}
		now := time.Now().UTC()
		u := &userdomain.User{
			ID:           uuid.New().String(),
			Name:         su.name,
			Email:        su.email,
			PasswordHash: passwordHash,
			Role:         su.role,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatal("create seed user", zap.String("email", su.email), zap.Error(err))
		}
		log.Info("seed user created", zap.String("email", su.email), zap.String("role", su.role))
	}
	log.Info("seed complete")
}
