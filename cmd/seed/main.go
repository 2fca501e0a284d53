// seed inserts a development user for local testing.
// Idempotent: skips the insert if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/security"
	userdomain "authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"

	"github.com/google/uuid"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("lookup dev user: %v", err)
	}
	if existing != nil {
		log.Printf("dev user %s already exists, nothing to do", devUserEmail)
		return
	}

	hash, err := security.NewHasher(cfg.PBKDF2Iterations).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        devUserEmail,
		Role:         "admin",
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	log.Printf("seeded dev user %s (password %q)", devUserEmail, devPassword)
}
