package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/config"
	"gradebook.dev/internal/store/pg"
)

// bootstrap-admin creates an ADMIN identity directly in PostgreSQL. It reads the
// same configuration as the API; the password comes from GRADEBOOK_ADMIN_PASSWORD
// so it never shows up in process listings.
func main() {
	log.SetFlags(0)
	var (
		email     = flag.String("email", os.Getenv("GRADEBOOK_ADMIN_EMAIL"), "admin email")
		firstName = flag.String("first-name", "System", "admin first name")
		lastName  = flag.String("last-name", "Administrator", "admin last name")
	)
	flag.Parse()

	password := os.Getenv("GRADEBOOK_ADMIN_PASSWORD")
	if *email == "" || password == "" {
		log.Fatal("usage: GRADEBOOK_ADMIN_PASSWORD=... bootstrap-admin -email admin@example.org")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("missing DSN: set GRADEBOOK_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()
	if _, err := store.Init(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	tokens, err := auth.NewTokenService([]byte(cfg.TokenSecret), auth.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	svc, err := auth.NewService(store, hasher, tokens)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	identity, err := svc.BootstrapAdmin(ctx, auth.Registration{
		Email:     *email,
		Password:  password,
		FirstName: *firstName,
		LastName:  *lastName,
	})
	if errors.Is(err, auth.ErrConflict) {
		log.Fatalf("an identity with email %s already exists", auth.NormalizeEmail(*email))
	}
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}
	fmt.Printf("created admin id=%d email=%s\n", identity.ID, identity.Email)
}
