package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civreg.org/internal/auth"
	"civreg.org/internal/directory"
)

// seed-admin creates the bootstrap administrator account. Running it
// twice is safe: an existing account with the same username, email or
// SSN leaves the directory untouched.
func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("CIVREG_PG_DSN"), "PostgreSQL DSN")
		username = flag.String("username", "admin", "Administrator username")
		email    = flag.String("email", "admin@civreg.local", "Administrator email")
		password = flag.String("password", os.Getenv("CIVREG_ADMIN_PASSWORD"), "Administrator password")
		ssn      = flag.String("ssn", "000000000", "Administrator SSN")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CIVREG_PG_DSN")
	}
	if *password == "" {
		log.Fatal("missing password: provide via -password or CIVREG_ADMIN_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	svc, err := directory.NewService(directory.NewPGStore(db))
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	sub, err := svc.Create(ctx, directory.CreateInput{
		RegisterInput: directory.RegisterInput{
			Username:    *username,
			Email:       *email,
			Password:    *password,
			Firstname:   "System",
			Lastname:    "Administrator",
			PhoneNumber: "0000000000",
			Address: directory.AddressInput{
				City:     "Headquarters",
				Street:   "Main",
				Number:   "1",
				Postcode: "00000",
			},
			SSN: *ssn,
		},
		Role: string(auth.RoleAdmin),
	})
	if err != nil {
		if errors.Is(err, directory.ErrDuplicate) || errors.Is(err, directory.ErrDuplicateInactive) {
			log.Printf("admin %q already present, nothing to do", *username)
			return
		}
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("created admin %s (%s)", sub.Username, sub.ID)
}
