package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/usersvc/users-api/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	demo := []struct {
		name  string
		email string
	}{
		{"John Doe", "john@example.com"},
		{"Jane Roe", "jane@example.com"},
	}

	for _, d := range demo {
		var id int64
		err := db.QueryRow(`
			INSERT INTO users (name, email)
			VALUES ($1, $2)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, d.name, d.email).Scan(&id)
		if err != nil {
			log.Fatalf("failed to seed user %s: %v", d.email, err)
		}
		fmt.Printf("seeded user: id=%d email=%s name=%s\n", id, d.email, d.name)
	}
}
