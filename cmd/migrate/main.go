package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"

	"meal_voucher/internal/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	down := flag.Bool("down", false, "roll back one migration")
	force := flag.Int("force", -1, "force version after a failed migration")
	flag.Parse()

	config.LoadConfig()
	cfg := config.GlobalConfig.Database
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	switch {
	case *force >= 0:
		if err := m.Force(*force); err != nil {
			log.Fatal("Failed to force version:", err)
		}
		log.Printf("Forced version %d", *force)
		return
	case *down:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}

	var dirty migrate.ErrDirty
	switch {
	case err == nil, errors.Is(err, migrate.ErrNoChange):
	case errors.As(err, &dirty):
		log.Fatalf("Database is dirty at version %d, fix it and rerun with -force", dirty.Version)
	default:
		log.Fatal(err)
	}

	version, isDirty, _ := m.Version()
	log.Printf("Migration successful, version=%d dirty=%v", version, isDirty)
}
