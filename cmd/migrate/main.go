package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"securefiles/server/internal/config"
	"securefiles/server/internal/migrate"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of steps to roll back (down only, 0 = all)")
		version = flag.Uint("version", 0, "Target version (for force command)")
	)
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("SECUREFILES_DATABASE_URL (or DATABASE_URL) is required")
	}

	switch *command {
	case "up":
		v, err := migrate.Up(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		fmt.Printf("✓ schema at version %d\n", v)
	case "down":
		if err := migrate.Down(cfg.DatabaseURL, *steps); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		fmt.Println("✓ migrations rolled back")
	case "version":
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to get version: %v", err)
		}
		if dirty {
			fmt.Printf("⚠ database is in a dirty state (version %d)\n", v)
			os.Exit(1)
		}
		fmt.Printf("current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			log.Fatal("version required for force command (use -version flag)")
		}
		if err := migrate.Force(cfg.DatabaseURL, int(*version)); err != nil {
			log.Fatalf("force migration failed: %v", err)
		}
		fmt.Printf("✓ forced database to version %d\n", *version)
	default:
		log.Fatalf("unknown command: %s (supported: up, down, version, force)", *command)
	}
}
