package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	flag "github.com/spf13/pflag"

	"github.com/yourusername/evaluation-api/internal/config"
)

// Утилита обслуживания схемы: up, down N, version, force N.
// Force нужен, чтобы снять dirty-состояние после упавшей миграции.
func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config/config.yaml"), "путь к файлу конфигурации")
	source := flag.String("source", "file://migrations", "источник миграций")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [--config path] [--source url] up | down N | version | force N")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithDatabaseInstance(*source, "postgres", driver)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(m, args); err != nil {
		log.Fatalf("Ошибка: %v", err)
	}
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		fmt.Println("Миграции применены.")
	case "down":
		steps, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Steps(-steps); err != nil {
			return err
		}
		fmt.Printf("Откачено миграций: %d\n", steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Миграции еще не применялись.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Версия: %d, dirty: %t\n", version, dirty)
	case "force":
		version, err := intArg(args)
		if err != nil {
			return err
		}
		fmt.Printf("Принудительно устанавливаем версию %d...\n", version)
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		fmt.Println("Dirty-состояние снято.")
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number", args[0])
	}
	var n int
	if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number %q", args[1])
	}
	return n, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
