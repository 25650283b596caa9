// migrate applies the embedded schema migrations: go run ./cmd/migrate [--direction up|down] [--steps n].
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"workforce-auth/internal/config"
	"workforce-auth/internal/db/migrate"
)

func main() {
	direction := flag.StringP("direction", "d", "up", "migration direction: up or down")
	steps := flag.IntP("steps", "n", 0, "number of migrations to apply; 0 applies all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	res, err := migrate.Run(cfg.DatabaseURL, *direction, *steps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	if res.Dirty {
		fmt.Fprintf(os.Stderr, "schema version %d is dirty; fix it and force the version\n", res.Version)
		os.Exit(1)
	}
	fmt.Printf("schema at version %d\n", res.Version)
}
