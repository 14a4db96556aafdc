// migrate applies or rolls back the embedded SQL migrations for DATABASE_DRIVER / DATABASE_URL.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/xboybx/Authentication-System/internal/config"
	"github.com/xboybx/Authentication-System/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseDriver, cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Already at target version; success.
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations applied (%s, %s)\n", cfg.DatabaseDriver, *direction)
}
