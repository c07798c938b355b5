// Command bookshelfctl is a terminal client of the bookshelf API.
//
// The server address comes from BOOKSHELF_URL (default http://localhost:3000)
// and the session is kept in BOOKSHELF_SESSION (default ~/.bookshelf.db).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/bookshelf/internal/client/api"
	"github.com/patric-chuzhbe/bookshelf/internal/client/cli"
	"github.com/patric-chuzhbe/bookshelf/internal/client/session"
)

const requestTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, cli.ErrUnknownCommand) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.Open(sessionPath())
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.New(getenv("BOOKSHELF_URL", "http://localhost:3000"), requestTimeout)

	return cli.New(client, store, os.Stdin, os.Stdout).Run(ctx, os.Args[1:])
}

func sessionPath() string {
	if path := os.Getenv("BOOKSHELF_SESSION"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookshelf.db"
	}

	return filepath.Join(home, ".bookshelf.db")
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
