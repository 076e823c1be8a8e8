// Command ppadmin runs one-off maintenance against the past-performance database: enqueueing
// re-embed jobs for pending chunks, rebuilding capability rollups, and seeding the vocabulary.
// Jobs it enqueues are processed by the workers of the API process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/pkg/database"
)

var errDatabaseURLRequired = errors.New("DATABASE_URL is required (set it or pass --database-url)")

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "ppadmin",
	Short:         "Maintenance commands for the past-performance service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "",
		"PostgreSQL connection string (default: $DATABASE_URL)")
}

func main() {
	// Load .env for consistency with the API server.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect opens the pool named by --database-url or DATABASE_URL.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	url := databaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}

	if url == "" {
		return nil, errDatabaseURLRequired
	}

	return database.NewPostgresPool(ctx, url, database.WithVectorTypes())
}

// newInserter returns a River client that only inserts jobs; it runs no workers.
func newInserter(db *pgxpool.Pool) (*jobs.RiverJobInserter, error) {
	client, err := river.NewClient[pgx.Tx](riverpgxv5.New(db), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return jobs.NewRiverJobInserter(client, nil), nil
}
