package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/aggregator"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute-capabilities",
	Short: "Rebuild every capability rollup from stored records",
	Long: `Loads the vocabulary and all active records, rebuilds the unified capability
rollups, saves the ones whose facts changed, and enqueues narrative jobs for them.
Running API processes pick up the new rollups on their next restart.`,
	Args: cobra.NoArgs,
	RunE: runRecompute,
}

func init() {
	rootCmd.AddCommand(recomputeCmd)
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.Default()

	techs, err := repository.NewTechnologiesRepository(db).List(ctx)
	if err != nil {
		return fmt.Errorf("list technologies: %w", err)
	}

	tax := taxonomy.New(nil, logger)
	tax.Load(techs)

	entries, err := repository.NewRecordsRepository(db).ListCatalogEntries(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	records := catalog.New()
	records.Load(entries)

	inserter, err := newInserter(db)
	if err != nil {
		return err
	}

	capabilities := service.NewCapabilitiesService(service.CapabilitiesServiceParams{
		Aggregator:   aggregator.New(tax, logger),
		Records:      records,
		Technologies: tax,
		Store:        repository.NewCapabilitiesRepository(db),
		Jobs:         inserter,
		Logger:       logger,
	})

	change, err := capabilities.Recompute(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Rebuilt rollups for %d record(s): %d updated, %d removed, %d narrative(s) needed.\n",
		records.Len(), len(change.Updated), len(change.Removed), len(change.NarrativeNeeded))

	return nil
}
