package main

import (
	"github.com/spf13/cobra"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
)

var backfillDryRun bool

var backfillCmd = &cobra.Command{
	Use:   "backfill-embeddings",
	Short: "Enqueue re-embed jobs for records with pending chunks",
	Long: `Lists every record whose current chunks still lack a vector and enqueues one
chunk_reembed job per record. Records with an unfinished job are skipped, so the
command can be re-run safely.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "only report how many records are pending")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	chunks := repository.NewChunksRepository(db)

	if backfillDryRun {
		ids, err := chunks.ListPendingRecordIDs(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("%d record(s) have pending chunks.\n", len(ids))

		return nil
	}

	inserter, err := newInserter(db)
	if err != nil {
		return err
	}

	stats, err := jobs.Backfill(ctx, chunks, inserter, nil)
	if err != nil {
		return err
	}

	cmd.Printf("Enqueued %d re-embed job(s) for %d pending record(s).\n", stats.JobsEnqueued, stats.PendingRecords)

	return nil
}
