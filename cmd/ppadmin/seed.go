package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
)

var seedCmd = &cobra.Command{
	Use:   "seed-taxonomy",
	Short: "Insert the default technology vocabulary",
	Long: `Adds every entry of the built-in approved vocabulary that is not already
known by key or alias. Existing technologies and their states are left alone.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewTechnologiesRepository(db)

	techs, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list technologies: %w", err)
	}

	tax := taxonomy.New(repo, slog.Default())
	tax.Load(techs)

	added, err := taxonomy.Seed(ctx, tax, taxonomy.DefaultVocabulary())
	if err != nil {
		return err
	}

	cmd.Printf("Added %d technolog(ies); vocabulary now has %d.\n", added, tax.Len())

	return nil
}
