package main

import (
	"context"

	"github.com/spf13/cobra"

	"smart-notebook-go/internal/repository"
	"smart-notebook-go/internal/service"
	"smart-notebook-go/pkg/database"
	"smart-notebook-go/pkg/log"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete vectors, embeddings and chunks whose document no longer exists",
	Long: `Reconciles storage after an interrupted delete. Document deletion removes
vectors first and rows last, so a crash in between can only leave orphaned
vectors and chunk rows behind; sweep removes them.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg := bootstrap()
	defer log.Sync()

	if err := openDatabase(cfg); err != nil {
		return err
	}
	store, err := openVectorStore(cfg)
	if err != nil {
		return err
	}

	admin := service.NewAdminService(
		repository.NewChunkRepository(database.DB),
		repository.NewEmbeddingRepository(database.DB),
		store,
	)
	report, err := admin.Sweep(context.Background())
	if err != nil {
		return err
	}
	cmd.Printf("Removed leftovers of %d documents\n", report.Count)
	for _, id := range report.OrphanDocumentIDs {
		cmd.Printf("  %s\n", id)
	}
	return nil
}
