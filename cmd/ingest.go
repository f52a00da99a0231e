package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bananya-ml/arxiv-feed/internal/dispatcher"
)

var (
	ingestMax      int
	ingestCategory string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Process the most recent papers of a category once",
	Long: `Fetches the most recent papers of a category, processes the ones that are not
cached yet and prints the document records as JSON. With the local queue the
command waits until the papers are indexed.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestMax, "max", "n", 0, "number of papers, 1-10 (default from config)")
	ingestCmd.Flags().StringVarP(&ingestCategory, "category", "c", "", "arXiv category (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, log, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	maxResults := ingestMax
	if !cmd.Flags().Changed("max") {
		maxResults = a.Config.Ingestion.DefaultMax
	}

	// Remote queues are drained by the serve command.
	_, local := a.Queue.(*dispatcher.LocalQueue)
	workers := make(chan error, 1)
	if local {
		go func() { workers <- a.RunWorkers(ctx) }()
	}

	records, ingestErr := a.Pipeline.Ingest(ctx, maxResults, ingestCategory)
	if local {
		a.Queue.Close()
		if err := <-workers; err != nil {
			log.Error("indexing workers failed", "error", err)
		}
	}
	if ingestErr != nil {
		return ingestErr
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
