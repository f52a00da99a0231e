package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bananya-ml/arxiv-feed/internal/rag"
)

var (
	queryPaper string
	queryTopK  int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from the indexed papers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryPaper, "paper", "p", "", "limit the search to one paper link")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", rag.DefaultTopK, "number of chunks to retrieve (1-10)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the response as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, log, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	resp, err := a.RAG.Answer(ctx, rag.Request{
		Query:    strings.Join(args, " "),
		PaperURL: queryPaper,
		TopK:     queryTopK,
	})
	if err != nil {
		return err
	}

	if queryJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(resp.LLMResponse)
	if len(resp.SimilarChunks) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, m := range resp.SimilarChunks {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, m.PaperURL, m.Distance)
	}
	return nil
}
