package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/sentiment"
)

var sentimentFilter string

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Cluster the reviews in a file",
	Long: `Clusters the reviews in a CSV or JSON file and prints each theme with
its size, label, keywords and sentiment breakdown. With --sentiment, the
reviews of that category are listed with their cluster instead of the
theme examples.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	addParamFlags(runCmd)
	runCmd.Flags().StringVar(&sentimentFilter, "sentiment", "", "list the reviews of one sentiment category")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	reviews, err := loadReviews(args[0])
	if err != nil {
		return err
	}
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := p.Run(ctx, reviews)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, result)
	}
	outputRunTable(cmd, result)
	return nil
}

func outputRunTable(cmd *cobra.Command, result *pipeline.Result) {
	cmd.Printf("Run %s: %s, k=%d, %d documents, %d terms\n\n",
		result.RunID, result.Params.Strategy, result.Params.K, len(result.Documents), len(result.Vocabulary))

	table := sentiment.CrossTab(result.Summaries, result.Categories)
	summaries := make(map[int]string, len(result.Summaries))
	for i, s := range result.Summaries {
		parts := make([]string, 0, len(result.Categories))
		for j, c := range result.Categories {
			if n := table[i][j]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", c, n))
			}
		}
		line := strings.Join(parts, " ")
		if s.MeanScore != nil {
			line += fmt.Sprintf(" mean=%.2f", *s.MeanScore)
		}
		summaries[s.ClusterID] = strings.TrimSpace(line)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tSIZE\tLABEL\tSENTIMENT")
	for _, c := range result.Clusters {
		label := c.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", c.ID, c.Size, label, summaries[c.ID])
	}
	tw.Flush()

	if sentimentFilter != "" {
		outputSentimentReviews(cmd, result, sentimentFilter)
		return
	}
	for _, c := range result.Clusters {
		if len(c.Examples) == 0 {
			continue
		}
		cmd.Printf("\n[%d] %s\n", c.ID, c.Label)
		for _, ex := range c.Examples {
			cmd.Printf("      %s\n", ex)
		}
	}
}

func outputSentimentReviews(cmd *cobra.Command, result *pipeline.Result, category string) {
	matches := sentiment.Filter(result.Records(), category)
	cmd.Printf("\n%d reviews with sentiment %q\n", len(matches), category)
	for _, i := range matches {
		doc := result.Documents[i]
		cmd.Printf("  [%d] %s\n", doc.ClusterID, doc.Text)
	}
}
