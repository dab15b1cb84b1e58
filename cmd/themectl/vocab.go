package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab [file]",
	Short: "Print the filtered vocabulary of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runVocab,
}

func init() {
	addParamFlags(vocabCmd)
	rootCmd.AddCommand(vocabCmd)
}

func runVocab(cmd *cobra.Command, args []string) error {
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
	vocab, err := p.Vocabulary(ctx, reviews)
	if err != nil {
		return fmt.Errorf("vocabulary failed: %w", err)
	}

	resp := api.VocabularyResponse{Size: vocab.Len(), Terms: make([]api.VocabularyTerm, vocab.Len())}
	for i := range resp.Terms {
		resp.Terms[i] = api.VocabularyTerm{Term: vocab.Term(i), DocFreq: vocab.DocFreq(i), IDF: vocab.IDF(i)}
	}
	if outputJSON {
		return printJSON(cmd, resp)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tDF\tIDF")
	for _, t := range resp.Terms {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\n", t.Term, t.DocFreq, t.IDF)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	cmd.Printf("\n%d terms\n", resp.Size)
	return nil
}
