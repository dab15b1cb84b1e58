package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
)

var sweepKs []int

var sweepCmd = &cobra.Command{
	Use:   "sweep [file]",
	Short: "Cluster a file once per k",
	Long: `Runs the pipeline concurrently for several cluster counts and prints
inertia, cluster sizes and labels per k to help choose one.`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	addParamFlags(sweepCmd)
	sweepCmd.Flags().IntSliceVar(&sweepKs, "ks", []int{2, 3, 4, 5, 6, 7, 8}, "cluster counts to try")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := api.ValidateKs(sweepKs, cfg.Pipeline.MaxSweepSize); err != nil {
		return err
	}
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
	results, err := p.Sweep(ctx, reviews, sweepKs)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	points := make([]api.SweepPoint, len(results))
	for i, res := range results {
		sizes := make([]int, len(res.Clusters))
		for c, cl := range res.Clusters {
			sizes[c] = cl.Size
		}
		points[i] = api.SweepPoint{K: res.Params.K, RunID: res.RunID, Inertia: res.Inertia, Sizes: sizes, Labels: res.Labels()}
	}
	if outputJSON {
		return printJSON(cmd, points)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "K\tINERTIA\tSIZES\tLABELS")
	for _, pt := range points {
		sizes := make([]string, len(pt.Sizes))
		for i, s := range pt.Sizes {
			sizes[i] = fmt.Sprint(s)
		}
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", pt.K, pt.Inertia, strings.Join(sizes, ","), strings.Join(pt.Labels, " | "))
	}
	return tw.Flush()
}
