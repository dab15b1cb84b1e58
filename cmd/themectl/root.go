package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/language"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/reviewio"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
)

var (
	configPath string
	logLevel   string
	outputJSON bool

	strategy     string
	clusterCount int
	minDF        int
	maxDF        float64
	topN         int
	seed         uint64

	textColumn string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "themectl",
	Short: "Cluster product reviews into labelled themes",
	Long: `themectl groups free-text reviews into themes using TF-IDF features
and k-means or LDA clustering, then labels each theme with its top keywords.
Input is a CSV file (columns from the config input section) or a JSON file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults built in)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().StringVar(&textColumn, "text-column", "", "CSV column holding the review text")
}

// addParamFlags registers the run parameter flags on commands that run the
// pipeline. Unset flags keep the configured defaults.
func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "clustering strategy: kmeans|centroid or lda|topic")
	cmd.Flags().IntVarP(&clusterCount, "k", "k", 0, "number of clusters (2-10)")
	cmd.Flags().IntVar(&minDF, "min-df", 0, "minimum document frequency of a term")
	cmd.Flags().Float64Var(&maxDF, "max-df", 0, "maximum document frequency fraction of a term")
	cmd.Flags().IntVar(&topN, "top-n", 0, "keywords per cluster")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
}

// params merges explicitly set flags over the configured defaults.
func params(cmd *cobra.Command) pipeline.Params {
	p := pipeline.ParamsFromConfig(cfg.Pipeline)
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		p.Strategy = strategy
	}
	if flags.Changed("k") {
		p.K = clusterCount
	}
	if flags.Changed("min-df") {
		p.MinDocumentFrequency = minDF
	}
	if flags.Changed("max-df") {
		p.MaxDocumentFrequencyFraction = maxDF
	}
	if flags.Changed("top-n") {
		p.TopN = topN
	}
	if flags.Changed("seed") {
		p.Seed = seed
	}
	return p
}

func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	res, err := language.LoadFiles(cfg.Language.StopwordsPath, cfg.Language.LemmasPath)
	if err != nil {
		return nil, err
	}
	return pipeline.New(res, params(cmd))
}

func loadReviews(path string) ([]pipeline.Review, error) {
	cols := reviewio.ColumnsFromConfig(cfg.Input)
	if textColumn != "" {
		cols.Text = textColumn
	}
	return reviewio.LoadFile(path, cols)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
