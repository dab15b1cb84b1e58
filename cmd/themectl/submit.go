package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/resilience"
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Queue a file for the theme worker",
	Long: `Publishes the reviews in a file as one batch on the review-batches
topic. Parameter flags that are set travel with the batch; the worker
applies its own defaults otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	addParamFlags(submitCmd)
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	reviews, err := loadReviews(args[0])
	if err != nil {
		return err
	}
	if err := api.ValidateReviews(reviews); err != nil {
		return err
	}

	batch := events.NewReviewBatch(reviews, nil)
	if anyParamFlag(cmd) {
		p, err := params(cmd).Validate()
		if err != nil {
			return err
		}
		batch.Params = &p
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReviewBatches)
	defer producer.Close()
	publisher := events.NewPublisher(producer, resilience.RetryConfig{MaxAttempts: 3}, nil)
	if err := publisher.PublishBatch(ctx, batch); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, map[string]any{"batch_id": batch.BatchID, "reviews": len(reviews)})
	}
	cmd.Printf("Submitted batch %s (%d reviews) to %s\n", batch.BatchID, len(reviews), cfg.Kafka.Topics.ReviewBatches)
	return nil
}

func anyParamFlag(cmd *cobra.Command) bool {
	for _, name := range []string{"strategy", "k", "min-df", "max-df", "top-n", "seed"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}
