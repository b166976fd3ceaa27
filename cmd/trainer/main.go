package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"casegate/internal/classifier"
	"casegate/internal/classifier/artifact"
	"casegate/internal/classifier/trainer"
	"casegate/internal/intake/models"
	"casegate/internal/intake/store"
	"casegate/internal/platform/config"
	"casegate/internal/platform/logger"
	"casegate/internal/platform/postgres"
	"casegate/internal/platform/redis"
)

type options struct {
	modelStore    string
	modelPath     string
	redisKey      string
	threshold     string
	contamination float64
	neighbors     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, cfgErr := config.FromEnv()
	opts := options{
		modelStore:    cfg.Model.Store,
		modelPath:     cfg.Model.Path,
		redisKey:      cfg.Model.RedisKey,
		threshold:     trainer.DefaultThreshold.String(),
		contamination: classifier.DefaultConfig().Contamination,
		neighbors:     classifier.DefaultConfig().Neighbors,
	}

	cmd := &cobra.Command{
		Use:   "trainer",
		Short: "Fit the intake anomaly classifier from committed records",
		Long: `Reads every committed record from DATABASE_URL, labels records at or below
the threshold as inliers and records at or above it as outliers, fits the
Local Outlier Factor detector and atomically replaces the stored model.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return runTrain(cmd, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.modelStore, "model-store", opts.modelStore, "where to write the model: file or redis")
	flags.StringVar(&opts.modelPath, "model-path", opts.modelPath, "model file path for the file store")
	flags.StringVar(&opts.redisKey, "redis-key", opts.redisKey, "model key for the redis store")
	flags.StringVar(&opts.threshold, "threshold", opts.threshold, "amount separating inlier and outlier labels")
	flags.Float64Var(&opts.contamination, "contamination", opts.contamination, "expected share of outliers in the corpus")
	flags.IntVar(&opts.neighbors, "neighbors", opts.neighbors, "neighbourhood size")
	return cmd
}

func runTrain(cmd *cobra.Command, cfg config.Server, opts options) error {
	ctx := cmd.Context()
	log := logger.New(cfg.Environment, cfg.LogLevel)

	threshold, err := models.ParseAmount(opts.threshold)
	if err != nil {
		return fmt.Errorf("invalid --threshold: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var modelStore artifact.Store
	switch opts.modelStore {
	case config.ModelStoreFile:
		modelStore = artifact.NewFileStore(opts.modelPath)
	case config.ModelStoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("REDIS_URL is required for --model-store=redis")
		}
		defer client.Close()
		modelStore = artifact.NewRedisStore(client.Client, artifact.WithKey(opts.redisKey))
	default:
		return fmt.Errorf("unknown --model-store %q", opts.modelStore)
	}

	report, err := trainer.New(store.NewPostgres(db), modelStore, trainer.WithLogger(log)).Train(ctx, trainer.Config{
		Threshold: threshold,
		Classifier: classifier.Config{
			Neighbors:     opts.neighbors,
			Contamination: opts.contamination,
		},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records:          %d\n", report.CorpusRecords)
	fmt.Fprintf(out, "inlier rows:      %d\n", report.InlierRows)
	fmt.Fprintf(out, "outlier rows:     %d\n", report.OutlierRows)
	fmt.Fprintf(out, "neighbors:        %d\n", report.Neighbors)
	fmt.Fprintf(out, "offset:           %.6f\n", report.Offset)
	fmt.Fprintf(out, "label agreement:  %.4f\n", report.LabelAgreement)
	fmt.Fprintf(out, "trained at:       %s\n", report.TrainedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
