package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/transcript"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a saved call transcript and store the result",
	Long: "Run the post-call evaluation over a transcript file written by the call server. " +
		"Use it for candidates left in progress after a failed evaluation.",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().Int64("uid", 0, "candidate UID to evaluate")
	evaluateCmd.Flags().StringP("transcript", "t", "", "path to the transcript file")
	evaluateCmd.MarkFlagRequired("uid")
	evaluateCmd.MarkFlagRequired("transcript")
}

func evaluate(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, config := setup()
	defer logger.Sync()

	uid, _ := cmd.Flags().GetInt64("uid")
	path, _ := cmd.Flags().GetString("transcript")

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading transcript", zap.String("path", path), zap.Error(err))
	}

	turns, err := transcript.Parse(string(data))
	if err != nil {
		logger.Fatal("parsing transcript", zap.String("path", path), zap.Error(err))
	}
	if len(turns) == 0 {
		logger.Info("exiting", zap.String("reason", "transcript is empty"))
		return
	}

	store, err := newStore(ctx, config.Store.Mongo, logger)
	if err != nil {
		logger.Fatal("connecting candidate store", zap.Error(err))
	}
	defer store.Close(context.Background())

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating response generator", zap.Error(err))
	}

	result, err := newEvaluator(generator, store, nil, config.AI, logger).Evaluate(ctx, uid, turns)
	if err != nil {
		logger.Fatal("evaluating transcript", zap.Int64("uid", uid), zap.Error(err))
	}

	logger.Info("evaluation done",
		zap.Int64("uid", uid),
		zap.Float64("score", result.Score),
		zap.Bool("fallback", result.Fallback),
		zap.String("notes", result.Justification),
	)
}
