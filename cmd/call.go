package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/screening"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Place a screening call to a candidate",
	Long: "Place an outbound screening call. The running call server picks the call up " +
		"through its incoming-call webhook.",
	Run: func(cmd *cobra.Command, _ []string) {
		call(cmd)
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().Int64("uid", 0, "candidate UID to call")
	callCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before dialing")
	callCmd.MarkFlagRequired("uid")
}

func call(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, config := setup()
	defer logger.Sync()

	uid, _ := cmd.Flags().GetInt64("uid")
	if uid <= 0 {
		logger.Fatal("candidate uid must be positive", zap.Int64("uid", uid))
	}

	if config.Server.PublicHost == "" {
		logger.Fatal("public host is required",
			zap.String("hint", "the call server must be reachable; set server.public-host or CALL_SERVER_HOST"),
		)
	}

	store, err := newStore(ctx, config.Store.Mongo, logger)
	if err != nil {
		logger.Fatal("connecting candidate store", zap.Error(err))
	}
	defer store.Close(context.Background())

	record, err := store.Get(ctx, uid)
	if err != nil {
		logger.Fatal("getting candidate", zap.Int64("uid", uid), zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Call %s at %s?", record.DisplayName(), record.Phone),
			Items: []string{PromptYes, PromptNo},
		}

		_, answer, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if answer != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	dialer, err := newDialer(config.Twilio, config.Server.PublicHost, logger)
	if err != nil {
		logger.Fatal("creating twilio dialer", zap.Error(err))
	}

	// The webhook URL carries the UID, so no in-process binding is needed here.
	caller := screening.NewCaller(store, dialer, nil, nil, logger)

	sid, err := caller.Call(ctx, uid)
	if err != nil {
		logger.Fatal("placing call", zap.Error(err))
	}

	logger.Info("call initiated", zap.String("call_sid", sid), zap.String("candidate", record.DisplayName()))
}
