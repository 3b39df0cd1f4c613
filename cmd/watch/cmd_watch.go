package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/costwatch/costwatch/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	ssmPrefix        string
	region           string
	exchangeEndpoint string
	timeout          time.Duration
)

func NewWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:           "watch",
		Short:         "Run one cost report and post it to Slack",
		Long:          "Query current-month AWS costs for every configured target account, convert them to JPY and post one summary per account to the configured Slack webhook. Intended to be invoked by an external daily timer.",
		SilenceErrors: true,
		PreRunE:       preRunWatch,
		RunE:          runWatch,
	}

	optionalFlags := pflag.NewFlagSet("optional", pflag.ExitOnError)
	optionalFlags.SortFlags = false
	optionalFlags.StringVar(&ssmPrefix, "ssm-prefix", "/CostWatch", "The parameter store namespace holding the webhook url and target account credentials")
	optionalFlags.StringVar(&region, "region", "", "The AWS region for parameter store and identity lookups (defaults to the SDK's resolved region)")
	optionalFlags.StringVar(&exchangeEndpoint, "exchange-endpoint", "", "Base URL of the exchange rate API")
	optionalFlags.DurationVar(&timeout, "timeout", 300*time.Second, "Overall deadline for one invocation")
	watchCmd.Flags().AddFlagSet(optionalFlags)

	watchCmd.SetUsageFunc(func(c *cobra.Command) error {
		fmt.Printf("%s\n\n", c.Short)

		usage := optionalFlags.FlagUsages()
		if usage != "" {
			fmt.Printf("Optional Flags:\n%s\n", usage)
		}

		fmt.Println("All flags can be provided via environment variables (uppercase, with underscores).")

		return nil
	})

	return watchCmd
}

func preRunWatch(cmd *cobra.Command, args []string) error {
	if err := utils.BindEnvToFlags(cmd); err != nil {
		return err
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	watcher, err := NewDefaultWatcher(WatcherOpts{
		SSMPrefix:        ssmPrefix,
		Region:           region,
		ExchangeEndpoint: exchangeEndpoint,
	})
	if err != nil {
		return fmt.Errorf("❌ failed to initialise cost watch: %v", err)
	}

	if err := watcher.Run(ctx); err != nil {
		return fmt.Errorf("❌ cost watch failed: %v", err)
	}

	return nil
}
