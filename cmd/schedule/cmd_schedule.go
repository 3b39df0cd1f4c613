package schedule

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/costwatch/costwatch/cmd/watch"
	"github.com/costwatch/costwatch/internal/utils"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Daily at 01:00 UTC, 10:00 JST.
const defaultSchedule = "0 0 1 * * ?"

var (
	cronExpression   string
	listenAddr       string
	ssmPrefix        string
	region           string
	exchangeEndpoint string
	timeout          time.Duration
	configFile       string
)

// scheduleConfig mirrors the optional YAML config file; values only apply to
// flags that were not set explicitly.
type scheduleConfig struct {
	Schedule         string `yaml:"schedule"`
	Listen           string `yaml:"listen"`
	SSMPrefix        string `yaml:"ssm_prefix"`
	Region           string `yaml:"region"`
	ExchangeEndpoint string `yaml:"exchange_endpoint"`
	Timeout          string `yaml:"timeout"`
}

func NewScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:           "schedule",
		Short:         "Run the cost report on an embedded daily schedule",
		Long:          "Run the watch pipeline on a cron schedule from a long-lived process, for environments without an external timer. Optionally serves a status endpoint with the outcome of the last run.",
		SilenceErrors: true,
		PreRunE:       preRunSchedule,
		RunE:          runSchedule,
	}

	optionalFlags := pflag.NewFlagSet("optional", pflag.ExitOnError)
	optionalFlags.SortFlags = false
	optionalFlags.StringVar(&cronExpression, "cron", defaultSchedule, "Cron expression (with seconds) for the report schedule")
	optionalFlags.StringVar(&listenAddr, "listen", "", "Address for the status endpoint, e.g. ':8080' (disabled when empty)")
	optionalFlags.StringVar(&ssmPrefix, "ssm-prefix", "/CostWatch", "The parameter store namespace holding the webhook url and target account credentials")
	optionalFlags.StringVar(&region, "region", "", "The AWS region for parameter store and identity lookups")
	optionalFlags.StringVar(&exchangeEndpoint, "exchange-endpoint", "", "Base URL of the exchange rate API")
	optionalFlags.DurationVar(&timeout, "timeout", 300*time.Second, "Deadline for one scheduled run")
	optionalFlags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	scheduleCmd.Flags().AddFlagSet(optionalFlags)

	scheduleCmd.SetUsageFunc(func(c *cobra.Command) error {
		fmt.Printf("%s\n\n", c.Short)

		usage := optionalFlags.FlagUsages()
		if usage != "" {
			fmt.Printf("Optional Flags:\n%s\n", usage)
		}

		fmt.Println("All flags can be provided via environment variables (uppercase, with underscores).")

		return nil
	})

	return scheduleCmd
}

func preRunSchedule(cmd *cobra.Command, args []string) error {
	if err := utils.BindEnvToFlags(cmd); err != nil {
		return err
	}

	if configFile != "" {
		if err := applyConfigFile(cmd, configFile); err != nil {
			return err
		}
	}

	return nil
}

func applyConfigFile(cmd *cobra.Command, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	var config scheduleConfig
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	setIfUnchanged := func(flag, value string) {
		if value != "" && !cmd.Flags().Changed(flag) {
			cmd.Flags().Set(flag, value)
		}
	}

	setIfUnchanged("cron", config.Schedule)
	setIfUnchanged("listen", config.Listen)
	setIfUnchanged("ssm-prefix", config.SSMPrefix)
	setIfUnchanged("region", config.Region)
	setIfUnchanged("exchange-endpoint", config.ExchangeEndpoint)
	setIfUnchanged("timeout", config.Timeout)

	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	factory := func() (Runner, error) {
		return watch.NewDefaultWatcher(watch.WatcherOpts{
			SSMPrefix:        ssmPrefix,
			Region:           region,
			ExchangeEndpoint: exchangeEndpoint,
		})
	}

	scheduler := NewScheduler(factory, SchedulerOpts{
		Schedule: cronExpression,
		Timeout:  timeout,
		Listen:   listenAddr,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("❌ scheduler failed: %v", err)
	}

	return nil
}
