package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchRedisURL     string
	watchInstanceName string
	watchOutputFormat string
	watchFilters      filterFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream agreements from running ranks",
	Long: `Stream every agreement recorded by the ranks of a distributed run.

Output Formats:
  default - One status line per agreement
  json    - Line-delimited JSON for programmatic processing

Examples:
  gridtrust watch --redis-url redis://localhost:6379 --instance gridtrust
  gridtrust watch --output=json > agreements.jsonl

  # Only failed deliveries from solar producers
  gridtrust watch --status Failed --producer 'Solar*'`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisURL, "redis-url", "redis://localhost:6379", "Redis URL the ranks synchronize through")
	watchCmd.Flags().StringVarP(&watchInstanceName, "instance", "n", "gridtrust", "Instance name of the run")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchFilters.register(watchCmd.Flags())
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	criteria, err := watchFilters.criteria()
	if err != nil {
		return printer.Error("invalid filter", err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, watchRedisURL, watchInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	return watch.StreamAgreements(ctx, client, criteria, format, os.Stdout)
}
