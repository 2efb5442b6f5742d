package kv

import (
	"context"
	"io"
	"os"

	"github.com/ValentinKolb/offlinedb/cmd/util"
	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("cli")

var (
	// out receives the command output and the metrics
	out io.Writer = os.Stdout

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform key-value store operations",
	}
)

func init() {
	// Add subcommands
	KeyValueCommands.AddCommand(saveCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(truncateCmd)
	KeyValueCommands.AddCommand(infoCmd)
}

// storeFunc is the body of a kv subcommand
type storeFunc func(ctx context.Context, s store.IStore[string], config *common.Config, args []string) error

// withStore opens the store for fn and closes it again when fn returns, also
// when fn fails. The metrics are printed in both cases if requested.
func withStore(fn storeFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		config := util.GetConfig()
		var set *metrics.Set
		if config.Metrics {
			set = metrics.NewSet()
		}

		s, err := util.OpenStore(config, set)
		if err != nil {
			return err
		}
		ctx, cancel := util.CommandContext(cmd, config)

		defer func() {
			cancel()
			if closeErr := s.Close(); closeErr != nil {
				log.Errorf("failed to close store: %v", closeErr)
				err = multierr.Append(err, closeErr)
			}
			if set != nil {
				set.WritePrometheus(out)
			}
		}()

		return fn(ctx, s, config, args)
	}
}
