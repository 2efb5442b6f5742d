package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/offlinedb/cmd/kv"
	"github.com/ValentinKolb/offlinedb/cmd/perf"
	"github.com/ValentinKolb/offlinedb/cmd/util"
	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "offlinedb",
		Short: "embedded asynchronous key-value store",
		Long: fmt.Sprintf(`offlineDB (v%s)

A key-value store on top of an embedded transactional database
(bbolt, Badger, SQLite or memory). The database is opened in the
background with retries; every operation waits until it is ready.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of offlineDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("offlineDB v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// run setupLogging before the hooks of the subcommands
	cobra.EnableTraverseRunHooks = true

	// Add Flags
	util.SetupStoreFlags(RootCmd)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// setupLogging runs before every command and routes all loggers through zap
func setupLogging(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	config := util.GetConfig()
	if err := common.InitLoggers(*config); err != nil {
		return err
	}
	log.Debugf("configuration:%s", config.String())
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
