package util

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/codec"
	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/badger"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/bolt"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/memory"
	"github.com/ValentinKolb/offlinedb/lib/engine/engines/sqlite"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/ValentinKolb/offlinedb/lib/store/kvstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags needed to open a store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	defaults := kvstore.DefaultOptions()

	key := "engine"
	cmd.PersistentFlags().String(key, string(engine.ImplBolt), WrapString("Storage engine (bolt, badger, sqlite, memory). The memory engine forgets everything when the command exits"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "./data", WrapString("Directory the database files are stored in"))

	key = "db"
	cmd.PersistentFlags().String(key, "offlinedb", WrapString("Name of the database"))

	key = "codec"
	cmd.PersistentFlags().String(key, codec.NameJSON, WrapString(fmt.Sprintf("Codec for stored values (%s)", strings.Join(codec.Names, ", "))))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("Timeout of a command in seconds"))

	key = "open-attempts"
	cmd.PersistentFlags().Int(key, defaults.OpenAttempts, WrapString("How many times opening the database is attempted"))

	key = "open-retry-delay"
	cmd.PersistentFlags().Duration(key, defaults.OpenRetryDelay, WrapString("Pause between two open attempts"))

	key = "ready-poll-attempts"
	cmd.PersistentFlags().Int(key, defaults.ReadyPollAttempts, WrapString("How often an operation checks whether the database is open before it fails"))

	key = "ready-poll-interval"
	cmd.PersistentFlags().Duration(key, defaults.ReadyPollInterval, WrapString("Pause between two readiness checks"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level (debug, info, warn, error)"))

	key = "log-format"
	cmd.PersistentFlags().String(key, common.LogFormatConsole, WrapString("Log format (console, json)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print metrics in Prometheus text format after the command"))
}

// InitConfig loads .env files and makes all flags settable through OFFLINEDB_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("offlinedb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration from viper
func GetConfig() *common.Config {
	return &common.Config{
		Engine:            viper.GetString("engine"),
		DataDir:           viper.GetString("data-dir"),
		DB:                viper.GetString("db"),
		Codec:             viper.GetString("codec"),
		Timeout:           time.Duration(viper.GetInt("timeout")) * time.Second,
		OpenAttempts:      viper.GetInt("open-attempts"),
		OpenRetryDelay:    viper.GetDuration("open-retry-delay"),
		ReadyPollAttempts: viper.GetInt("ready-poll-attempts"),
		ReadyPollInterval: viper.GetDuration("ready-poll-interval"),
		LogLevel:          viper.GetString("log-level"),
		LogFormat:         viper.GetString("log-format"),
		Metrics:           viper.GetBool("metrics"),
	}
}

// GetEngine creates the engine selected in the config
func GetEngine(config *common.Config) (engine.IEngine, error) {
	switch engine.Implementation(config.Engine) {
	case engine.ImplBolt:
		return bolt.NewEngine(config.DataDir, nil), nil
	case engine.ImplBadger:
		return badger.NewEngine(filepath.Join(config.DataDir, "badger"), nil), nil
	case engine.ImplSQLite:
		return sqlite.NewEngine(config.DataDir, nil), nil
	case engine.ImplMemory:
		return memory.NewEngine(nil), nil
	default:
		return nil, fmt.Errorf("invalid engine %s", config.Engine)
	}
}

// StoreOptions converts the config into store options. set may be nil.
func StoreOptions(config *common.Config, set *metrics.Set) []kvstore.Option {
	return []kvstore.Option{
		kvstore.WithOpenAttempts(config.OpenAttempts),
		kvstore.WithOpenRetryDelay(config.OpenRetryDelay),
		kvstore.WithReadyPollAttempts(config.ReadyPollAttempts),
		kvstore.WithReadyPollInterval(config.ReadyPollInterval),
		kvstore.WithMetrics(set),
	}
}

// OpenStore creates the store described by config. Values are strings encoded with the configured codec.
func OpenStore(config *common.Config, set *metrics.Set) (store.IStore[string], error) {
	e, err := GetEngine(config)
	if err != nil {
		return nil, err
	}
	c, err := codec.ByName[string](config.Codec)
	if err != nil {
		return nil, err
	}
	return kvstore.New[string](e, config.DB, c, StoreOptions(config, set)...), nil
}

// CommandContext returns the context of cmd bounded by the configured timeout
func CommandContext(cmd *cobra.Command, config *common.Config) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, config.Timeout)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
