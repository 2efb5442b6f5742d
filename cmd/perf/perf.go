package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/offlinedb/cmd/util"
	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("cli")

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the storage engines",
		Long:    "",
		Args:    cobra.NoArgs,
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOps              = 1000
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. save,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "ops"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per goroutine and benchmark"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How large the value for the save-large test should be (in KB)"))
	key = "keys"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// benchmark is one named test. op is called with the goroutine number and a counter.
type benchmark struct {
	name    string
	prepare func(ctx context.Context, s store.IStore[string], keys []string) error
	op      func(ctx context.Context, s store.IStore[string], key string, i int) error
}

func benchmarks() []benchmark {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	fill := func(ctx context.Context, s store.IStore[string], keys []string) error {
		for _, k := range keys {
			if err := s.Save(ctx, k, "test"); err != nil {
				return err
			}
		}
		return nil
	}

	return []benchmark{
		{
			name: "save",
			op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
				return s.Save(ctx, key, "test")
			},
		},
		{
			name: "save-large",
			op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
				return s.Save(ctx, key, largeValue)
			},
		},
		{
			name:    "get",
			prepare: fill,
			op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
				_, _, err := s.Get(ctx, key)
				return err
			},
		},
		{
			name: "get-missing",
			op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
				_, _, err := s.Get(ctx, key)
				return err
			},
		},
		{
			name:    "delete",
			prepare: fill,
			op: func(ctx context.Context, s store.IStore[string], key string, _ int) error {
				return s.Delete(ctx, key)
			},
		},
		{
			name:    "list",
			prepare: fill,
			op: func(ctx context.Context, s store.IStore[string], _ string, _ int) error {
				_, err := s.List(ctx)
				return err
			},
		},
		{
			name:    "mixed",
			prepare: fill,
			op: func(ctx context.Context, s store.IStore[string], key string, i int) error {
				switch i % 3 {
				case 0:
					return s.Save(ctx, key, "test")
				case 1:
					_, _, err := s.Get(ctx, key)
					return err
				default:
					return s.Delete(ctx, key)
				}
			},
		},
	}
}

// result is the outcome of one benchmark
type result struct {
	name    string
	skipped bool
	errors  int64
	elapsed time.Duration
	timer   gometrics.Timer
}

func run(cmd *cobra.Command, _ []string) error {
	config := util.GetConfig()
	if !timeoutSet(cmd) {
		config.Timeout = 0
	}

	fmt.Println("Performance testing tool for offlineDB")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Ops per thread: %d\n", perfNumThreads, perfOps)
	fmt.Println()

	s, err := util.OpenStore(config, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Errorf("failed to close store: %v", err)
		}
	}()

	// --timeout bounds the whole run
	ctx, cancel := util.CommandContext(cmd, config)
	defer cancel()

	fmt.Println("starting tests...")
	var results []result
	for _, b := range benchmarks() {
		if shouldSkip(b.name) {
			results = append(results, result{name: b.name, skipped: true})
			printResult(results[len(results)-1])
			continue
		}
		r, err := runBenchmark(ctx, s, b)
		if err != nil {
			return fmt.Errorf("benchmark %s failed: %w", b.name, err)
		}
		results = append(results, r)
		printResult(r)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// runBenchmark runs b on perfNumThreads goroutines. Keys are prefixed with a fresh uuid
// so that runs against the same database do not interfere, they are deleted afterwards.
// timeoutSet reports whether the user asked for a timeout. The default of the
// global flag is meant for single kv commands and does not apply to perf.
func timeoutSet(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("timeout") {
		return true
	}
	_, ok := os.LookupEnv("OFFLINEDB_TIMEOUT")
	return ok
}

func runBenchmark(ctx context.Context, s store.IStore[string], b benchmark) (r result, err error) {
	prefix := uuid.NewString()
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", prefix, b.name, i)
	}
	defer func() {
		for _, k := range keys {
			err = multierr.Append(err, s.Delete(ctx, k))
		}
	}()

	if b.prepare != nil {
		if err := b.prepare(ctx, s, keys); err != nil {
			return r, err
		}
	}

	r = result{name: b.name, timer: gometrics.NewTimer()}
	errCounter := gometrics.NewCounter()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for t := 0; t < perfNumThreads; t++ {
		t := t
		g.Go(func() error {
			for i := 0; i < perfOps; i++ {
				key := keys[(t*perfOps+i)%perfKeySpread]
				opStart := time.Now()
				if err := b.op(gctx, s, key, i); err != nil {
					if store.IsNotReady(err) || store.IsClosed(err) || gctx.Err() != nil {
						return err
					}
					errCounter.Inc(1)
					log.Debugf("(%s) - error: %v", b.name, err)
				}
				r.timer.UpdateSince(opStart)
			}
			return nil
		})
	}
	err = g.Wait()
	r.elapsed = time.Since(start)
	r.errors = errCounter.Count()
	return r, err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func opsPerSec(r result) float64 {
	if r.skipped || r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(r result) {
	if r.skipped {
		fmt.Printf("%-15sskipped\n", r.name)
		return
	}
	snap := r.timer.Snapshot()
	fmt.Printf("%-15smean %-12s p50 %-12s p99 %-12s %10.0f ops/sec  %d errors\n",
		r.name,
		time.Duration(snap.Mean()),
		time.Duration(snap.Percentile(0.5)),
		time.Duration(snap.Percentile(0.99)),
		opsPerSec(r),
		r.errors,
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result, config *common.Config) (err error) {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	writer := csv.NewWriter(file)

	header := []string{
		"Test", "Skipped", "Ops", "Errors", "MeanNs", "P50Ns", "P99Ns", "OpsPerSec",
		"Engine", "Codec", "Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		row := []string{r.name, strconv.FormatBool(r.skipped), "0", "0", "0", "0", "0", "0"}
		if !r.skipped {
			snap := r.timer.Snapshot()
			row = []string{
				r.name,
				"false",
				strconv.FormatInt(snap.Count(), 10),
				strconv.FormatInt(r.errors, 10),
				fmt.Sprintf("%.0f", snap.Mean()),
				fmt.Sprintf("%.0f", snap.Percentile(0.5)),
				fmt.Sprintf("%.0f", snap.Percentile(0.99)),
				fmt.Sprintf("%.0f", opsPerSec(r)),
			}
		}
		row = append(row,
			config.Engine,
			config.Codec,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
