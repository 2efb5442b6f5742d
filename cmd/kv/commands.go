package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/offlinedb/cmd/util"
	"github.com/ValentinKolb/offlinedb/lib/common"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/spf13/cobra"
)

var (
	saveCmd = &cobra.Command{
		Use:   "save [key] [value]",
		Short: "Saves the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, args []string) error {
			key := args[0]
			value := args[1]
			if err := s.Save(ctx, key, value); err != nil {
				return err
			}
			fmt.Fprintln(out, "saved successfully")
			return nil
		}),
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, args []string) error {
			key := args[0]
			value, found, err := s.Get(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "key=%s, found=%v, value=%s\n", key, found, value)
			return nil
		}),
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, args []string) error {
			if err := s.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(out, "deleted successfully")
			return nil
		}),
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all keys",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, _ []string) error {
			keys, err := s.List(ctx)
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				fmt.Fprintln(out, strings.Join(keys, "\n"))
			}
			fmt.Fprintf(out, "%d key(s)\n", len(keys))
			return nil
		}),
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes all keys one by one",
		Long: util.WrapString(`Deletes all keys one by one. If a delete fails the command stops and
the keys deleted so far stay deleted. Use truncate to delete all keys at once.`),
		Args: cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, _ []string) error {
			if err := s.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "cleared successfully")
			return nil
		}),
	}
	truncateCmd = &cobra.Command{
		Use:   "truncate",
		Short: "Deletes all keys at once",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s store.IStore[string], _ *common.Config, _ []string) error {
			if err := s.Truncate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "truncated successfully")
			return nil
		}),
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s store.IStore[string], config *common.Config, _ []string) error {
			info, err := s.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "name=%s, engine=%s, version=%d, collection=%s, keys=%d, codec=%s\n",
				info.Name, info.Engine, info.Version, info.Collection, info.Keys, config.Codec)
			return nil
		}),
	}
)
