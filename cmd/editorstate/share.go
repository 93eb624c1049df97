package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-editorstate/pkg/state"
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Store and fetch share tokens in Redis or Postgres",
}

var sharePutCmd = &cobra.Command{
	Use:   "put <key> [state.json|state.yaml]",
	Short: "Encode a state file (or stdin) and store the token under key",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSharePut,
}

var shareGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch the token stored under key and print the loaded state",
	Args:  cobra.ExactArgs(1),
	RunE:  runShareGet,
}

var shareDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove the token stored under key",
	Args:  cobra.ExactArgs(1),
	RunE:  runShareDelete,
}

func runSharePut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := readInput(cmd, args[1:])
	if err != nil {
		return err
	}
	s, err := parseState(data, engine.Defaults())
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine.Publish(s)
	meta, err := engine.Persist(ctx, store, state.ParseRef(args[0]), "")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s etag=%s\n", meta.SnapshotID, meta.ETag)
	return nil
}

func runShareGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := engine.Restore(ctx, store, state.ParseRef(args[0]))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), s)
}

func runShareDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return store.Delete(ctx, state.ParseRef(args[0]))
}

// openStore picks Redis when configured, then Postgres.
func openStore(ctx context.Context) (state.Store[string], func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case cfg.RedisURL != "":
		opts := []state.RedisOption{}
		if cfg.ShareTTL > 0 {
			opts = append(opts, state.WithRedisTTL(cfg.ShareTTL))
		}
		store, err := state.NewRedisStore[string](ctx, cfg.RedisURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, closer(store), nil
	case cfg.DatabaseURL != "":
		db, err := state.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := state.NewPostgresStore[string](db, cfg.ShareTable)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, closer(db), nil
	default:
		return nil, nil, fmt.Errorf("share storage is not configured: set EDITORSTATE_REDIS_URL or EDITORSTATE_DATABASE_URL")
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
