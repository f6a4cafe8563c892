// Package main is a command-line client that edits binders directly in the
// local cache, syncing with the configured remote on exit.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/config"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/version"
)

// globalOptions are the flags every command accepts.
type globalOptions struct {
	ConfigPath string
	DataDir    string
	Offline    bool
	JSON       bool
	Debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "binderctl",
		Short:         "Arrange trading cards in virtual binders",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: ~/.binder-companion/config.toml)")
	root.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default: ~/.binder-companion)")
	root.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "use cached card details only")
	root.PersistentFlags().BoolVarP(&opts.JSON, "json", "j", false, "print JSON instead of tables")
	root.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")

	addBinderCommands(root, opts)
	addCardCommands(root, opts)
	addHistoryCommands(root, opts)
	addTransferCommands(root, opts)
	addCatalogCommands(root, opts)
	addSyncCommand(root, opts)
	addBackupCommands(root, opts)

	return root
}

// withApp starts the services, runs fn and closes them again, flushing any
// edits fn made.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, app.Options{DataDir: opts.DataDir, Offline: opts.Offline})
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// withSession opens the binder named by the first argument.
func withSession(cmd *cobra.Command, opts *globalOptions, id string, fn func(ctx context.Context, a *app.App, s *editor.Session) error) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		s, err := a.Editor.Open(ctx, id)
		if err != nil {
			return fmt.Errorf("open binder %s: %w", id, err)
		}
		return fn(ctx, a, s)
	})
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFrom(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		cfg.App.DebugMode = true
	}
	return cfg, nil
}
