package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/config"
	"github.com/ramonehamilton/binder-companion/internal/storage"
)

func addBackupCommands(root *cobra.Command, opts *globalOptions) {
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Back up or restore the local binder cache",
	}
	backup.AddCommand(
		newBackupCreateCommand(opts),
		newBackupListCommand(opts),
		newBackupRestoreCommand(opts),
	)
	root.AddCommand(backup)
}

func newBackupCreateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a backup of the cache now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				info, err := a.Backups.Backup(ctx)
				if err != nil {
					return err
				}
				if _, err := a.Backups.Prune(ctx, a.Config.Storage.BackupKeep); err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), info)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "backed up %d binder(s) to %s\n", info.Binders, info.Path)
				return nil
			})
		},
	}
}

func newBackupListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolvedConfig(opts)
			if err != nil {
				return err
			}
			backups, err := storage.NewBackupManager(nil, cfg.Storage.BackupDir).List(cmd.Context())
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(cmd.OutOrStdout(), backups)
			}
			if len(backups) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), faint.Sprint("no backups"))
				return nil
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("Name"), bold.Sprint("Taken"), bold.Sprint("Binders"), bold.Sprint("Size"))
			for _, b := range backups {
				tbl.AddRow(b.Name, humanize.Time(b.CreatedAt), b.Binders, humanize.Bytes(uint64(b.Size)))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}
}

func newBackupRestoreCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace the cache with a backup",
		Long: `Replace the local cache with a backup. Stop the daemon first: the
cache must not be open in another process. The replaced cache is kept
next to it with an .old suffix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("refusing to replace the cache without --force")
			}
			cfg, err := resolvedConfig(opts)
			if err != nil {
				return err
			}
			if err := storage.RestoreBackup(cmd.Context(), args[0], cfg.Storage.DatabasePath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", cfg.Storage.DatabasePath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm replacing the cache")
	return cmd
}

// resolvedConfig loads the configuration with storage paths filled in,
// without opening the cache.
func resolvedConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	dir := opts.DataDir
	if dir == "" {
		if dir, err = config.Dir(); err != nil {
			return nil, err
		}
	}
	cfg.ResolvePaths(dir)
	return cfg, nil
}
