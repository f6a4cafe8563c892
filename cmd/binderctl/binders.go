package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

func addBinderCommands(root *cobra.Command, opts *globalOptions) {
	root.AddCommand(
		newListCommand(opts),
		newCreateCommand(opts),
		newShowCommand(opts),
		newRenameCommand(opts),
		newDeleteCommand(opts),
	)
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List binders in the local cache",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				summaries, err := a.Editor.List(ctx)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), summaries)
				}
				printSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
}

func newCreateCommand(opts *globalOptions) *cobra.Command {
	var grid string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty binder",
		Example: `
binderctl create "Scarlet & Violet" --grid 3x3
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				s, err := a.Editor.Create(ctx, args[0], binder.GridName(grid))
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), s.Binder())
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", bold.Sprint(s.Binder().Metadata.Name), s.ID())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&grid, "grid", "", "grid size, e.g. 3x3 (default from config)")
	_ = cmd.RegisterFlagCompletionFunc("grid", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return gridNames(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func gridNames() []string {
	return lo.Map(binder.GridNames(), func(name binder.GridName, _ int) string { return string(name) })
}

func newShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show BINDER",
		Short: "Show a binder page by page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(_ context.Context, _ *app.App, s *editor.Session) error {
				spreads, err := s.Spreads()
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), spreads)
				}
				b := s.Binder()
				w := cmd.OutOrStdout()
				printBinderHeader(w, b, s.Usage())
				_, _ = fmt.Fprintln(w)
				printLayout(w, spreads, b.Settings.GridSize)
				return nil
			})
		},
	}
}

func newRenameCommand(opts *globalOptions) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "rename BINDER NAME",
		Short: "Rename a binder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				if !cmd.Flags().Changed("description") {
					description = s.Binder().Metadata.Description
				}
				return s.Rename(ctx, args[1], description)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "binder description")
	return cmd
}

func newDeleteCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete BINDER",
		Aliases: []string{"rm"},
		Short:   "Delete a binder locally and from the remote",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("refusing to delete without --force")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Editor.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.RedString("deleted %s", args[0]))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm deletion")
	return cmd
}
