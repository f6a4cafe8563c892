package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

func addHistoryCommands(root *cobra.Command, opts *globalOptions) {
	root.AddCommand(
		newHistoryCommand(opts),
		newStepCommand(opts, "undo", "Undo the last change", (*editor.Session).Undo),
		newStepCommand(opts, "redo", "Redo the last undone change", (*editor.Session).Redo),
		newRevertCommand(opts),
	)
}

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history BINDER",
		Short: "List undo history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(_ context.Context, _ *app.App, s *editor.Session) error {
				entries, cursor := s.History()
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), entries)
				}

				tbl := uitable.New()
				tbl.Separator = "  "
				tbl.AddRow("", bold.Sprint("ID"), bold.Sprint("When"), bold.Sprint("Change"), bold.Sprint("Cards"))
				for i, e := range slices.Backward(entries) {
					marker := ""
					if i == cursor {
						marker = "*"
					}
					tbl.AddRow(marker, e.ID, e.Timestamp.Local().Format("15:04:05"), e.Description, e.Snapshot.Cards.Len())
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return nil
			})
		},
	}
}

func newStepCommand(opts *globalOptions, use, short string, step func(*editor.Session, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " BINDER",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				return step(s, ctx)
			})
		},
	}
}

func newRevertCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revert BINDER ENTRY",
		Short: "Return to a history entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid history entry %q", args[1])
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				return s.RevertTo(ctx, id)
			})
		},
	}
}
