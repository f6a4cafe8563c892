package main

import (
	"context"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/reconcile"
	"github.com/ramonehamilton/binder-companion/internal/storage/models"
)

func addSyncCommand(root *cobra.Command, opts *globalOptions) {
	root.AddCommand(newSyncCommand(opts))
}

func newSyncCommand(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sync [BINDER...]",
		Short: "Push binders to the remote now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name binders to sync or pass --all")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if a.Remote == nil {
					return fmt.Errorf("no remote configured: set sync.remote_url or sync.remote_dir")
				}
				ids := args
				if all {
					summaries, err := a.Editor.List(ctx)
					if err != nil {
						return err
					}
					ids = lo.Map(summaries, func(s *models.BinderSummary, _ int) string { return s.ID })
				}

				results := make([]*reconcile.Result, 0, len(ids))
				for _, id := range ids {
					s, err := a.Editor.Open(ctx, id)
					if err != nil {
						return fmt.Errorf("open binder %s: %w", id, err)
					}
					result, err := s.Flush(ctx)
					if err != nil {
						return fmt.Errorf("sync binder %s: %w", id, err)
					}
					results = append(results, result)
				}

				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), results)
				}
				tbl := uitable.New()
				tbl.Separator = "  "
				tbl.AddRow(bold.Sprint("Binder"), bold.Sprint("Version"), bold.Sprint("Retries"), bold.Sprint("Conflicts"), bold.Sprint("Dropped"))
				for _, r := range results {
					if r == nil {
						continue
					}
					conflicts := fmt.Sprint(len(r.Conflicts))
					if len(r.Conflicts) > 0 {
						conflicts = warn.Sprint(conflicts)
					}
					tbl.AddRow(r.BinderID, r.Version, r.Retries, conflicts, len(r.Dropped))
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "sync every cached binder")
	return cmd
}
