package main

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

func addCatalogCommands(root *cobra.Command, opts *globalOptions) {
	catalog := &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"cards"},
		Short:   "Look up card details",
	}
	catalog.AddCommand(
		newSearchCommand(opts),
		newCardCommand(opts),
		newPrefetchCommand(opts),
		newPurgeCommand(opts),
	)
	root.AddCommand(catalog)
}

func newSearchCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search NAME",
		Short: "Search the catalog by card name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cards, err := a.Catalog.Search(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), cards)
				}
				printDetails(cmd.OutOrStdout(), cards)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results")
	return cmd
}

func newCardCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get CARD...",
		Short: "Show details for card ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cards := make([]*binder.CardDetails, 0, len(args))
				for _, id := range args {
					d, err := a.Catalog.Lookup(ctx, id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					cards = append(cards, d)
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), cards)
				}
				printDetails(cmd.OutOrStdout(), cards)
				return nil
			})
		},
	}
}

func newPrefetchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch BINDER",
		Short: "Cache details for every card in a binder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(ctx context.Context, a *app.App, s *editor.Session) error {
				ids := lo.Uniq(lo.Map(s.Binder().Cards.Entries(), func(slot binder.Slot, _ int) string {
					return slot.Card.CardID
				}))
				details, err := a.Catalog.Prefetch(ctx, ids)
				if err != nil {
					return err
				}
				placeholders := lo.CountBy(lo.Values(details), func(d *binder.CardDetails) bool { return d != nil && d.Placeholder })
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cached %d card(s)", len(details)-placeholders)
				if placeholders > 0 {
					_, _ = fmt.Fprint(cmd.OutOrStdout(), warn.Sprintf(", %d unavailable", placeholders))
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newPurgeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop cached card details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return a.Catalog.Purge(ctx)
			})
		},
	}
}
