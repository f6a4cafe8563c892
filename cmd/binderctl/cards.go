package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/binder"
	"github.com/ramonehamilton/binder-companion/internal/editor"
)

func addCardCommands(root *cobra.Command, opts *globalOptions) {
	pages := &cobra.Command{
		Use:   "pages",
		Short: "Add, reorder or trim pages",
	}
	pages.AddCommand(
		newAddPagesCommand(opts),
		newMovePagesCommand(opts),
		newTrimPagesCommand(opts),
	)

	root.AddCommand(
		newPlaceCommand(opts),
		newRemoveCommand(opts),
		newMoveCommand(opts),
		newSortCommand(opts),
		newGridCommand(opts),
		pages,
	)
}

func positionArg(arg string) (int, error) {
	pos, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", arg)
	}
	return pos, nil
}

func newPlaceCommand(opts *globalOptions) *cobra.Command {
	var (
		reverseHolo bool
		grow        bool
	)

	cmd := &cobra.Command{
		Use:   "place BINDER POSITION CARD",
		Short: "Place a card at a position",
		Example: `
binderctl place 6f1c... 4 sv1-25 --reverse-holo
`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := positionArg(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				placement, err := s.Place(ctx, pos, binder.NewCardRef(args[2], reverseHolo), grow)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), placement)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "placed %s at %d\n", args[2], placement.Position)
				if placement.PagesAdded > 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), faint.Sprintf("added %d page(s)", placement.PagesAdded))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&reverseHolo, "reverse-holo", "r", false, "the copy is a reverse holo")
	cmd.Flags().BoolVar(&grow, "grow", true, "add pages when the position is past the last page")
	return cmd
}

func newRemoveCommand(opts *globalOptions) *cobra.Command {
	var clip bool

	cmd := &cobra.Command{
		Use:   "remove BINDER POSITION",
		Short: "Remove the card at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := positionArg(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				if clip {
					ref, err := s.LiftToClipboard(ctx, pos)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "moved %s to the clipboard\n", ref.CardID)
					return nil
				}
				ref, err := s.DeleteCard(ctx, pos)
				if err != nil {
					return err
				}
				if ref == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), faint.Sprintf("position %d was empty", pos))
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", ref.CardID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clip, "clipboard", false, "keep the card on the binder clipboard")
	return cmd
}

func newMoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move BINDER FROM TO",
		Short: "Move a card, shifting later cards when the target is occupied",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := positionArg(args[1])
			if err != nil {
				return err
			}
			to, err := positionArg(args[2])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				move, err := s.MoveCard(ctx, from, to)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), move)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "moved %d to %d\n", from, to)
				return nil
			})
		},
	}
}

func newSortCommand(opts *globalOptions) *cobra.Command {
	var (
		descending bool
		auto       string
	)

	cmd := &cobra.Command{
		Use:       "sort BINDER STRATEGY",
		Short:     "Sort a binder by number, name, rarity or type",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(binder.SortNumber), string(binder.SortName), string(binder.SortRarity), string(binder.SortType)},
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy := binder.SortStrategy(args[1])
			if !strategy.Valid() {
				return fmt.Errorf("unknown sort strategy %q", args[1])
			}
			direction := binder.Ascending
			if descending {
				direction = binder.Descending
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				if err := s.Sort(ctx, strategy, direction); err != nil {
					return err
				}
				if auto != "" {
					enabled, err := strconv.ParseBool(auto)
					if err != nil {
						return fmt.Errorf("invalid --auto value %q", auto)
					}
					return s.SetAutoSort(ctx, enabled)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&descending, "desc", false, "sort descending")
	cmd.Flags().StringVar(&auto, "auto", "", "keep the binder sorted after every placement (true or false)")
	return cmd
}

func newGridCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grid BINDER SIZE",
		Short: "Change the page grid, keeping card positions",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return gridNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				return s.Regrid(ctx, binder.GridName(args[1]))
			})
		},
	}
}

func newAddPagesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add BINDER [COUNT]",
		Short: "Append empty pages",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid page count %q", args[1])
				}
				count = n
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				return s.AddPages(ctx, count)
			})
		},
	}
}

func newMovePagesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move BINDER FROM TO",
		Short: "Move a page, taking its cards along",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid page %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid page %q", args[2])
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				return s.MovePages(ctx, from, to)
			})
		},
	}
}

func newTrimPagesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trim BINDER",
		Short: "Remove empty pages from the end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, args[0], func(ctx context.Context, _ *app.App, s *editor.Session) error {
				removed, err := s.TrimPages(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d page(s)\n", removed)
				return nil
			})
		},
	}
}
