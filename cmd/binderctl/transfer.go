package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/export"
)

// passphraseEnv supplies the passphrase when the flag is not set.
const passphraseEnv = "BINDER_PASSPHRASE"

func addTransferCommands(root *cobra.Command, opts *globalOptions) {
	root.AddCommand(newExportCommand(opts), newImportCommand(opts), newChecklistCommand(opts))
}

func passphrase(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passphraseEnv)
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		out      string
		options  editor.ExportOptions
		sealFlag string
	)

	cmd := &cobra.Command{
		Use:   "export BINDER",
		Short: "Write a binder as a JSON document",
		Example: `
binderctl export 6f1c... -o paldea.json --history
BINDER_PASSPHRASE=secret binderctl export 6f1c... --seal -o paldea.sealed
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seal, _ := cmd.Flags().GetBool("seal")
			if seal {
				options.Passphrase = passphrase(sealFlag)
				if options.Passphrase == "" {
					return fmt.Errorf("--seal needs --passphrase or %s", passphraseEnv)
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				data, err := a.Editor.Export(ctx, args[0], options)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "exported %s to %s\n", args[0], out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&options.History, "history", false, "include undo history")
	cmd.Flags().BoolVar(&options.Clipboard, "clipboard", false, "include clipboard items")
	cmd.Flags().Bool("seal", false, "encrypt the document")
	cmd.Flags().StringVar(&sealFlag, "passphrase", "", "passphrase for --seal (or "+passphraseEnv+")")
	return cmd
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	var pass string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a binder document as a new binder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				s, err := a.Editor.Import(ctx, data, passphrase(pass))
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), s.Binder())
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s\n", bold.Sprint(s.Binder().Metadata.Name), s.ID())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pass, "passphrase", "", "passphrase for sealed documents (or "+passphraseEnv+")")
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func newChecklistCommand(opts *globalOptions) *cobra.Command {
	var (
		out       string
		format    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "checklist BINDER",
		Short: "List a binder's cards with their page and slot as CSV or JSON",
		Example: `
binderctl checklist 6f1c...
binderctl checklist 6f1c... --format json -o paldea.json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, args[0], func(ctx context.Context, a *app.App, s *editor.Session) error {
				rows := export.Checklist(ctx, s.Binder(), a.Catalog)
				if out == "" || out == "-" {
					return export.Write(cmd.OutOrStdout(), f, rows, true)
				}
				exporter := export.NewExporter(export.Options{
					Format:     f,
					FilePath:   out,
					PrettyJSON: true,
					Overwrite:  overwrite,
				})
				if err := exporter.Export(rows); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d cards to %s\n", len(rows), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or json")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing output file")
	return cmd
}
