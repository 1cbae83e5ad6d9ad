package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetpipe/internal/admin"
	"github.com/JonMunkholm/sheetpipe/internal/application"
	"github.com/JonMunkholm/sheetpipe/internal/core"
)

// optionalTable returns args[0], or "" so the service applies its default.
func optionalTable(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printNotice(n core.Notice) {
	fmt.Fprintf(c.stdout, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
}

// printOutcome prints a stage outcome as JSON or as its notice line.
func printOutcome[T any](c *cli, out core.Outcome[T], err error) error {
	if err != nil {
		return err
	}
	if c.jsonOut {
		return c.printJSON(out)
	}
	c.printNotice(out.Notice)
	return nil
}

func (c *cli) newNormalizeHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize-header [table]",
		Short: "Capitalize every word of the header row",
		Long: `Capitalize the first letter of every word in the header row and collapse
whitespace. Defaults to PIPELINE_HEADER_TABLE.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.NormalizeHeader(ctx, optionalTable(args))
				return printOutcome(c, out, err)
			})
		},
	}
}

func (c *cli) newRemapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remap",
		Short: "Copy the source table into the destination with the fixed column mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.RemapColumns(ctx)
				return printOutcome(c, out, err)
			})
		},
	}
}

func (c *cli) newSortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort [table]",
		Short: "Group rows by the key column and sort the groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.SortByGroup(ctx, optionalTable(args))
				return printOutcome(c, out, err)
			})
		},
	}
}

func (c *cli) newSeparateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "separate [table]",
		Short: "Sort by the key column and insert a blank row between groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.SortAndSeparate(ctx, optionalTable(args))
				return printOutcome(c, out, err)
			})
		},
	}
}

func (c *cli) newFillMarkersCmd() *cobra.Command {
	var column int
	cmd := &cobra.Command{
		Use:   "fill-markers [table]",
		Short: "Fill blank cells of a column with the subtotal marker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.FillMarkers(ctx, optionalTable(args), column)
				return printOutcome(c, out, err)
			})
		},
	}
	cmd.Flags().IntVar(&column, "column", 0, "1-based column (default PIPELINE_MARKER_COLUMN)")
	return cmd
}

func (c *cli) newResolveSubtotalsCmd() *cobra.Command {
	var column int
	cmd := &cobra.Command{
		Use:   "resolve-subtotals [table]",
		Short: "Replace markers with running subtotals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.ResolveSubtotals(ctx, optionalTable(args), column)
				return printOutcome(c, out, err)
			})
		},
	}
	cmd.Flags().IntVar(&column, "column", 0, "1-based column (default PIPELINE_MARKER_COLUMN)")
	return cmd
}

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run remap, separate, fill markers and resolve subtotals in order",
		Long: `Run the full pipeline on the configured tables. The run stops at the first
failing step; steps that completed are not rolled back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.RunPipeline(ctx)
				if c.jsonOut {
					if jerr := c.printJSON(out); jerr != nil {
						return jerr
					}
					return err
				}
				if rec, ok := app.Service.Run(out.RunID); ok {
					for _, n := range rec.Notices {
						c.printNotice(n)
					}
				}
				return err
			})
		},
	}
}

func (c *cli) newImportCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "import <table> <file.csv>",
		Short: "Replace a table with the contents of a CSV file",
		Long: `Replace a table with the contents of a CSV file. Use "-" to read standard
input. Numeric fields are stored as numbers.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				out, err := app.Service.ImportCSV(ctx, args[0], in, create)
				return printOutcome(c, out, err)
			})
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "Create the table when it does not exist")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Write a table as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				w := c.stdout
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				res, err := app.Service.ExportCSV(ctx, args[0], w)
				if err != nil {
					return err
				}
				if output != "" {
					fmt.Fprintf(c.stdout, "Exported %d rows from %s to %s\n", res.Rows, res.Table, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of standard output")
	return cmd
}

func (c *cli) newSummaryCmd() *cobra.Command {
	var column int
	cmd := &cobra.Command{
		Use:   "summary [table]",
		Short: "Count and summarize the numeric cells of a column",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				sum, err := app.Service.ColumnSummary(ctx, optionalTable(args), column)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(sum)
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "table\t%s\n", sum.Table)
				fmt.Fprintf(tw, "column\t%d (%s)\n", sum.Column, sum.Header)
				fmt.Fprintf(tw, "cells\t%d\n", sum.Cells)
				fmt.Fprintf(tw, "blank\t%d\n", sum.Blank)
				fmt.Fprintf(tw, "markers\t%d\n", sum.Markers)
				fmt.Fprintf(tw, "numeric\t%d\n", sum.Numeric)
				if sum.Numeric > 0 {
					fmt.Fprintf(tw, "sum\t%g\n", sum.Sum)
					fmt.Fprintf(tw, "mean\t%g\n", sum.Mean)
					fmt.Fprintf(tw, "median\t%g\n", sum.Median)
					fmt.Fprintf(tw, "min\t%g\n", sum.Min)
					fmt.Fprintf(tw, "max\t%g\n", sum.Max)
					fmt.Fprintf(tw, "std dev\t%g\n", sum.StdDev)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&column, "column", 0, "1-based column (default PIPELINE_MARKER_COLUMN)")
	return cmd
}

func (c *cli) newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables with their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				tables, err := app.Service.ListTables(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(tables)
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tROWS\tCOLUMNS")
				for _, t := range tables {
					if t.Error != "" {
						fmt.Fprintf(tw, "%s\t-\t-\t%s\n", t.Name, t.Error)
						continue
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Name, t.Rows, t.Columns)
				}
				return tw.Flush()
			})
		},
	}
}

func (c *cli) newResetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [table...]",
		Short: "Clear tables (destructive)",
		Long: `Clear every value and style from the named tables, or from every table
with --all. Nothing is cleared when a named table does not exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("name the tables to reset or pass --all, not both")
			}
			return c.withApp(cmd, func(ctx context.Context, app *application.App) error {
				names := args
				if all {
					var err error
					if names, err = admin.ResetAll(ctx, app.Store); err != nil {
						return err
					}
				} else if err := admin.Reset(ctx, app.Store, names...); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "Reset %d table(s)\n", len(names))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reset every table in the store")
	return cmd
}
