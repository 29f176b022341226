package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/acksell/ddbseed/export"
	"github.com/acksell/ddbseed/school"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) meta(tableName string) export.Meta {
	return export.Meta{Table: tableName, Endpoint: a.endpointLabel(), ExportedAt: time.Now()}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		tableName string
		base      string
		nested    bool
		pageSize  int32
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a whole table to JSON",
		Long: `Writes <base>.json with every item. With --nested, writes
<base>_flat.json, <base>_nested.json (one list per Scan page) and
<base>_diff.txt describing the difference.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			name := a.cfg.TableName(tableName)
			pages, err := export.ScanAll(ctx, a.client, name, export.ScanOptions{PageSize: pageSize})
			if err != nil {
				return err
			}
			meta := a.meta(name)

			if nested {
				files := export.FilesFor(base)
				n, err := export.WriteAll(meta, files, pages)
				if err != nil {
					return err
				}
				color.Green("exported %d items from %s to %s, %s and %s", n, name, files.Flat, files.Nested, files.Diff)
				return nil
			}

			items, err := export.Decode(export.Flatten(pages))
			if err != nil {
				return err
			}
			path := base + ".json"
			if err := export.WriteJSON(path, export.NewFlat(meta, items)); err != nil {
				return err
			}
			color.Green("exported %d items from %s to %s", len(items), name, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", school.FakeUserTable, "table to export")
	cmd.Flags().StringVar(&base, "base", "db_fakeuser", "output file base name")
	cmd.Flags().BoolVar(&nested, "nested", false, "also write the per-page and diff files")
	cmd.Flags().Int32Var(&pageSize, "page-size", 0, "items per Scan request; 0 lets the store decide")
	return cmd
}

func newExportInitialCmd(a *app) *cobra.Command {
	var (
		tableName string
		initial   string
	)
	cmd := &cobra.Command{
		Use:   "export-initial",
		Short: "Export the items whose name starts with a letter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initial = export.NormalizeInitial(initial)
			if !cmd.Flags().Changed("initial") {
				if !interactive() {
					return errNotInteractive
				}
				var err error
				if initial, err = newPrompter(a.stdin, a.stdout).initial(); err != nil {
					return err
				}
			}
			if !export.ValidInitial(initial) {
				return fmt.Errorf("initial must be a single letter A-Z")
			}

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			name := a.cfg.TableName(tableName)
			pages, err := export.ScanAll(ctx, a.client, name, export.ScanOptions{})
			if err != nil {
				return err
			}
			items, err := export.Decode(export.Flatten(pages))
			if err != nil {
				return err
			}

			payload := export.NewFlat(a.meta(name), export.FilterByInitial(items, initial))
			payload.Initial = initial
			path := fmt.Sprintf("initial_%s_name.json", initial)
			if err := export.WriteJSON(path, payload); err != nil {
				return err
			}
			color.Green("wrote %s (%d items with names starting with %s)", path, payload.Count, initial)
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", school.FakeUserTable, "table to export")
	cmd.Flags().StringVar(&initial, "initial", "", "letter A-Z; prompts when omitted")
	return cmd
}

func newExportSortedCmd(a *app) *cobra.Command {
	var (
		tableName string
		order     string
	)
	cmd := &cobra.Command{
		Use:   "export-sorted",
		Short: "Export a table sorted by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				o   export.Order
				err error
			)
			if cmd.Flags().Changed("order") {
				o, err = export.ParseOrder(order)
			} else if interactive() {
				o, err = newPrompter(a.stdin, a.stdout).order()
			} else {
				err = errNotInteractive
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			name := a.cfg.TableName(tableName)
			pages, err := export.ScanAll(ctx, a.client, name, export.ScanOptions{})
			if err != nil {
				return err
			}
			items, err := export.Decode(export.Flatten(pages))
			if err != nil {
				return err
			}
			export.SortByName(items, o)

			payload := export.NewFlat(a.meta(name), items)
			payload.Order = string(o)
			path := fmt.Sprintf("sorted_name_%s.json", o)
			if err := export.WriteJSON(path, payload); err != nil {
				return err
			}
			color.Green("wrote %s (%d items by name, %s)", path, payload.Count, o)
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", school.FakeUserTable, "table to export")
	cmd.Flags().StringVar(&order, "order", "", "asc or desc; prompts when omitted")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		tableName string
		limit     int32
		keys      []string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print one item by key, or the first items of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			name := a.cfg.TableName(tableName)
			if len(keys) > 0 {
				item, err := a.lookup(ctx, name, keys)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("no item in %s with key %s", name, strings.Join(keys, ", "))
				}
				return printJSON(a.stdout, item)
			}

			pages, err := export.ScanAll(ctx, a.client, name, export.ScanOptions{PageSize: limit, MaxPages: 1})
			if err != nil {
				return err
			}
			items, err := export.Decode(export.Flatten(pages))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "read %d items from %s @ %s\n", len(items), name, a.endpointLabel())
			return printJSON(a.stdout, items)
		},
	}
	cmd.Flags().StringVar(&tableName, "table", school.StudentsTable, "table to read")
	cmd.Flags().Int32Var(&limit, "limit", 10, "maximum items")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "key attribute as name=value; repeat for a sort key")
	return cmd
}
