package main

import (
	"fmt"
	"os"

	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/export"
	"github.com/acksell/ddbseed/school"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSiteViewsCmd(a *app) *cobra.Command {
	var (
		per         int
		sourceTable string
		viewsTable  string
		out         string
		seed        uint64
	)
	cmd := &cobra.Command{
		Use:   "site-views",
		Short: "Generate recent website visits for every student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			students, err := scanOptional[school.Student](ctx, a, a.cfg.TableName(sourceTable), "email", "name")
			if err != nil {
				return err
			}
			if len(students) == 0 {
				color.Yellow("no students found")
				return nil
			}
			fmt.Fprintf(a.stdout, "%d students, %d views each\n", len(students), per)

			views, err := school.NewGenerator(seed).SiteViews(students, per)
			if err != nil {
				return err
			}
			if err := a.writeOut(out, views); err != nil {
				return err
			}
			records, err := ingest.MarshalRecords(views)
			if err != nil {
				return err
			}
			return a.seed(ctx, school.SiteViewsTableDef(a.cfg.TableName(viewsTable)), records)
		},
	}
	cmd.Flags().IntVar(&per, "per", school.DefaultViewsPerStudent, "views per student")
	cmd.Flags().StringVar(&sourceTable, "source", school.StudentsTable, "students table")
	cmd.Flags().StringVar(&viewsTable, "table", school.SiteViewsTable, "site views table")
	cmd.Flags().StringVar(&out, "out", "", "also write the views to this JSON file")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 picks one")
	return cmd
}

func newCategorizeCmd(a *app) *cobra.Command {
	var (
		baselinePath string
		viewsPath    string
		viewsTable   string
		destTable    string
		dryRun       bool
	)
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Tag site views with a category and store them by time",
		Long: `Reads views from --views, or from the site views table when --views is
empty, labels each with the category its domain has in the baseline file,
and writes them keyed by student and watchedAt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			categorizer := school.NewCategorizer(school.Categories())
			if baselinePath != "" {
				data, err := os.ReadFile(baselinePath)
				if err != nil {
					return err
				}
				if categorizer, err = school.ParseBaseline(data); err != nil {
					return err
				}
			}
			a.logger.Debug("loaded baseline", "domains", categorizer.Len())

			var views []school.SiteView
			if viewsPath != "" {
				data, err := os.ReadFile(viewsPath)
				if err != nil {
					return err
				}
				if views, err = school.LoadViews(data); err != nil {
					return err
				}
			} else {
				if err := a.connect(ctx); err != nil {
					return err
				}
				var err error
				if views, err = scanOptional[school.SiteView](ctx, a, a.cfg.TableName(viewsTable)); err != nil {
					return err
				}
			}
			if len(views) == 0 {
				color.Yellow("no views found")
				return nil
			}

			categorized, dropped := categorizer.Categorize(views)
			fmt.Fprintf(a.stdout, "%d views categorized, %d without studentEmail or watchedAt skipped\n", len(categorized), dropped)
			if dryRun {
				return preview(a, "categorized views", categorized, 5)
			}

			records, err := ingest.MarshalRecords(categorized)
			if err != nil {
				return err
			}
			if err := a.connect(ctx); err != nil {
				return err
			}
			return a.seed(ctx, school.CategorizedViewsTableDef(a.cfg.TableName(destTable)), records)
		},
	}
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "category baseline JSON (default: built-in categories)")
	cmd.Flags().StringVar(&viewsPath, "views", "", "views JSON file (default: scan the site views table)")
	cmd.Flags().StringVar(&viewsTable, "source", school.SiteViewsTable, "site views table")
	cmd.Flags().StringVar(&destTable, "table", school.CategorizedViewsTable, "categorized views table")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print a sample instead of writing")
	return cmd
}

func newCategoriesCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Write the category baseline as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path, err := export.WriteCategories(outDir, school.Categories(), asJSON)
			if err != nil {
				return err
			}
			color.Green("wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "write JSON instead of CSV")
	cmd.Flags().StringVar(&outDir, "out-dir", "out/baseline", "output directory")
	return cmd
}
