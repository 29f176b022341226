package main

import (
	"fmt"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/acksell/ddbseed/school"
	"github.com/spf13/cobra"
)

func newEnsureCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create tables and missing indexes",
		Long: `Provisions the tables described by --schema (a glob of YAML schema files,
default: schemaFiles from the config), or every built-in school table when
neither is set. Existing tables only get the indexes they lack.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern := schema
			if pattern == "" {
				pattern = a.cfg.SchemaFiles
			}

			var defs []table.TableDefinition
			if pattern != "" {
				var err error
				if defs, err = table.LoadSchemaFiles(pattern); err != nil {
					return err
				}
				if len(defs) == 0 {
					return fmt.Errorf("no tables found in %s", pattern)
				}
			} else {
				for _, def := range school.Tables() {
					def.Name = a.cfg.TableName(def.Name)
					defs = append(defs, def)
				}
			}

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			for _, def := range defs {
				if err := a.ensure(ctx, def); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.stdout, "%d tables provisioned\n", len(defs))
			return nil
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "glob of YAML table schema files")
	return cmd
}
