package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/acksell/ddbseed/export"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			p := dynamodb.NewListTablesPaginator(a.client, &dynamodb.ListTablesInput{})
			for p.HasMorePages() {
				out, err := p.NextPage(ctx)
				if err != nil {
					return fmt.Errorf("list tables: %w", err)
				}
				for _, name := range out.TableNames {
					fmt.Fprintln(a.stdout, name)
				}
			}
			return nil
		},
	}
}

func newDropCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop <table>...",
		Short: "Delete tables and all their items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %s without --yes", strings.Join(args, ", "))
			}
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			for _, name := range args {
				name = a.cfg.TableName(name)
				if _, err := a.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)}); err != nil {
					return fmt.Errorf("drop %s: %w", name, err)
				}
				color.Yellow("dropped %s", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

// lookup fetches one item by key. Key values are given as name=value and
// typed from the table's key schema.
func (a *app) lookup(ctx context.Context, tableName string, pairs []string) (export.Item, error) {
	desc, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", tableName, err)
	}
	keyDef, err := table.KeyDefinitionFromSchema(desc.Table.KeySchema, desc.Table.AttributeDefinitions)
	if err != nil {
		return nil, err
	}
	key, err := parseKey(keyDef, pairs)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(tableName), Key: key})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	items, err := export.Decode([]map[string]types.AttributeValue{out.Item})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

func parseKey(def table.PrimaryKeyDefinition, pairs []string) (map[string]types.AttributeValue, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key %q: want name=value", pair)
		}
		values[name] = value
	}

	key := make(map[string]types.AttributeValue, 2)
	for _, kd := range []table.KeyDef{def.PartitionKey, def.SortKey} {
		if kd.Name == "" {
			continue
		}
		raw, ok := values[kd.Name]
		if !ok {
			return nil, fmt.Errorf("missing key attribute %q", kd.Name)
		}
		delete(values, kd.Name)
		switch kd.Kind {
		case table.KeyKindN:
			key[kd.Name] = &types.AttributeValueMemberN{Value: raw}
		case table.KeyKindB:
			b, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("key %s: binary values are base64: %w", kd.Name, err)
			}
			key[kd.Name] = &types.AttributeValueMemberB{Value: b}
		default:
			key[kd.Name] = &types.AttributeValueMemberS{Value: raw}
		}
	}
	for name := range values {
		return nil, fmt.Errorf("%q is not a key attribute", name)
	}
	return key, nil
}
