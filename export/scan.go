// Package export reads whole tables back out of the store and writes them as
// JSON or CSV files.
package export

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Page is the items returned by one Scan request.
type Page []map[string]types.AttributeValue

// Item is a decoded record, ready for JSON encoding.
type Item = map[string]any

type ScanOptions struct {
	IndexName string
	// PageSize sets Limit on each Scan request. Zero leaves it to the store.
	PageSize int32
	// MaxPages stops after that many pages. Zero scans to the end.
	MaxPages int
	// Attributes restricts the returned attributes. Empty returns all.
	Attributes []string
}

func (o ScanOptions) input(tableName string) (*dynamodb.ScanInput, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(tableName)}
	if o.IndexName != "" {
		in.IndexName = aws.String(o.IndexName)
	}
	if o.PageSize > 0 {
		in.Limit = aws.Int32(o.PageSize)
	}
	if len(o.Attributes) > 0 {
		proj := expression.NamesList(expression.Name(o.Attributes[0]))
		for _, name := range o.Attributes[1:] {
			proj = proj.AddNames(expression.Name(name))
		}
		expr, err := expression.NewBuilder().WithProjection(proj).Build()
		if err != nil {
			return nil, fmt.Errorf("build projection: %w", err)
		}
		in.ProjectionExpression = expr.Projection()
		in.ExpressionAttributeNames = expr.Names()
	}
	return in, nil
}

// ScanAll pages through tableName and returns every non-empty page in order.
func ScanAll(ctx context.Context, client dynamodb.ScanAPIClient, tableName string, opts ScanOptions) ([]Page, error) {
	in, err := opts.input(tableName)
	if err != nil {
		return nil, err
	}
	var pages []Page
	p := dynamodb.NewScanPaginator(client, in)
	for n := 0; p.HasMorePages(); n++ {
		if opts.MaxPages > 0 && n >= opts.MaxPages {
			break
		}
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", tableName, err)
		}
		if len(out.Items) > 0 {
			pages = append(pages, out.Items)
		}
	}
	return pages, nil
}

// Flatten joins pages into one slice of items.
func Flatten(pages []Page) []map[string]types.AttributeValue {
	var out []map[string]types.AttributeValue
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}

// Decode converts records into plain Go values.
func Decode(records []map[string]types.AttributeValue) ([]Item, error) {
	items := make([]Item, 0, len(records))
	if err := attributevalue.UnmarshalListOfMaps(records, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// DecodePages decodes every page, keeping the page boundaries.
func DecodePages(pages []Page) ([][]Item, error) {
	out := make([][]Item, 0, len(pages))
	for _, p := range pages {
		items, err := Decode(p)
		if err != nil {
			return nil, err
		}
		out = append(out, items)
	}
	return out, nil
}

// ScanInto scans tableName and unmarshals every item into a T.
func ScanInto[T any](ctx context.Context, client dynamodb.ScanAPIClient, tableName string, opts ScanOptions) ([]T, error) {
	pages, err := ScanAll(ctx, client, tableName, opts)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := attributevalue.UnmarshalListOfMaps(Flatten(pages), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", tableName, err)
	}
	return out, nil
}
