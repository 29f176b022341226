package ddbstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Scan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, siteViews, numericSortKeyTable)
	_, err := store.BatchWriteItem(ctx, put(siteViews.Name, views(7)...))
	require.NoError(t, err)

	t.Run("paginates with limit", func(t *testing.T) {
		var all []map[string]types.AttributeValue
		var pages int
		var start map[string]types.AttributeValue
		for {
			out, err := store.Scan(ctx, &dynamodb.ScanInput{
				TableName:         &siteViews.Name,
				Limit:             aws.Int32(3),
				ExclusiveStartKey: start,
			})
			require.NoError(t, err)
			pages++
			all = append(all, out.Items...)
			if out.LastEvaluatedKey == nil {
				break
			}
			start = out.LastEvaluatedKey
		}
		assert.Equal(t, 3, pages)
		assert.Equal(t, views(7), all)
	})

	t.Run("works with the SDK paginator", func(t *testing.T) {
		p := dynamodb.NewScanPaginator(store, &dynamodb.ScanInput{
			TableName: &siteViews.Name,
			Limit:     aws.Int32(4),
		})
		var n int
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			require.NoError(t, err)
			n += len(out.Items)
		}
		assert.Equal(t, 7, n)
	})

	t.Run("projection with placeholders", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName:                &siteViews.Name,
			ProjectionExpression:     aws.String("#u, viewId"),
			ExpressionAttributeNames: map[string]string{"#u": "url"},
			Limit:                    aws.Int32(1),
		})
		require.NoError(t, err)
		require.Len(t, out.Items, 1)
		assert.Equal(t, map[string]types.AttributeValue{
			"url":    str("https://www.youtube.com/"),
			"viewId": str("v00"),
		}, out.Items[0])
	})

	t.Run("unsupported expressions", func(t *testing.T) {
		_, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName:            &siteViews.Name,
			ProjectionExpression: aws.String("info.rating"),
		})
		assert.True(t, isValidationError(err), "got %v", err)

		_, err = store.Scan(ctx, &dynamodb.ScanInput{
			TableName:            &siteViews.Name,
			ProjectionExpression: aws.String("#missing"),
		})
		assert.True(t, isValidationError(err), "got %v", err)

		_, err = store.Scan(ctx, &dynamodb.ScanInput{
			TableName:        &siteViews.Name,
			FilterExpression: aws.String("url = :u"),
		})
		assert.True(t, isValidationError(err), "got %v", err)
	})

	t.Run("numeric sort keys scan in numeric order", func(t *testing.T) {
		var items []map[string]types.AttributeValue
		for _, n := range []string{"10", "-2", "3.5", "0"} {
			items = append(items, map[string]types.AttributeValue{"pk": str("p"), "sk": num(n)})
		}
		_, err := store.BatchWriteItem(ctx, put(numericSortKeyTable.Name, items...))
		require.NoError(t, err)

		out, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: &numericSortKeyTable.Name})
		require.NoError(t, err)
		var got []string
		for _, item := range out.Items {
			got = append(got, item["sk"].(*types.AttributeValueMemberN).Value)
		}
		assert.Equal(t, []string{"-2", "0", "3.5", "10"}, got)
	})
}
