package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classSubjects = TableDefinition{
	Name: "fake-ClassSubjects",
	KeyDefinitions: PrimaryKeyDefinition{
		PartitionKey: KeyDef{Name: "classId", Kind: KeyKindS},
		SortKey:      KeyDef{Name: "subject", Kind: KeyKindS},
	},
	GSIs: []GSIDefinition{{
		Name: "byTeacher",
		KeyDefinitions: PrimaryKeyDefinition{
			PartitionKey: KeyDef{Name: "teacherId", Kind: KeyKindS},
			SortKey:      KeyDef{Name: "subject", Kind: KeyKindS},
		},
	}},
}

func TestCreateTableInput(t *testing.T) {
	in := classSubjects.CreateTableInput()

	assert.Equal(t, "fake-ClassSubjects", aws.ToString(in.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)

	// subject is shared by the table key and the index key but declared once
	var names []string
	for _, a := range in.AttributeDefinitions {
		names = append(names, aws.ToString(a.AttributeName))
	}
	assert.Equal(t, []string{"classId", "subject", "teacherId"}, names)

	require.Len(t, in.GlobalSecondaryIndexes, 1)
	gsi := in.GlobalSecondaryIndexes[0]
	assert.Equal(t, "byTeacher", aws.ToString(gsi.IndexName))
	assert.Equal(t, types.ProjectionTypeAll, gsi.Projection.ProjectionType)
	assert.Equal(t, types.KeyTypeHash, gsi.KeySchema[0].KeyType)
	assert.Equal(t, types.KeyTypeRange, gsi.KeySchema[1].KeyType)
}

func TestFromCreateTableInputRoundTrip(t *testing.T) {
	def, err := FromCreateTableInput(classSubjects.CreateTableInput())
	require.NoError(t, err)

	want := classSubjects
	want.GSIs = []GSIDefinition{classSubjects.GSIs[0]}
	want.GSIs[0].Projection = ProjectionAll
	assert.Equal(t, want, def)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     TableDefinition
		wantErr string
	}{
		{
			name:    "missing name",
			def:     TableDefinition{KeyDefinitions: classSubjects.KeyDefinitions},
			wantErr: "table name is required",
		},
		{
			name: "bad kind",
			def: TableDefinition{Name: "t", KeyDefinitions: PrimaryKeyDefinition{
				PartitionKey: KeyDef{Name: "id", Kind: "X"},
			}},
			wantErr: "invalid key kind",
		},
		{
			name: "duplicate index",
			def: TableDefinition{
				Name:           "t",
				KeyDefinitions: classSubjects.KeyDefinitions,
				GSIs:           []GSIDefinition{classSubjects.GSIs[0], classSubjects.GSIs[0]},
			},
			wantErr: "duplicate index",
		},
		{
			name: "conflicting kinds",
			def: TableDefinition{
				Name:           "t",
				KeyDefinitions: PrimaryKeyDefinition{PartitionKey: KeyDef{Name: "id", Kind: KeyKindS}},
				GSIs: []GSIDefinition{{
					Name:           "byId",
					KeyDefinitions: PrimaryKeyDefinition{PartitionKey: KeyDef{Name: "id", Kind: KeyKindN}},
				}},
			},
			wantErr: "declared as both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.NoError(t, classSubjects.Validate())
}

func TestExtractPrimaryKey(t *testing.T) {
	doc := map[string]types.AttributeValue{
		"classId": &types.AttributeValueMemberS{Value: "G9-C1"},
		"subject": &types.AttributeValueMemberS{Value: "Math"},
	}
	pk, err := classSubjects.ExtractPrimaryKey(doc)
	require.NoError(t, err)
	assert.Equal(t, "G9-C1", pk.Values.PartitionKey)
	assert.Equal(t, "Math", pk.Values.SortKey)

	_, err = classSubjects.ExtractPrimaryKey(map[string]types.AttributeValue{
		"classId": &types.AttributeValueMemberS{Value: "G9-C1"},
	})
	assert.ErrorContains(t, err, `sort key "subject" not found`)

	_, err = classSubjects.ExtractPrimaryKey(map[string]types.AttributeValue{
		"classId": &types.AttributeValueMemberN{Value: "1"},
		"subject": &types.AttributeValueMemberS{Value: "Math"},
	})
	assert.ErrorContains(t, err, "want \"S\"")

	_, err = classSubjects.ExtractPrimaryKey(map[string]types.AttributeValue{
		"classId": &types.AttributeValueMemberS{Value: ""},
		"subject": &types.AttributeValueMemberS{Value: "Math"},
	})
	assert.ErrorContains(t, err, "empty string")
}

func TestLoadSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	yml := `tables:
  - name: fake-StudentClasses
    partitionKey: {name: studentId, kind: S}
    gsis:
      - name: byClass
        partitionKey: {name: classId, kind: S}
        projection: KEYS_ONLY
  - name: StudentSiteViews
    partitionKey: {name: studentEmail, kind: S}
    sortKey: {name: viewId, kind: S}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "school.yaml"), []byte(yml), 0o644))

	defs, err := LoadSchemaFiles(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "fake-StudentClasses", defs[0].Name)
	gsi, ok := defs[0].GSI("byClass")
	require.True(t, ok)
	assert.Equal(t, ProjectionKeysOnly, gsi.Projection)
	assert.Equal(t, KeyDef{Name: "viewId", Kind: KeyKindS}, defs[1].KeyDefinitions.SortKey)

	_, err = LoadSchemaFiles(filepath.Join(dir, "*.json"))
	assert.ErrorContains(t, err, "no schema files found")
}

func TestParseSchemaRejectsBadKind(t *testing.T) {
	_, err := ParseSchema([]byte("tables:\n  - name: t\n    partitionKey: {name: id, kind: string}\n"))
	assert.ErrorContains(t, err, "invalid key kind")
}
