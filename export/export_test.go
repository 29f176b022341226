package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acksell/ddbseed/dynamodb/ddbstore"
	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/school"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T, n int) *ddbstore.Store {
	t.Helper()
	def := school.FakeUserTableDef(school.FakeUserTable)
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, def)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	users := school.NewGenerator(1).FakeUsers(n)
	records, err := ingest.MarshalRecords(users)
	require.NoError(t, err)
	res, err := ingest.New(store).Ingest(context.Background(), def.Name, records)
	require.NoError(t, err)
	require.True(t, res.Done())
	return store
}

func TestScanAll_Pages(t *testing.T) {
	store := newSeededStore(t, 23)

	pages, err := ScanAll(context.Background(), store, school.FakeUserTable, ScanOptions{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 10)
	assert.Len(t, pages[2], 3)
	assert.Len(t, Flatten(pages), 23)

	pages, err = ScanAll(context.Background(), store, school.FakeUserTable, ScanOptions{PageSize: 5, MaxPages: 1})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0], 5)
}

func TestScanAll_Projection(t *testing.T) {
	store := newSeededStore(t, 4)

	pages, err := ScanAll(context.Background(), store, school.FakeUserTable, ScanOptions{Attributes: []string{"id", "name"}})
	require.NoError(t, err)
	for _, item := range Flatten(pages) {
		assert.Len(t, item, 2)
		assert.Contains(t, item, "id")
		assert.Contains(t, item, "name")
	}
}

func TestScanInto(t *testing.T) {
	store := newSeededStore(t, 12)

	users, err := ScanInto[school.FakeUser](context.Background(), store, school.FakeUserTable, ScanOptions{})
	require.NoError(t, err)
	require.Len(t, users, 12)
	for _, u := range users {
		assert.NotEmpty(t, u.Email)
		assert.GreaterOrEqual(t, u.Grade, 1)
	}
}

func TestScanAll_MissingTable(t *testing.T) {
	store := newSeededStore(t, 1)
	_, err := ScanAll(context.Background(), store, "nope", ScanOptions{})
	assert.Error(t, err)
}

func TestWriteAll(t *testing.T) {
	store := newSeededStore(t, 7)
	pages, err := ScanAll(context.Background(), store, school.FakeUserTable, ScanOptions{PageSize: 3})
	require.NoError(t, err)

	dir := t.TempDir()
	files := FilesFor(filepath.Join(dir, "out", "db_fakeuser"))
	meta := Meta{Table: school.FakeUserTable, Endpoint: "http://localhost:8000", ExportedAt: time.Unix(0, 0)}
	n, err := WriteAll(meta, files, pages)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	var flat FlatPayload
	readJSON(t, files.Flat, &flat)
	assert.Equal(t, 7, flat.Count)
	assert.Len(t, flat.Items, 7)
	assert.Equal(t, "1970-01-01T00:00:00Z", flat.ExportedAt)

	var nested NestedPayload
	readJSON(t, files.Nested, &nested)
	assert.Equal(t, 3, nested.Pages)
	assert.Equal(t, []int{3, 3, 1}, nested.CountsPerPage)
	assert.Equal(t, flat.Items[0], nested.Items[0][0])

	diff, err := os.ReadFile(files.Diff)
	require.NoError(t, err)
	assert.Contains(t, string(diff), "per page: 3, 3, 1")
}

func TestNewFlat_EmptyItemsEncodeAsList(t *testing.T) {
	data, err := json.Marshal(NewFlat(Meta{Table: "t"}, nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items":[]`)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestWriteCategoriesCSV(t *testing.T) {
	var buf bytes.Buffer
	cats := []school.Category{
		{Code: "video_music", Name: "Video, Music", Description: `says "hi"`, SampleHosts: []string{"youtube.com", "vimeo.com"}},
	}
	require.NoError(t, WriteCategoriesCSV(&buf, cats))
	assert.Equal(t,
		"code,name,description,sampleHosts\n"+
			`video_music,"Video, Music","says ""hi""",youtube.com|vimeo.com`+"\n",
		buf.String())
}

func TestWriteCategories_JSONRoundTripsThroughBaseline(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteCategories(dir, school.Categories(), true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CategoriesJSONFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	c, err := school.ParseBaseline(data)
	require.NoError(t, err)
	assert.Equal(t, "learning", c.Category("wikipedia.org"))
}

func TestNormalizeInitial(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a", "A"},
		{"  bob ", "B"},
		{"\uff41", "A"},
		{"", ""},
		{"Zed", "Z"},
		{"\u00e9x", "\u00c9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInitial(tt.in), "%q", tt.in)
	}
	assert.True(t, ValidInitial("A"))
	assert.False(t, ValidInitial("\u00c9"))
	assert.False(t, ValidInitial("AB"))
}

func items(names ...string) []Item {
	out := make([]Item, len(names))
	for i, n := range names {
		out[i] = Item{"id": fmt.Sprintf("u%02d", i), "name": n}
	}
	return out
}

func TestFilterByInitial(t *testing.T) {
	got := FilterByInitial(items("Alice Chen", "bob Li", "\uff41my Wu", "Carol"), "a")
	var names []string
	for _, it := range got {
		names = append(names, it["name"].(string))
	}
	assert.Equal(t, []string{"Alice Chen", "\uff41my Wu"}, names)

	assert.Empty(t, FilterByInitial(items("Alice"), " "))
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprint(it["name"])
	}
	return out
}

func TestSortByName(t *testing.T) {
	list := items("user 10", "", "Bob", "\u00c9mile", "user 2", "alice")
	SortByName(list, Ascending)
	assert.Equal(t, []string{"alice", "Bob", "\u00c9mile", "user 2", "user 10", ""}, names(list))

	SortByName(list, Descending)
	assert.Equal(t, []string{"user 10", "user 2", "\u00c9mile", "Bob", "alice", ""}, names(list))
}

func TestSortByName_TieBreaksOnID(t *testing.T) {
	list := []Item{
		{"id": "u2", "name": "Amy"},
		{"id": "u1", "name": "amy"},
	}
	SortByName(list, Ascending)
	assert.Equal(t, "u1", list[0]["id"])

	SortByName(list, Descending)
	assert.Equal(t, "u2", list[0]["id"])
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("2")
	require.NoError(t, err)
	assert.Equal(t, Descending, o)
	o, err = ParseOrder(" ASC ")
	require.NoError(t, err)
	assert.Equal(t, Ascending, o)
	_, err = ParseOrder("sideways")
	assert.True(t, err != nil && strings.Contains(err.Error(), "sideways"))
}
