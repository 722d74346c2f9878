package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/models"
)

func treeSchema() *models.Schema {
	str := models.DataType{ID: models.TypeString, Name: "UTF8"}
	return models.MustSchema(
		models.Field{Name: "id", Type: models.DataType{ID: models.TypeInt, Name: "INT64"}},
		models.Field{Name: "address", Nullable: true, Type: models.DataType{ID: models.TypeStruct, Name: "STRUCT", Children: []models.Field{
			{Name: "street", Type: str, Nullable: true},
			{Name: "geo", Type: models.DataType{ID: models.TypeStruct, Name: "STRUCT", Children: []models.Field{
				{Name: "lat", Type: models.DataType{ID: models.TypeFloat, Name: "FLOAT64"}},
			}}},
		}}},
		models.Field{Name: "tags", Nullable: true, Type: models.DataType{ID: models.TypeList, Name: "LIST", Children: []models.Field{
			{Name: "item", Type: str, Nullable: true},
		}}},
	)
}

func TestWriteSchemaTree(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchemaTree(&buf, treeSchema(), "parquet"))

	want := strings.Join([]string{
		"Schema Tree (parquet):",
		"└── root",
		"    ├── id: INT64",
		"    ├── address: STRUCT (nullable)",
		"    │   ├── street: UTF8 (nullable)",
		"    │   └── geo: STRUCT",
		"    │       └── lat: FLOAT64",
		"    └── tags: LIST (nullable)",
		"        └── item: UTF8 (nullable)",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func parquetMetadata() *formats.Metadata {
	return &formats.Metadata{
		File:        "data.parquet",
		Format:      formats.Parquet,
		Compression: "none",
		Rows:        10,
		Columns:     3,
		RowGroups:   2,
		CreatedBy:   "parquet-go version 18.0.0",
		Version:     "v2.6",
		KeyValue:    []formats.KeyValue{{Key: "origin", Value: "tests"}},
	}
}

func TestWriteMetadataText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFileHeader(&buf, "data.parquet"))
	require.NoError(t, WriteMetadataText(&buf, parquetMetadata()))
	assert.Equal(t, strings.Join([]string{
		"=== data.parquet ===",
		"Format: parquet",
		"Compression: none",
		"Number of row groups: 2",
		"Number of rows: 10",
		"Number of columns: 3",
		"Created by: parquet-go version 18.0.0",
		"Version: v2.6",
		"Key-value metadata:",
		"  origin: tests",
		"",
	}, "\n"), buf.String())

	buf.Reset()
	require.NoError(t, WriteMetadataText(&buf, &formats.Metadata{
		File: "x.orc.gz", Format: formats.ORC, Compression: "gzip", Rows: 4, Columns: 2, Stripes: 1,
	}))
	out := buf.String()
	assert.Contains(t, out, "Number of stripes: 1\n")
	assert.Contains(t, out, "Compression: gzip\n")
	assert.NotContains(t, out, "Created by")
	assert.NotContains(t, out, "metadata:")
}

func TestWriteMetadataStructured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, parquetMetadata()))
	assert.Contains(t, buf.String(), `"row_groups": 2`)
	assert.Contains(t, buf.String(), `"key": "origin"`)
	assert.NotContains(t, buf.String(), "stripes")

	buf.Reset()
	require.NoError(t, WriteYAML(&buf, parquetMetadata()))
	var decoded formats.Metadata
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *parquetMetadata(), decoded)
}

func TestWriteSchemaJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, treeSchema()))
	out := buf.String()
	assert.Contains(t, out, `"name": "address"`)
	assert.Contains(t, out, `"id": "struct"`)
	assert.Contains(t, out, `"nullable": true`)
}
