package testutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/scritchley/orc"
	"github.com/stretchr/testify/require"
)

// ORCSchema is the type description of WriteORC files
const ORCSchema = "struct<name:string,age:bigint,active:boolean,score:double>"

// ORCRow is one row of the ORC fixture. A nil pointer is written as null.
type ORCRow struct {
	Name   string
	Age    *int64
	Active bool
	Score  float64
}

// ORCBytes encodes rows as an ORC file
func ORCBytes(t testing.TB, rows []ORCRow) []byte {
	t.Helper()

	schema, err := orc.ParseSchema(ORCSchema)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := orc.NewWriter(&buf, orc.SetSchema(schema))
	require.NoError(t, err)
	for _, r := range rows {
		var age interface{}
		if r.Age != nil {
			age = *r.Age
		}
		require.NoError(t, w.Write(r.Name, age, r.Active, r.Score))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// WriteORC writes rows to path, compressing the file with the codec implied
// by its extension
func WriteORC(t testing.TB, path string, rows []ORCRow) {
	t.Helper()
	WriteCompressed(t, path, ORCBytes(t, rows))
}

// NestedORCSchema is the type description of NestedORCBytes files
const NestedORCSchema = "struct<id:bigint,tags:array<string>,attrs:map<string,bigint>," +
	"info:struct<x:int,label:string>,day:date,score:double>"

// NestedORCRow is one row of the nested ORC fixture. Nil containers are
// written as null. Day is always written because the ORC reader does not
// report null dates.
type NestedORCRow struct {
	ID    int64
	Tags  []string
	Attrs map[string]int64
	X     int32
	Label string
	Day   time.Time
	Score float64
}

// NestedORCBytes encodes rows with list, map, struct and date columns. The
// ORC reader frames map entries correctly only when a single row holds a
// single entry, so fixtures should populate Attrs on one row at most.
func NestedORCBytes(t testing.TB, rows []NestedORCRow) []byte {
	t.Helper()

	schema, err := orc.ParseSchema(NestedORCSchema)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := orc.NewWriter(&buf, orc.SetSchema(schema))
	require.NoError(t, err)
	for _, r := range rows {
		var tags, attrs interface{}
		if r.Tags != nil {
			tags = r.Tags
		}
		if r.Attrs != nil {
			attrs = r.Attrs
		}
		info := []interface{}{r.X, r.Label}
		require.NoError(t, w.Write(r.ID, tags, attrs, info, r.Day, r.Score))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// WriteNestedORC writes nested rows to path, compressing the file with the
// codec implied by its extension
func WriteNestedORC(t testing.TB, path string, rows []NestedORCRow) {
	t.Helper()
	WriteCompressed(t, path, NestedORCBytes(t, rows))
}
