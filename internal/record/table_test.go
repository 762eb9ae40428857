package record_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagestore/internal/record"
)

func testSchema() record.Schema {
	return record.Schema{
		Attrs: []record.Attribute{
			{Name: "id", Type: record.TypeInt},
			{Name: "name", Type: record.TypeString, Length: 4},
			{Name: "age", Type: record.TypeInt},
		},
		KeyAttrs: []int{0},
	}
}

func putRow(t *testing.T, schema record.Schema, id int32, name string, age int32) *record.Record {
	t.Helper()
	rec := record.NewRecord(schema)
	require.NoError(t, record.SetAttr(rec, schema, 0, record.Value{Type: record.TypeInt, Int: id}))
	require.NoError(t, record.SetAttr(rec, schema, 1, record.Value{Type: record.TypeString, Str: name}))
	require.NoError(t, record.SetAttr(rec, schema, 2, record.Value{Type: record.TypeInt, Int: age}))
	return rec
}

func TestTable_RecordRoundTrip_ScenarioS3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.tbl")
	schema := testSchema()
	require.NoError(t, record.CreateTable(path, schema))

	tbl, err := record.OpenTable(path)
	require.NoError(t, err)

	rec := putRow(t, schema, 1, "Bob", 22)
	require.NoError(t, tbl.InsertRecord(rec))
	require.Equal(t, record.RecordID{Page: 1, Slot: 0}, rec.ID)

	got, err := tbl.GetRecord(rec.ID)
	require.NoError(t, err)

	idVal, err := record.GetAttr(got, schema, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, idVal.Int)

	nameVal, err := record.GetAttr(got, schema, 1)
	require.NoError(t, err)
	require.Equal(t, "Bob", nameVal.Str)

	ageVal, err := record.GetAttr(got, schema, 2)
	require.NoError(t, err)
	require.EqualValues(t, 22, ageVal.Int)

	require.Equal(t, 1, tbl.GetNumTuples())
	require.NoError(t, tbl.CloseTable())

	reopened, err := record.OpenTable(path)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.GetNumTuples())
	require.NoError(t, reopened.CloseTable())
}

func TestTable_DeleteAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.tbl")
	schema := testSchema()
	require.NoError(t, record.CreateTable(path, schema))
	tbl, err := record.OpenTable(path)
	require.NoError(t, err)

	rec := putRow(t, schema, 1, "Bob", 22)
	require.NoError(t, tbl.InsertRecord(rec))

	updated := putRow(t, schema, 1, "Rob", 23)
	updated.ID = rec.ID
	require.NoError(t, tbl.UpdateRecord(updated))

	got, err := tbl.GetRecord(rec.ID)
	require.NoError(t, err)
	nameVal, err := record.GetAttr(got, schema, 1)
	require.NoError(t, err)
	require.Equal(t, "Rob", nameVal.Str)

	require.NoError(t, tbl.DeleteRecord(rec.ID))
	require.Equal(t, 0, tbl.GetNumTuples())
	_, err = tbl.GetRecord(rec.ID)
	require.ErrorIs(t, err, record.ErrRecordNotFound)

	require.NoError(t, tbl.CloseTable())
}

func TestTable_ScanWithPredicate_ScenarioS4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.tbl")
	schema := testSchema()
	require.NoError(t, record.CreateTable(path, schema))
	tbl, err := record.OpenTable(path)
	require.NoError(t, err)

	for i := int32(1); i <= 10; i++ {
		rec := putRow(t, schema, i, "n", i*2)
		require.NoError(t, tbl.InsertRecord(rec))
	}

	pred := func(rec *record.Record, schema record.Schema) (bool, error) {
		v, err := record.GetAttr(rec, schema, 0)
		if err != nil {
			return false, err
		}
		return v.Int > 7, nil
	}

	scan := tbl.StartScan(pred)
	var got []int32
	for {
		rec, err := scan.Next()
		if err != nil {
			require.ErrorIs(t, err, record.ErrNoMoreTuples)
			break
		}
		v, err := record.GetAttr(rec, schema, 0)
		require.NoError(t, err)
		got = append(got, v.Int)
	}
	require.NoError(t, scan.Close())
	require.Equal(t, []int32{8, 9, 10}, got)

	require.NoError(t, tbl.CloseTable())
}
