package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cydb/storage/pkg/catalog"
	"github.com/cydb/storage/pkg/mvcc"
	"github.com/cydb/storage/pkg/value"
)

func sampleColumns() []catalog.ColumnDef {
	return []catalog.ColumnDef{
		{Name: "id", Type: value.TypeInt32, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.TypeVarChar, MaxLength: 64, Nullable: true},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Config{DataDirectory: dir, BufferPoolPages: 64})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenRejectsMissingConfig(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
	_, err = Open(Config{DataDirectory: t.TempDir()})
	assert.Error(t, err)
}

func TestCreateDatabaseAndTable(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)
}

func TestInsertGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)

	id, err := e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("gear")}, 1)
	require.NoError(t, err)

	row, err := e.GetRow("mydb", "widgets", id)
	require.NoError(t, err)
	s, err := row.Values[1].AsString()
	require.NoError(t, err)
	assert.Equal(t, "gear", s)
}

func TestInsertRegistersDirtyPage(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)

	_, err = e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("gear")}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, e.Stats().DirtyPages)
}

func TestFlushDirtyWritesThroughDoublewrite(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)
	_, err = e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("gear")}, 1)
	require.NoError(t, err)

	require.NoError(t, e.FlushDirty(10))
	assert.Equal(t, 0, e.Stats().DirtyPages)
}

func TestUpdateAndDeleteRow(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)

	id, err := e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("gear")}, 1)
	require.NoError(t, err)

	require.NoError(t, e.UpdateRow("mydb", "widgets", id, []value.Value{value.Int32(1), value.VarChar("cog")}, 2))
	row, err := e.GetRow("mydb", "widgets", id)
	require.NoError(t, err)
	s, _ := row.Values[1].AsString()
	assert.Equal(t, "cog", s)

	require.NoError(t, e.DeleteRow("mydb", "widgets", id))
	_, err = e.GetRow("mydb", "widgets", id)
	assert.Error(t, err)
}

func TestScanRowsVisitsAllLiveRows(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("w")}, 1)
		require.NoError(t, err)
	}

	var count int
	err = e.ScanRows("mydb", "widgets", func(r mvcc.Row) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestOptimizeTableRefreshesManager(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)

	var ids []mvcc.RowID
	for i := 0; i < 3; i++ {
		id, err := e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("w")}, 1)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, e.DeleteRow("mydb", "widgets", ids[0]))

	result, err := e.OptimizeTable("mydb", "widgets")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Rows)

	// Further mutations must still register dirty pages against the
	// refreshed manager without error.
	_, err = e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("post-optimize")}, 1)
	require.NoError(t, err)
	require.NoError(t, e.FlushDirty(10))
}

func TestPersistStatsRoundTripsThroughCatalog(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateDatabase("mydb", "utf8mb4", "utf8mb4_general_ci")
	require.NoError(t, err)
	_, err = e.CreateTable("mydb", "widgets", sampleColumns())
	require.NoError(t, err)
	_, err = e.InsertRow("mydb", "widgets", []value.Value{value.Null(), value.VarChar("w")}, 1)
	require.NoError(t, err)

	require.NoError(t, e.PersistStats("mydb", "widgets"))
}
