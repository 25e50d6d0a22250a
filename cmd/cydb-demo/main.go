// Command cydb-demo is the storage engine's entire host boundary, per
// spec §6: a data directory and a buffer pool size in pages, nothing
// else. It creates a database and table, inserts a few rows, scans
// them back, and flushes, to exercise the engine end to end.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cydb/storage/internal/cydblog"
	"github.com/cydb/storage/pkg/catalog"
	"github.com/cydb/storage/pkg/engine"
	"github.com/cydb/storage/pkg/mvcc"
	"github.com/cydb/storage/pkg/value"
)

func main() {
	var (
		dataDir    string
		bufferPool int
	)
	flag.StringVar(&dataDir, "data-dir", "", "data directory (required)")
	flag.IntVar(&bufferPool, "buffer-pool-pages", 256, "buffer pool size in pages")
	flag.Parse()

	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "cydb-demo: -data-dir is required")
		os.Exit(2)
	}

	log := cydblog.For("cydb-demo")

	e, err := engine.Open(engine.Config{DataDirectory: dataDir, BufferPoolPages: bufferPool})
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer e.Close()

	if err := run(e, log); err != nil {
		log.Fatalf("demo: %v", err)
	}
}

func run(e *engine.Engine, log interface{ Infof(string, ...interface{}) }) error {
	const db, table = "demo", "widgets"

	if _, err := e.CreateDatabase(db, "utf8mb4", "utf8mb4_general_ci"); err != nil {
		return err
	}
	columns := []catalog.ColumnDef{
		{Name: "id", Type: value.TypeInt32, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: value.TypeVarChar, MaxLength: 64},
	}
	if _, err := e.CreateTable(db, table, columns); err != nil {
		return err
	}

	var ids []mvcc.RowID
	for _, name := range []string{"gear", "cog", "sprocket"} {
		id, err := e.InsertRow(db, table, []value.Value{value.Null(), value.VarChar(name)}, 1)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	log.Infof("inserted %d rows", len(ids))

	count := 0
	err := e.ScanRows(db, table, func(r mvcc.Row) error {
		count++
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("scanned %d live rows", count)

	if err := e.FlushDirty(len(ids)); err != nil {
		return err
	}
	log.Infof("flushed dirty pages, stats=%+v", e.Stats())
	return e.PersistStats(db, table)
}
