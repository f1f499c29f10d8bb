package instances

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/actorflow/pkg/behavior"
)

const (
	colStart    = "start_time"
	colComplete = "complete_time"
	colDuration = "duration"
	colBehavior = "actor_behavior"

	metaTimeUnit = "time_unit"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func tableSchema(unit TimeUnit) *arrow.Schema {
	md := arrow.NewMetadata([]string{metaTimeUnit}, []string{string(unit)})
	return arrow.NewSchema([]arrow.Field{
		{Name: colStart, Type: timestampType, Nullable: true},
		{Name: colComplete, Type: timestampType, Nullable: true},
		{Name: colDuration, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: colBehavior, Type: arrow.BinaryTypes.String, Nullable: true},
	}, &md)
}

// EncodeParquet serializes t as a Snappy-compressed Parquet file.
func EncodeParquet(t *Table) ([]byte, error) {
	mem := memory.NewGoAllocator()
	schema := tableSchema(t.TimeUnit)

	startB := array.NewTimestampBuilder(mem, timestampType)
	endB := array.NewTimestampBuilder(mem, timestampType)
	durB := array.NewFloat64Builder(mem)
	labelB := array.NewStringBuilder(mem)
	defer startB.Release()
	defer endB.Release()
	defer durB.Release()
	defer labelB.Release()

	for _, inst := range t.Instances {
		appendTime(startB, inst.Start)
		appendTime(endB, inst.End)
		if inst.Duration != nil {
			durB.Append(*inst.Duration)
		} else {
			durB.AppendNull()
		}
		if inst.Label != "" {
			labelB.Append(string(inst.Label))
		} else {
			labelB.AppendNull()
		}
	}

	cols := []arrow.Array{startB.NewArray(), endB.NewArray(), durB.NewArray(), labelB.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecord(schema, cols, int64(len(t.Instances)))
	defer rec.Release()

	var buf bytes.Buffer
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	w, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if rec.NumRows() > 0 {
		if err := w.Write(rec); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func appendTime(b *array.TimestampBuilder, t time.Time) {
	if t.IsZero() {
		b.AppendNull()
		return
	}
	b.Append(arrow.Timestamp(t.UnixMicro()))
}

// DecodeParquet reads a table written by EncodeParquet.
func DecodeParquet(ctx context.Context, data []byte) (*Table, error) {
	rdr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet data: %w", err)
	}
	defer rdr.Close()

	t := &Table{TimeUnit: Hours}
	if v := rdr.MetaData().KeyValueMetadata().FindValue(metaTimeUnit); v != nil {
		t.TimeUnit = TimeUnit(*v)
	}

	arrowRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowRdr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer tbl.Release()

	idx := make(map[string]int, 4)
	for _, name := range []string{colStart, colComplete, colDuration, colBehavior} {
		found := tbl.Schema().FieldIndices(name)
		if len(found) == 0 {
			return nil, fmt.Errorf("parquet data has no %q column", name)
		}
		idx[name] = found[0]
	}

	t.Instances = make([]Instance, 0, tbl.NumRows())

	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		start, ok1 := rec.Column(idx[colStart]).(*array.Timestamp)
		end, ok2 := rec.Column(idx[colComplete]).(*array.Timestamp)
		dur, ok3 := rec.Column(idx[colDuration]).(*array.Float64)
		label, ok4 := rec.Column(idx[colBehavior]).(*array.String)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, fmt.Errorf("parquet data has unexpected column types")
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			var inst Instance
			if start.IsValid(i) {
				inst.Start = time.UnixMicro(int64(start.Value(i))).UTC()
			}
			if end.IsValid(i) {
				inst.End = time.UnixMicro(int64(end.Value(i))).UTC()
			}
			if dur.IsValid(i) {
				inst.Duration = float64Ptr(dur.Value(i))
			}
			if label.IsValid(i) {
				inst.Label = behavior.Label(label.Value(i))
			}
			t.Instances = append(t.Instances, inst)
		}
	}
	return t, nil
}
