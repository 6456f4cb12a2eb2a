// Copyright 2024 LanceDB Developers.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memds

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/lancedb/lancedb-go/dataset"
)

func idAgeSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "age", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
}

func idAgeRecord(ids, ages []int64) arrow.Record {
	schema := idAgeSchema()
	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()
	for i := range ids {
		b.Field(0).(*array.Int64Builder).Append(ids[i])
		b.Field(1).(*array.Int64Builder).Append(ages[i])
	}
	return b.NewRecord()
}

func vectorSchema(dim int32) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "embedding", Type: arrow.FixedSizeListOf(dim, arrow.PrimitiveTypes.Float32)},
	}, nil)
}

func vectorRecord(ids []int64, vectors [][]float32, dim int32) arrow.Record {
	schema := vectorSchema(dim)
	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()
	fb := b.Field(1).(*array.FixedSizeListBuilder)
	vb := fb.ValueBuilder().(*array.Float32Builder)
	for i := range ids {
		b.Field(0).(*array.Int64Builder).Append(ids[i])
		fb.Append(true)
		for _, f := range vectors[i] {
			vb.Append(f)
		}
	}
	return b.NewRecord()
}

// singleRecordIter adapts one already-built record into a dataset.RecordIter.
type singleRecordIter struct {
	rec  arrow.Record
	done bool
}

func newSingleRecordIter(rec arrow.Record) *singleRecordIter { return &singleRecordIter{rec: rec} }

func (it *singleRecordIter) Next(ctx context.Context) (arrow.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	it.done = true
	return it.rec, nil
}

func (it *singleRecordIter) Close() error { return nil }

// openDataset creates (overwriting any prior state) a fresh in-memory
// dataset at uri seeded with rec, so every test gets an isolated store
// despite the package's process-wide URI registry.
func openDataset(ctx context.Context, uri string, rec arrow.Record) (dataset.Dataset, error) {
	o := opener{}
	return o.Write(ctx, uri, newSingleRecordIter(rec), rec.Schema(), dataset.WriteParams{Mode: dataset.WriteOverwrite})
}
