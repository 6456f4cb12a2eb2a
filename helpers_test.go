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

package lancedb_test

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/lancedb/lancedb-go/dataset"
	_ "github.com/lancedb/lancedb-go/memds"
)

var testAllocator = memory.NewGoAllocator()

// sliceRecordIter adapts a single pre-built record into a dataset.RecordIter.
type sliceRecordIter struct {
	rec  arrow.Record
	done bool
}

func newSliceRecordIter(rec arrow.Record) *sliceRecordIter { return &sliceRecordIter{rec: rec} }

func (it *sliceRecordIter) Next(ctx context.Context) (arrow.Record, error) {
	if it.done {
		return nil, io.EOF
	}
	it.done = true
	return it.rec, nil
}

func (it *sliceRecordIter) Close() error { return nil }

func intSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{{Name: "i", Type: arrow.PrimitiveTypes.Int32}}, nil)
}

func intRecord(values []int32) arrow.Record {
	b := array.NewRecordBuilder(testAllocator, intSchema())
	defer b.Release()
	ib := b.Field(0).(*array.Int32Builder)
	for _, v := range values {
		ib.Append(v)
	}
	return b.NewRecord()
}

func idNameSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
}

func idNameRecord(ids []int32, names []string) arrow.Record {
	b := array.NewRecordBuilder(testAllocator, idNameSchema())
	defer b.Release()
	idb := b.Field(0).(*array.Int32Builder)
	nb := b.Field(1).(*array.StringBuilder)
	for i := range ids {
		idb.Append(ids[i])
		nb.Append(names[i])
	}
	return b.NewRecord()
}

func vectorIDSchema(dim int32) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "embeddings", Type: arrow.FixedSizeListOf(dim, arrow.PrimitiveTypes.Float32)},
	}, nil)
}

func vectorIDRecord(ids []int32, vectors [][]float32, dim int32) arrow.Record {
	b := array.NewRecordBuilder(testAllocator, vectorIDSchema(dim))
	defer b.Release()
	idb := b.Field(0).(*array.Int32Builder)
	fb := b.Field(1).(*array.FixedSizeListBuilder)
	vb := fb.ValueBuilder().(*array.Float32Builder)
	for i := range ids {
		idb.Append(ids[i])
		fb.Append(true)
		for _, f := range vectors[i] {
			vb.Append(f)
		}
	}
	return b.NewRecord()
}

// twoVectorRecord carries two floating FixedSizeList columns of the same
// dim, making vector-column inference ambiguous.
func twoVectorRecord(n int, dim int32) arrow.Record {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "vec_a", Type: arrow.FixedSizeListOf(dim, arrow.PrimitiveTypes.Float32)},
		{Name: "vec_b", Type: arrow.FixedSizeListOf(dim, arrow.PrimitiveTypes.Float32)},
	}, nil)
	b := array.NewRecordBuilder(testAllocator, schema)
	defer b.Release()
	idb := b.Field(0).(*array.Int32Builder)
	for i := 0; i < n; i++ {
		idb.Append(int32(i))
		for c := 1; c <= 2; c++ {
			fb := b.Field(c).(*array.FixedSizeListBuilder)
			fb.Append(true)
			vb := fb.ValueBuilder().(*array.Float32Builder)
			for j := int32(0); j < dim; j++ {
				vb.Append(float32(i))
			}
		}
	}
	return b.NewRecord()
}

func idAgeSchema32() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "age", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
}

func idAgeRecord32(ids, ages []int32) arrow.Record {
	b := array.NewRecordBuilder(testAllocator, idAgeSchema32())
	defer b.Release()
	idb := b.Field(0).(*array.Int32Builder)
	ab := b.Field(1).(*array.Int32Builder)
	for i := range ids {
		idb.Append(ids[i])
		ab.Append(ages[i])
	}
	return b.NewRecord()
}

var _ dataset.RecordIter = (*sliceRecordIter)(nil)
