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
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Row is a materialized, schema-carrying view of one dataset row. Qualified
// lookups ("target.col", "source.col") are used by merge-insert's only_if
// and not-matched-by-source filter evaluation (spec.md §4.4); unqualified
// lookups are used everywhere else.
type Row struct {
	Schema *arrow.Schema
	Values map[string]interface{}
}

// Get resolves name, trying the exact key first and then falling back to
// the unqualified name if name carries a "qualifier." prefix not present in
// Values (used when evaluating a plain filter against a joined row that
// only has one side populated).
func (r Row) Get(name string) (interface{}, bool) {
	if v, ok := r.Values[name]; ok {
		return v, true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			if v, ok := r.Values[name[i+1:]]; ok {
				return v, true
			}
			break
		}
	}
	return nil, false
}

var allocator = memory.NewGoAllocator()

// recordToRows flattens one Arrow record batch into Row values keyed by
// unqualified column name.
func recordToRows(rec arrow.Record) ([]Row, error) {
	schema := rec.Schema()
	n := int(rec.NumRows())
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{Schema: schema, Values: make(map[string]interface{}, int(rec.NumCols()))}
	}
	for c := 0; c < int(rec.NumCols()); c++ {
		col := rec.Column(c)
		name := schema.Field(c).Name
		for i := 0; i < n; i++ {
			v, err := columnValue(col, i)
			if err != nil {
				return nil, err
			}
			rows[i].Values[name] = v
		}
	}
	return rows, nil
}

// columnValue reads the logical Go value of column col at row i.
func columnValue(col arrow.Array, i int) (interface{}, error) {
	if col.IsNull(i) {
		return nil, nil
	}
	switch a := col.(type) {
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint8:
		return int64(a.Value(i)), nil
	case *array.Uint16:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint64:
		return int64(a.Value(i)), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Date32:
		return int64(a.Value(i)), nil
	case *array.Date64:
		return int64(a.Value(i)), nil
	case *array.Time32:
		return int64(a.Value(i)), nil
	case *array.Time64:
		return int64(a.Value(i)), nil
	case *array.Timestamp:
		return int64(a.Value(i)), nil
	case *array.FixedSizeList:
		width := int(a.DataType().(*arrow.FixedSizeListType).Len())
		values := a.ListValues()
		start := i * width
		vec := make([]float32, width)
		for j := 0; j < width; j++ {
			v, err := columnValue(values, start+j)
			if err != nil {
				return nil, err
			}
			vec[j] = float32(v.(float64))
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("memds: unsupported column type %s", col.DataType())
	}
}

// rowsToRecord rebuilds an Arrow record batch from Row values under schema.
// Rows missing a value for a field are treated as null.
func rowsToRecord(schema *arrow.Schema, rows []Row) (arrow.Record, error) {
	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()
	for _, row := range rows {
		for i, f := range schema.Fields() {
			v, ok := row.Get(f.Name)
			if !ok {
				b.Field(i).AppendNull()
				continue
			}
			if err := appendValue(b.Field(i), f.Type, v); err != nil {
				return nil, err
			}
		}
	}
	return b.NewRecord(), nil
}

func appendValue(builder array.Builder, dt arrow.DataType, v interface{}) error {
	if v == nil {
		builder.AppendNull()
		return nil
	}
	switch bb := builder.(type) {
	case *array.Int8Builder:
		bb.Append(int8(toInt64(v)))
	case *array.Int16Builder:
		bb.Append(int16(toInt64(v)))
	case *array.Int32Builder:
		bb.Append(int32(toInt64(v)))
	case *array.Int64Builder:
		bb.Append(toInt64(v))
	case *array.Uint8Builder:
		bb.Append(uint8(toInt64(v)))
	case *array.Uint16Builder:
		bb.Append(uint16(toInt64(v)))
	case *array.Uint32Builder:
		bb.Append(uint32(toInt64(v)))
	case *array.Uint64Builder:
		bb.Append(uint64(toInt64(v)))
	case *array.Float32Builder:
		bb.Append(float32(toFloat64(v)))
	case *array.Float64Builder:
		bb.Append(toFloat64(v))
	case *array.BooleanBuilder:
		bb.Append(v.(bool))
	case *array.StringBuilder:
		bb.Append(fmt.Sprintf("%v", v))
	case *array.LargeStringBuilder:
		bb.Append(fmt.Sprintf("%v", v))
	case *array.Date32Builder:
		bb.Append(arrow.Date32(toInt64(v)))
	case *array.Date64Builder:
		bb.Append(arrow.Date64(toInt64(v)))
	case *array.Time32Builder:
		bb.Append(arrow.Time32(toInt64(v)))
	case *array.Time64Builder:
		bb.Append(arrow.Time64(toInt64(v)))
	case *array.TimestampBuilder:
		bb.Append(arrow.Timestamp(toInt64(v)))
	case *array.FixedSizeListBuilder:
		vec, ok := v.([]float32)
		if !ok {
			return fmt.Errorf("memds: expected []float32 for vector column, got %T", v)
		}
		bb.Append(true)
		vb := bb.ValueBuilder().(*array.Float32Builder)
		for _, f := range vec {
			vb.Append(f)
		}
	default:
		return fmt.Errorf("memds: unsupported builder type %T", builder)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
